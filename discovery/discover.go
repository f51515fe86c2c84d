// Package discovery scans AWS regions for RDS instances and Aurora clusters
// and describes them as enhanced config entries.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/rds"
	"github.com/aws/aws-sdk-go-v2/service/rds/types"
	"github.com/awsdbmon/cli/dbconfig"
	log "github.com/sirupsen/logrus"
)

// DefaultTagFilters are applied when no filters are given
var DefaultTagFilters = map[string]string{"monitor": "newrelic"}

// Discoverer finds RDS instances and Aurora clusters across regions and turns
// them into enhanced config entries
type Discoverer struct {
	Regions []string
	// TagFilters must all match a resource's tags exactly. DefaultTagFilters
	// is used when empty.
	TagFilters map[string]string
	// NewClient returns the RDS client for a region
	NewClient func(region string) (rdsClient, error)
	// Now is used for the metadata timestamp
	Now func() time.Time
}

// NewDiscoverer returns a discoverer whose clients come from configs, keyed
// by region
func NewDiscoverer(regions []string, tagFilters map[string]string, configs map[string]aws.Config) *Discoverer {
	return &Discoverer{
		Regions:    regions,
		TagFilters: tagFilters,
		NewClient: func(region string) (rdsClient, error) {
			cfg, ok := configs[region]
			if !ok {
				return nil, fmt.Errorf("no AWS config for region %v", region)
			}
			return NewRDSClient(cfg), nil
		},
		Now: time.Now,
	}
}

func (d *Discoverer) filters() map[string]string {
	if len(d.TagFilters) == 0 {
		return DefaultTagFilters
	}

	return d.TagFilters
}

// Discover scans every region in order. Failures are logged and the failing
// listing contributes nothing, the remaining regions are still scanned.
func (d *Discoverer) Discover(ctx context.Context) *dbconfig.EnhancedConfig {
	cfg := &dbconfig.EnhancedConfig{
		MySQL:      []dbconfig.Database{},
		PostgreSQL: []dbconfig.Database{},
	}

	for _, region := range d.Regions {
		lf := log.Fields{"region": region}
		log.WithFields(lf).Info("Discovering databases")

		client, err := d.NewClient(region)
		if err != nil {
			log.WithError(err).WithFields(lf).Error("Error creating RDS client")
			continue
		}

		instances, err := d.discoverInstances(ctx, client, region)
		if err != nil {
			log.WithError(err).WithFields(lf).Error("Error discovering RDS instances")
		}
		cfg.Add(instances...)

		clusters, err := d.discoverClusters(ctx, client, region)
		if err != nil {
			log.WithError(err).WithFields(lf).Error("Error discovering Aurora clusters")
		}
		cfg.Add(clusters...)

		log.WithFields(log.Fields{
			"region":    region,
			"instances": len(instances),
			"clusters":  len(clusters),
		}).Info("Finished region")
	}

	now := time.Now
	if d.Now != nil {
		now = d.Now
	}

	cfg.Metadata = &dbconfig.Metadata{
		GeneratedAt:    now().UTC().Truncate(time.Second),
		RegionsScanned: d.Regions,
		TagFilters:     maps.Clone(d.filters()),
	}

	return cfg
}

// discoverInstances drains the instance paginator. Any page error discards
// the whole listing for the region.
func (d *Discoverer) discoverInstances(ctx context.Context, client rdsClient, region string) ([]dbconfig.Database, error) {
	entries := make([]dbconfig.Database, 0)
	paginator := rds.NewDescribeDBInstancesPaginator(client, &rds.DescribeDBInstancesInput{})

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}

		for _, instance := range page.DBInstances {
			tags, ok := d.matchingTags(ctx, client, instance.DBInstanceArn, instance.TagList)
			if !ok {
				continue
			}

			entries = append(entries, instanceEntry(instance, tags, region))
		}
	}

	return entries, nil
}

func (d *Discoverer) discoverClusters(ctx context.Context, client rdsClient, region string) ([]dbconfig.Database, error) {
	entries := make([]dbconfig.Database, 0)
	paginator := rds.NewDescribeDBClustersPaginator(client, &rds.DescribeDBClustersInput{})

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}

		for _, cluster := range page.DBClusters {
			tags, ok := d.matchingTags(ctx, client, cluster.DBClusterArn, cluster.TagList)
			if !ok {
				continue
			}

			entries = append(entries, clusterEntry(cluster, tags, region))
		}
	}

	return entries, nil
}

var errNoARN = errors.New("resource has no ARN")

// matchingTags fetches the tags of a resource and reports whether they satisfy
// every filter. A failed lookup never matches.
func (d *Discoverer) matchingTags(ctx context.Context, client rdsClient, arn *string, inline []types.Tag) (map[string]string, bool) {
	tags := rdsTagsToMap(inline)

	listed, err := listTags(ctx, client, arn)
	if err != nil {
		log.WithError(err).WithField("arn", aws.ToString(arn)).Debug("Could not list tags, skipping resource")
		return nil, false
	}
	maps.Copy(tags, listed)

	for k, want := range d.filters() {
		if got, ok := tags[k]; !ok || got != want {
			return nil, false
		}
	}

	return tags, true
}

func listTags(ctx context.Context, client rdsClient, arn *string) (map[string]string, error) {
	if arn == nil || *arn == "" {
		return nil, errNoARN
	}

	out, err := client.ListTagsForResource(ctx, &rds.ListTagsForResourceInput{
		ResourceName: arn,
	})
	if err != nil {
		return nil, err
	}

	return rdsTagsToMap(out.TagList), nil
}
