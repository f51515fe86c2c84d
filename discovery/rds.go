package discovery

import (
	"context"
	"slices"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/rds"
	"github.com/aws/aws-sdk-go-v2/service/rds/types"
	"github.com/awsdbmon/cli/dbconfig"
)

// rdsClient is the part of the RDS API discovery needs
type rdsClient interface {
	DescribeDBInstances(ctx context.Context, params *rds.DescribeDBInstancesInput, optFns ...func(*rds.Options)) (*rds.DescribeDBInstancesOutput, error)
	DescribeDBClusters(ctx context.Context, params *rds.DescribeDBClustersInput, optFns ...func(*rds.Options)) (*rds.DescribeDBClustersOutput, error)
	ListTagsForResource(ctx context.Context, params *rds.ListTagsForResourceInput, optFns ...func(*rds.Options)) (*rds.ListTagsForResourceOutput, error)
}

// NewRDSClient creates an RDS client from an AWS config
func NewRDSClient(cfg aws.Config) *rds.Client {
	return rds.NewFromConfig(cfg, func(o *rds.Options) {
		o.RetryMode = aws.RetryModeAdaptive
	})
}

const (
	statusAvailable = "available"
	defaultUser     = "admin"
	unknown         = "unknown"
)

// Tag keys that are consumed by discovery and not copied into labels
var reservedTags = []string{"Environment", "env", "monitor"}

// classify maps an RDS engine string onto a bucket. Engines that are neither
// MySQL nor PostgreSQL keep their literal name and end up in no bucket.
func classify(engine string) dbconfig.Engine {
	switch {
	case strings.Contains(engine, "mysql"):
		return dbconfig.EngineMySQL
	case strings.Contains(engine, "postgres"):
		return dbconfig.EnginePostgreSQL
	default:
		return dbconfig.Engine(engine)
	}
}

func rdsTagsToMap(tags []types.Tag) map[string]string {
	tagsMap := make(map[string]string)

	for _, tag := range tags {
		if tag.Key != nil && tag.Value != nil {
			tagsMap[*tag.Key] = *tag.Value
		}
	}

	return tagsMap
}

func secretPath(provider dbconfig.Provider, region, identifier string) string {
	return "/" + string(provider) + "/" + region + "/" + identifier + "/newrelic"
}

// baseLabels seeds labels from tags. Environment comes from the Environment
// tag, then env, then "unknown".
func baseLabels(tags map[string]string, region, engine, engineVersion string) map[string]string {
	env, ok := tags["Environment"]
	if !ok {
		env, ok = tags["env"]
	}
	if !ok {
		env = unknown
	}

	if engineVersion == "" {
		engineVersion = unknown
	}

	return map[string]string{
		"environment":    env,
		"region":         region,
		"engine":         engine,
		"engine_version": engineVersion,
	}
}

func addCustomLabels(labels, tags map[string]string) {
	for k, v := range tags {
		if isReservedTag(k) {
			continue
		}
		labels[k] = v
	}
}

func isReservedTag(key string) bool {
	return slices.Contains(reservedTags, key)
}

func port(p *int32, engine dbconfig.Engine) *dbconfig.Number {
	if p != nil && *p != 0 {
		return dbconfig.Int(int(*p))
	}

	return dbconfig.Int(engine.DefaultPort())
}

func masterUser(u *string) string {
	if u == nil || *u == "" {
		return defaultUser
	}

	return *u
}

func instanceEntry(instance types.DBInstance, tags map[string]string, region string) dbconfig.Database {
	engine := aws.ToString(instance.Engine)
	dbType := classify(engine)
	id := aws.ToString(instance.DBInstanceIdentifier)

	conn := &dbconfig.Connection{}
	if instance.Endpoint != nil {
		conn.Endpoint = aws.ToString(instance.Endpoint.Address)
		conn.Port = port(instance.Endpoint.Port, dbType)
	} else {
		conn.Port = port(nil, dbType)
	}

	instanceClass := aws.ToString(instance.DBInstanceClass)
	if instanceClass == "" {
		instanceClass = unknown
	}

	labels := baseLabels(tags, region, engine, aws.ToString(instance.EngineVersion))
	labels["instance_class"] = instanceClass
	labels["multi_az"] = strconv.FormatBool(aws.ToBool(instance.MultiAZ))
	addCustomLabels(labels, tags)

	return dbconfig.Database{
		Name:       id,
		Enabled:    dbconfig.Bool(aws.ToString(instance.DBInstanceStatus) == statusAvailable),
		Type:       dbType,
		Provider:   dbconfig.ProviderRDS,
		Connection: conn,
		Credentials: &dbconfig.Credentials{
			User:           masterUser(instance.MasterUsername),
			PasswordSource: dbconfig.SourceSecretsManager,
			PasswordKey:    secretPath(dbconfig.ProviderRDS, region, id),
		},
		Monitoring: &dbconfig.Monitoring{
			CollectInventory:      dbconfig.Bool(true),
			ExtendedMetrics:       dbconfig.Bool(true),
			CollectRDSMetrics:     dbconfig.Bool(true),
			EnableQueryMonitoring: dbconfig.Bool(true),
		},
		TLS: &dbconfig.TLS{
			Enabled: true,
		},
		Labels: labels,
	}
}

func clusterEntry(cluster types.DBCluster, tags map[string]string, region string) dbconfig.Database {
	engine := aws.ToString(cluster.Engine)
	dbType := classify(engine)
	id := aws.ToString(cluster.DBClusterIdentifier)

	labels := baseLabels(tags, region, engine, aws.ToString(cluster.EngineVersion))
	labels["cluster_type"] = "aurora"
	labels["ha_enabled"] = "true"
	addCustomLabels(labels, tags)

	return dbconfig.Database{
		Name:     id,
		Enabled:  dbconfig.Bool(aws.ToString(cluster.Status) == statusAvailable),
		Type:     dbType,
		Provider: dbconfig.ProviderAurora,
		Connection: &dbconfig.Connection{
			ClusterEndpoint: aws.ToString(cluster.Endpoint),
			ReaderEndpoint:  aws.ToString(cluster.ReaderEndpoint),
			Port:            port(cluster.Port, dbType),
		},
		Credentials: &dbconfig.Credentials{
			User:           masterUser(cluster.MasterUsername),
			PasswordSource: dbconfig.SourceSecretsManager,
			PasswordKey:    secretPath(dbconfig.ProviderAurora, region, id),
			Region:         region,
		},
		Monitoring: &dbconfig.Monitoring{
			CollectInventory:      dbconfig.Bool(true),
			ExtendedMetrics:       dbconfig.Bool(true),
			CollectAuroraMetrics:  dbconfig.Bool(true),
			MonitorReaders:        dbconfig.Bool(true),
			EnableQueryMonitoring: dbconfig.Bool(true),
		},
		TLS: &dbconfig.TLS{
			Enabled:                 true,
			VerifyServerCertificate: dbconfig.Bool(true),
		},
		Labels: labels,
	}
}
