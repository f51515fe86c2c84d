package probe

import (
	"context"
	"fmt"
	"io"

	"github.com/awsdbmon/cli/credentials"
	"github.com/awsdbmon/cli/dbconfig"
)

const (
	msgLicenseKeyMissing    = "New Relic license key not configured"
	msgResolutionFailed     = "Credential resolution failed"
	msgResolutionFailedLine = "Failed to resolve credentials"
)

// Marks used in the user facing summary
var (
	MarkOK      = "✓"
	MarkFailed  = "✗"
	MarkWarning = "⚠"
)

// Report accumulates the outcome of a credential check. It is valid when no
// errors were recorded, warnings never affect validity.
type Report struct {
	Errors   []string
	Warnings []string
}

func (r *Report) Valid() bool {
	return len(r.Errors) == 0
}

// Checker walks a flat config, checking the account settings and probing
// every database. Progress is written to Out as it happens.
type Checker struct {
	Prober interface {
		Probe(ctx context.Context, engine dbconfig.Engine, db dbconfig.FlatDatabase) Result
	}
	// SkipConnectionTest only checks the configuration
	SkipConnectionTest bool
	Out                io.Writer
	// Style decorates the marks, it may be nil
	Style func(mark string) string
}

func (c *Checker) mark(m string) string {
	if c.Style == nil {
		return m
	}

	return c.Style(m)
}

// Check never stops early: every database is checked and every failure
// recorded
func (c *Checker) Check(ctx context.Context, cfg *dbconfig.FlatConfig) *Report {
	r := &Report{
		Errors:   []string{},
		Warnings: []string{},
	}

	if cfg.LicenseKeyConfigured() {
		fmt.Fprintf(c.Out, "%v New Relic license key configured\n", c.mark(MarkOK))
	} else {
		r.Errors = append(r.Errors, msgLicenseKeyMissing)
	}

	c.checkBucket(ctx, r, dbconfig.EngineMySQL, "MySQL", cfg.MySQL)
	c.checkBucket(ctx, r, dbconfig.EnginePostgreSQL, "PostgreSQL", cfg.PostgreSQL)

	return r
}

func (c *Checker) checkBucket(ctx context.Context, r *Report, engine dbconfig.Engine, label string, dbs []dbconfig.FlatDatabase) {
	if len(dbs) == 0 {
		return
	}

	fmt.Fprintf(c.Out, "\nValidating %d %v database(s)...\n", len(dbs), label)

	for _, db := range dbs {
		name := db.Name()
		fmt.Fprintf(c.Out, "  Checking %v... ", name)

		if credentials.IsSentinel(db.User) || credentials.IsSentinel(db.Password) {
			fmt.Fprintf(c.Out, "%v %v\n", c.mark(MarkFailed), msgResolutionFailedLine)
			r.Errors = append(r.Errors, name+": "+msgResolutionFailed)
			continue
		}

		if c.SkipConnectionTest {
			fmt.Fprintf(c.Out, "%v Credentials resolved (connection test skipped)\n", c.mark(MarkOK))
			continue
		}

		res := c.Prober.Probe(ctx, engine, db)
		r.Warnings = append(r.Warnings, res.Warnings...)

		if res.OK {
			fmt.Fprintf(c.Out, "%v %v\n", c.mark(MarkOK), res.Message)
			continue
		}

		fmt.Fprintf(c.Out, "%v %v\n", c.mark(MarkFailed), res.Message)
		r.Errors = append(r.Errors, name+": "+res.Message)
	}
}

// WriteSummary prints warnings and errors after a check
func (c *Checker) WriteSummary(r *Report) {
	fmt.Fprintln(c.Out)
	fmt.Fprintln(c.Out, rule)
	fmt.Fprintln(c.Out, "VALIDATION SUMMARY")
	fmt.Fprintln(c.Out, rule)

	if len(r.Warnings) > 0 {
		fmt.Fprintf(c.Out, "\nWarnings (%d):\n", len(r.Warnings))
		for _, w := range r.Warnings {
			fmt.Fprintf(c.Out, "  %v %v\n", c.mark(MarkWarning), w)
		}
	}

	if len(r.Errors) > 0 {
		fmt.Fprintf(c.Out, "\nErrors (%d):\n", len(r.Errors))
		for _, e := range r.Errors {
			fmt.Fprintf(c.Out, "  %v %v\n", c.mark(MarkFailed), e)
		}
		return
	}

	fmt.Fprintf(c.Out, "\n%v All credentials validated successfully!\n", c.mark(MarkOK))
}

const rule = "============================================================"

// WriteHeader prints the banner shown before a check
func (c *Checker) WriteHeader() {
	fmt.Fprintln(c.Out, rule)
	fmt.Fprintln(c.Out, "Database Credential Validation")
	fmt.Fprintln(c.Out, rule)
}
