package transform

import (
	"fmt"
	"io"

	"github.com/awsdbmon/cli/dbconfig"
)

// MaskedPassword replaces passwords in dry-run output
const MaskedPassword = "********"

// WriteReport prints the per-engine counts and one warning per database whose
// credentials could not be resolved. Only service names are printed.
func WriteReport(w io.Writer, o *Outcome) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Transformation complete:")
	fmt.Fprintf(w, "  MySQL databases: %d\n", o.Count(dbconfig.EngineMySQL))
	fmt.Fprintf(w, "  PostgreSQL databases: %d\n", o.Count(dbconfig.EnginePostgreSQL))

	if len(o.Failures) == 0 {
		return
	}

	for _, f := range o.Failures {
		name := f.ServiceName
		if name == "" {
			name = "unknown"
		}
		fmt.Fprintf(w, "\nWARNING: Failed to resolve credentials for database: %v\n", name)
	}

	fmt.Fprintf(w, "\nTotal credential resolution errors: %d\n", len(o.Failures))
	fmt.Fprintln(w, "Please check your AWS credentials and ensure the secrets/parameters exist.")
}

// Masked returns a copy of cfg with the license key and every password
// replaced, for display
func Masked(cfg *dbconfig.FlatConfig) *dbconfig.FlatConfig {
	masked := *cfg
	if cfg.LicenseKeyConfigured() {
		masked.LicenseKey = MaskedPassword
	}
	masked.MySQL = maskAll(cfg.MySQL)
	masked.PostgreSQL = maskAll(cfg.PostgreSQL)

	return &masked
}

func maskAll(dbs []dbconfig.FlatDatabase) []dbconfig.FlatDatabase {
	if dbs == nil {
		return nil
	}

	out := make([]dbconfig.FlatDatabase, len(dbs))
	for i, db := range dbs {
		db.Password = MaskedPassword
		out[i] = db
	}

	return out
}
