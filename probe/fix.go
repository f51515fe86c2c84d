package probe

import (
	"strings"
	"time"
)

// FixScriptName is where the remediation script is written
const FixScriptName = "fix-credentials.sh"

// FixScript turns recorded check errors into a shell script of remediation
// hints. Nothing in it is executed automatically, every suggestion is a
// comment for an operator to adapt.
func FixScript(errs []string, generated time.Time) string {
	lines := []string{
		"#!/bin/bash",
		"# Script to fix credential issues",
		"# Generated: " + generated.Format(time.RFC3339),
		"",
	}

	for _, e := range errs {
		name, detail, ok := strings.Cut(e, ": ")
		if !ok {
			continue
		}

		switch {
		case strings.Contains(detail, msgResolutionFailed):
			lines = append(lines,
				"# Fix credential resolution for: "+name,
				"# Check AWS credentials and ensure secrets/parameters exist",
				"# Example commands:",
				"# aws secretsmanager create-secret --name db-password --secret-string 'YOUR_PASSWORD'",
				"# aws ssm put-parameter --name /db/password --value 'YOUR_PASSWORD' --type SecureString",
				"",
			)
		case strings.HasPrefix(detail, msgMissingPrefix):
			lines = append(lines,
				"# Fix permissions for "+name,
				"# MySQL: GRANT "+strings.TrimPrefix(detail, msgMissingPrefix)+" ON *.* TO 'newrelic'@'%';",
				"",
			)
		case strings.Contains(detail, "Missing pg_monitor role"):
			lines = append(lines,
				"# Fix permissions for "+name,
				"# PostgreSQL: GRANT pg_monitor TO newrelic;",
				"",
			)
		}
	}

	return strings.Join(lines, "\n") + "\n"
}
