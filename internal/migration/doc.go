// Package migration applies versioned schema changes described by a manifest.
//
// A manifest maps logical database keys to numbered versions, each holding
// the SQL commands that bring a database from the previous version to this
// one. The version a database file has reached is its own PRAGMA
// user_version; nothing else is persisted.
//
// # Manifest Format
//
// JSON, or YAML when the file ends in .yaml or .yml:
//
//	{
//	  "main": {
//	    "order": 1,
//	    "versions": {
//	      "1": {"commands": ["CREATE TABLE t (x INTEGER)"]},
//	      "2": {
//	        "commands": ["INSERT INTO t SELECT v FROM ref.seed"],
//	        "attachments": ["ref"],
//	        "vacuum": true,
//	        "skipOnError": false
//	      }
//	    }
//	  }
//	}
//
// Only "commands" is required. Keys run in ascending "order", then by name.
//
// # Parsing
//
// Parsing never fails on a single bad entry. A version whose id is not a
// positive integer is dropped. A version with missing or malformed commands
// is dropped together with every higher version of the same key. Optional
// fields of the wrong type fall back to their defaults. Every such decision
// is recorded as a Diagnostic on the Plan and copied into the Report.
//
// # Applying
//
// For each key the runner opens the file (never creating it), reads
// user_version and applies each higher version in ascending order:
//
//  1. Attach the version's auxiliary schemas (alias = attachment key)
//  2. Run its commands in order inside one transaction, stopping at the
//     first failure
//  3. On success, or on failure with skipOnError, set user_version and
//     VACUUM if requested, outside the transaction
//  4. On failure without skipOnError, leave the remaining versions of this
//     key unattempted and move on to the next key
//
// A key whose file does not exist is reported as key-missing and skipped.
// Running the same manifest again is a no-op.
//
// # Reports
//
// The runner never returns an error. Every outcome is in the Report:
//
//	report := runner.ApplyFile(ctx, "manifest.json")
//	if report.Failed() > 0 {
//	    log.Warn("migrations incomplete", "failed", report.Failed())
//	}
package migration
