// Package migrations embeds the default migration manifest into the binary.
//
// The CLI falls back to it when neither --manifest nor migrations.manifest
// is set, so a fresh install can bring the default database up to date
// without any files beside the executable.
package migrations

import _ "embed"

// ManifestName is the file name of the embedded manifest.
const ManifestName = "manifest.json"

// Manifest is the embedded default manifest (JSON).
//
//go:embed manifest.json
var Manifest []byte
