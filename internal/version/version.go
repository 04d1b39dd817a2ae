// Package version holds build and schema version constants.
package version

// Version is the current release of dossier.
var Version = "0.4.1"

// SchemaVersion tags every cached analysis record. Bumping it invalidates
// all previously cached records on read, regardless of remaining TTL.
const SchemaVersion = 3
