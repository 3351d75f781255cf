package mqtt

import "strings"

// DefaultTopicPrefix is used when the configuration leaves topic_prefix empty.
const DefaultTopicPrefix = "sqlitestore"

// Topics builds the topics sqlitestore publishes to.
//
//	topics := mqtt.NewTopics("site-a/sqlitestore")
//	topics.MigrationKey("main")
//	// Returns: "site-a/sqlitestore/migrations/main"
type Topics struct {
	prefix string
}

// NewTopics returns a builder rooted at prefix. Surrounding slashes are
// trimmed; an empty prefix uses DefaultTopicPrefix.
func NewTopics(prefix string) Topics {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return Topics{prefix: prefix}
}

// Prefix returns the root of every topic.
func (t Topics) Prefix() string {
	if t.prefix == "" {
		return DefaultTopicPrefix
	}
	return t.prefix
}

// Status returns the retained online/offline status topic (also the LWT).
//
// Example: sqlitestore/status
func (t Topics) Status() string {
	return t.Prefix() + "/status"
}

// MigrationReport returns the retained topic holding the latest full report.
//
// Example: sqlitestore/migrations/report
func (t Topics) MigrationReport() string {
	return t.Prefix() + "/migrations/report"
}

// MigrationKey returns the retained topic holding the latest result for one
// logical database.
//
// Example: sqlitestore/migrations/main
func (t Topics) MigrationKey(key string) string {
	return t.Prefix() + "/migrations/" + sanitizeLevel(key)
}

// AllMigrations returns a wildcard subscription matching every migration topic.
//
// Example: sqlitestore/migrations/#
func (t Topics) AllMigrations() string {
	return t.Prefix() + "/migrations/#"
}

// sanitizeLevel makes s usable as a single topic level: the separator and
// the wildcards are replaced with underscores.
func sanitizeLevel(s string) string {
	if s == "" {
		return "_"
	}
	return strings.NewReplacer("/", "_", "+", "_", "#", "_").Replace(s)
}
