package migration

import "errors"

// Domain-specific errors for migration planning and execution.
// These appear in Report reasons and diagnostics; the runner itself never
// returns an error.
var (
	// ErrInvalidManifest is returned by Parse when the document cannot be decoded.
	ErrInvalidManifest = errors.New("migration: invalid manifest")

	// ErrUnknownKey is recorded when the resolver has no path for a key.
	ErrUnknownKey = errors.New("migration: database key not registered")

	// ErrAttachmentMissing is recorded when an attachment's file does not exist.
	ErrAttachmentMissing = errors.New("migration: attachment file does not exist")

	// ErrVersionMismatch is recorded when user_version reads back different
	// from the value just written.
	ErrVersionMismatch = errors.New("migration: user_version read back differs")
)
