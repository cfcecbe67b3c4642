// Package tagadapter hosts the Tag Adapter external collaborator: reading
// and persisting the tag set attached to a filesystem path. The core graph
// only ever talks to the Adapter interface; this package supplies the one
// implementation that actually touches a filesystem (extended attributes)
// plus an in-memory fake for tests.
package tagadapter

// Adapter reads and writes the tag set associated with a filesystem path.
type Adapter interface {
	// ReadTags returns the tags attached to path. present is false when the
	// filesystem reports no tag attribute at all, distinct from an empty set
	// for logging purposes; callers that only care about set membership may
	// ignore it.
	ReadTags(path string) (tags map[string]struct{}, present bool, err error)

	// RenameTag replaces occurrences of old with new in path's tag
	// attribute. Idempotent if old is absent.
	RenameTag(path, old, new string) error
}
