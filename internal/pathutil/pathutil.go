// Package pathutil splits absolute filesystem paths into the base/local
// halves the graph core works with, and resolves a local path down through
// a directory-child relation without ever falling back to an ancestor.
package pathutil

import (
	"fmt"
	"strings"
)

// ErrNotFound is returned by Resolve when some component of a local path has
// no matching child. Callers MUST NOT treat it as "use the last ancestor
// found so far" — that silent fallback is the known latent bug this package
// deliberately does not reproduce.
type ErrNotFound struct {
	Component string
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("pathutil: no child named %q", e.Component)
}

// SplitLocal strips the base prefix from an absolute path, leaving a local
// path that begins with the watched root's own basename.
func SplitLocal(absolute, base string) string {
	if !strings.HasPrefix(absolute, base) {
		return absolute
	}
	return absolute[len(base):]
}

// Components tokenizes a local path on '/', discarding an empty leading
// component produced when the local path starts with a separator.
func Components(local string) []string {
	parts := strings.Split(local, "/")
	if len(parts) > 0 && parts[0] == "" {
		parts = parts[1:]
	}
	return parts
}

// ChildResolver looks up the child of parent named name, following only
// directory-child edges. Implemented by the graph core.
type ChildResolver interface {
	Child(parent int, name string) (child int, ok bool)
}

// Resolve walks local's components under root, following r.Child at each
// step. The first component is the watched root's own basename and is
// skipped, matching the convention that local paths are rooted at it. It
// returns ErrNotFound the moment any component is missing rather than the
// last valid ancestor.
func Resolve(r ChildResolver, root int, local string) (int, error) {
	components := Components(local)
	if len(components) == 0 {
		return root, nil
	}

	current := root
	for _, name := range components[1:] {
		child, ok := r.Child(current, name)
		if !ok {
			return 0, &ErrNotFound{Component: name}
		}
		current = child
	}
	return current, nil
}

// ParentLocal returns the local path of the parent of local (everything
// but the final component) and the final component itself.
func ParentLocal(local string) (parent string, name string) {
	components := Components(local)
	if len(components) == 0 {
		return local, ""
	}
	name = components[len(components)-1]
	parent = strings.Join(components[:len(components)-1], "/")
	return parent, name
}
