// Package graph implements the tagged-entry graph: an in-memory,
// arena-indexed directory tree with a second bipartite layer of tags
// applied to files and directories, guarded by a single coarse lock shared
// by the writer (the supervisor's event loop) and readers (the IPC
// server's query evaluator).
package graph

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/tagfsd/tagfsd/internal/config"
	"github.com/tagfsd/tagfsd/internal/pathutil"
	"github.com/tagfsd/tagfsd/internal/query"
	"github.com/tagfsd/tagfsd/internal/tagadapter"
)

// ErrUnknownTag is returned by RenameTag when old does not name an existing tag.
var ErrUnknownTag = errors.New("no tag with this old name")

// NodeID identifies a node in the arena. It is the same handle type the
// query evaluator uses (query.EntryID), so graph snapshots satisfy
// query.Snapshot without a circular import.
type NodeID = query.EntryID

const noParent NodeID = -1

// Kind is one of the three node kinds the data model allows.
type Kind int

const (
	KindDirectory Kind = iota
	KindFile
	KindTag
)

func (k Kind) String() string {
	switch k {
	case KindDirectory:
		return "Directory"
	case KindFile:
		return "File"
	case KindTag:
		return "Tag"
	default:
		return "Unknown"
	}
}

// node is the arena entry. Directory/File nodes use parent, children and
// tags; Tag nodes use entries only.
type node struct {
	kind     Kind
	name     string
	parent   NodeID
	children map[string]NodeID  // Directory only
	tags     map[NodeID]struct{} // Directory/File: incoming tag edges
	entries  map[NodeID]struct{} // Tag: outgoing edges to entries
}

// Graph is the tagged-entry graph. Zero value is not usable; construct
// with New.
type Graph struct {
	mu       sync.Mutex
	nodes    []*node
	root     NodeID
	base     string
	tagIndex map[string]NodeID
	adapter  tagadapter.Adapter
	log      logrus.FieldLogger
}

// New returns an empty Graph. Call Bootstrap before any other operation.
func New(adapter tagadapter.Adapter, log logrus.FieldLogger) *Graph {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Graph{
		root:     noParent,
		tagIndex: make(map[string]NodeID),
		adapter:  adapter,
		log:      log,
	}
}

func (g *Graph) get(id NodeID) *node {
	return g.nodes[id]
}

func (g *Graph) alloc(n *node) NodeID {
	g.nodes = append(g.nodes, n)
	return NodeID(len(g.nodes) - 1)
}

func (g *Graph) free(id NodeID) {
	g.nodes[id] = nil
}

// Child returns the child of parent named name, following only
// directory-child edges. It implements pathutil.ChildResolver. Callers
// outside this package must hold no expectation of safety: it is exported
// solely to satisfy that interface and assumes the Graph's lock is already
// held by the caller of Resolve/AddSubpath/etc.
func (g *Graph) Child(parent int, name string) (int, bool) {
	nd := g.get(NodeID(parent))
	if nd == nil || nd.kind != KindDirectory {
		return 0, false
	}
	id, ok := nd.children[name]
	if !ok {
		return 0, false
	}
	return int(id), true
}

// Root returns the root node's handle. Only valid after Bootstrap.
func (g *Graph) Root() NodeID {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.root
}

// Bootstrap resets the graph and builds it from scratch by walking
// absoluteRoot. Filesystem errors on individual entries are logged and
// skipped; only a failure to stat the root itself aborts bootstrap.
func (g *Graph) Bootstrap(absoluteRoot string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	info, err := os.Stat(absoluteRoot)
	if err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("bootstrap: %s is not a directory", absoluteRoot)
	}

	g.base = filepath.Dir(filepath.Clean(absoluteRoot)) + string(os.PathSeparator)
	g.nodes = nil
	g.tagIndex = make(map[string]NodeID)

	rootName := filepath.Base(filepath.Clean(absoluteRoot))
	g.root = g.alloc(&node{
		kind:     KindDirectory,
		name:     rootName,
		parent:   noParent,
		children: make(map[string]NodeID),
		tags:     make(map[NodeID]struct{}),
	})
	g.refreshTagsLocked(g.root)

	return filepath.Walk(absoluteRoot, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			g.log.WithField("path", path).WithError(err).Warn("bootstrap: skipping unreadable entry")
			return nil
		}
		if path == absoluteRoot {
			return nil
		}
		if info.IsDir() && info.Name() == config.ProjectDirName {
			// The daemon's own project directory holds config, not user content.
			return filepath.SkipDir
		}
		local := pathutil.SplitLocal(path, g.base)
		if addErr := g.addSubpathLocked(local); addErr != nil {
			g.log.WithField("path", path).WithError(addErr).Warn("bootstrap: skipping entry")
		}
		return nil
	})
}

// Base returns the base path prefix (everything above the watched root)
// established by the last Bootstrap.
func (g *Graph) Base() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.base
}

func (g *Graph) addSubpathLocked(local string) error {
	components := pathutil.Components(local)
	if len(components) <= 1 {
		// The path is the root itself; nothing to add.
		return nil
	}

	current := g.root
	buildPath := g.base + components[0]
	for _, name := range components[1:] {
		buildPath = buildPath + "/" + name

		parentNode := g.get(current)
		if parentNode.kind != KindDirectory {
			return fmt.Errorf("add_subpath: %s: parent is not a directory", buildPath)
		}
		if childID, ok := parentNode.children[name]; ok {
			current = childID
			continue
		}

		info, err := os.Stat(buildPath)
		if err != nil {
			return fmt.Errorf("add_subpath: stat %s: %w", buildPath, err)
		}

		kind := KindFile
		if info.IsDir() {
			kind = KindDirectory
		}
		newNode := &node{kind: kind, name: name, parent: current, tags: make(map[NodeID]struct{})}
		if kind == KindDirectory {
			newNode.children = make(map[string]NodeID)
		}
		newID := g.alloc(newNode)
		parentNode.children[name] = newID
		g.refreshTagsLocked(newID)
		current = newID
	}
	return nil
}

// AddSubpath walks local's components under the root, creating any
// Directory or File nodes missing along the way and refreshing tags on
// newly created nodes. Re-adding an existing path is a structural no-op.
func (g *Graph) AddSubpath(local string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.addSubpathLocked(local)
}

// Resolve walks local's components under the root, returning the entry's
// handle or pathutil.ErrNotFound the moment a component is missing.
func (g *Graph) Resolve(local string) (NodeID, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.resolveLocked(local)
}

func (g *Graph) resolveLocked(local string) (NodeID, error) {
	id, err := pathutil.Resolve(g, int(g.root), local)
	if err != nil {
		return noParent, err
	}
	return NodeID(id), nil
}

func (g *Graph) refreshTagsLocked(entry NodeID) {
	nd := g.get(entry)
	path := g.absoluteLocked(entry)

	existing := make(map[string]NodeID, len(nd.tags))
	for tagID := range nd.tags {
		existing[g.get(tagID).name] = tagID
	}

	fresh, present, err := g.adapter.ReadTags(path)
	if err != nil {
		g.log.WithField("path", path).WithError(err).Warn("refresh_tags: adapter read failed, treating as absent")
		fresh = nil
	} else if !present {
		g.log.WithField("path", path).Debug("refresh_tags: no tag attribute present")
	}
	if fresh == nil {
		fresh = map[string]struct{}{}
	}

	for name, tagID := range existing {
		if _, ok := fresh[name]; !ok {
			g.detachTagLocked(tagID, entry)
		}
	}
	for name := range fresh {
		if _, ok := existing[name]; ok {
			continue
		}
		tagID, ok := g.tagIndex[name]
		if !ok {
			tagID = g.alloc(&node{kind: KindTag, name: name, parent: noParent, entries: make(map[NodeID]struct{})})
			g.tagIndex[name] = tagID
		}
		g.attachTagLocked(tagID, entry)
	}
}

// RefreshTags reconciles entry's in-graph tag edges with the adapter's
// current view of its tags, creating or garbage-collecting Tag nodes as
// needed.
func (g *Graph) RefreshTags(entry NodeID) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.refreshTagsLocked(entry)
	return nil
}

func (g *Graph) attachTagLocked(tagID, entry NodeID) {
	tagNode := g.get(tagID)
	tagNode.entries[entry] = struct{}{}
	entryNode := g.get(entry)
	if entryNode.tags == nil {
		entryNode.tags = make(map[NodeID]struct{})
	}
	entryNode.tags[tagID] = struct{}{}
}

func (g *Graph) detachTagLocked(tagID, entry NodeID) {
	tagNode := g.get(tagID)
	delete(tagNode.entries, entry)
	delete(g.get(entry).tags, tagID)
	if len(tagNode.entries) == 0 {
		delete(g.tagIndex, tagNode.name)
		g.free(tagID)
	}
}

// MoveEntry resolves new_parent = resolve(parent_of(newLocal)). If it
// equals entry's current parent this is a rename-in-place; otherwise entry
// is reparented. Tag edges are untouched either way. Returns
// pathutil.ErrNotFound if the new parent cannot be resolved yet (caller
// should log and drop the event).
func (g *Graph) MoveEntry(entry NodeID, newLocal string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.moveEntryLocked(entry, newLocal)
}

func (g *Graph) moveEntryLocked(entry NodeID, newLocal string) error {
	nd := g.get(entry)
	parentLocal, newName := pathutil.ParentLocal(newLocal)
	newParent, err := g.resolveLocked(parentLocal)
	if err != nil {
		return err
	}

	// Whether this is a rename-in-place or a reparent, the mechanics are
	// the same: unlink from the old parent's children, rename, relink under
	// the new parent (which may be the same directory).
	delete(g.get(nd.parent).children, nd.name)
	nd.name = newName
	nd.parent = newParent
	g.get(newParent).children[newName] = entry
	return nil
}

// RemoveSubtree deletes entry and, if it is a Directory, every descendant
// directory and file, then garbage-collects any tag that reaches
// out-degree zero as a result.
func (g *Graph) RemoveSubtree(entry NodeID) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.removeSubtreeLocked(entry)
}

func (g *Graph) removeSubtreeLocked(entry NodeID) error {
	var toRemove []NodeID
	checkTags := make(map[NodeID]struct{})
	g.collectSubtree(entry, &toRemove, checkTags)

	nd := g.get(entry)
	if nd.parent != noParent {
		delete(g.get(nd.parent).children, nd.name)
	}

	for i := len(toRemove) - 1; i >= 0; i-- {
		id := toRemove[i]
		n := g.get(id)
		for tagID := range n.tags {
			delete(g.get(tagID).entries, id)
			checkTags[tagID] = struct{}{}
		}
		g.free(id)
	}

	for tagID := range checkTags {
		tagNode := g.nodes[tagID]
		if tagNode == nil {
			continue
		}
		if len(tagNode.entries) == 0 {
			delete(g.tagIndex, tagNode.name)
			g.free(tagID)
		}
	}
	return nil
}

func (g *Graph) collectSubtree(entry NodeID, out *[]NodeID, checkTags map[NodeID]struct{}) {
	*out = append(*out, entry)
	nd := g.get(entry)
	if nd.kind == KindDirectory {
		for _, childID := range nd.children {
			g.collectSubtree(childID, out, checkTags)
		}
	}
	for tagID := range nd.tags {
		checkTags[tagID] = struct{}{}
	}
}

func (g *Graph) absoluteLocked(entry NodeID) string {
	var parts []string
	for id := entry; id != noParent; {
		nd := g.get(id)
		parts = append(parts, nd.name)
		id = nd.parent
	}
	// parts is leaf-to-root; reverse to root-to-leaf.
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	return g.base + filepath.Join(parts...)
}

// Absolute returns entry's absolute path by walking parent edges up to the
// root and joining with the base path. It implements query.Snapshot.
func (g *Graph) Absolute(entry NodeID) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.absoluteLocked(entry)
}

// EntriesForTag returns the set of entries tagName is attached to, or an
// empty set if tagName is unknown. It implements query.Snapshot.
func (g *Graph) EntriesForTag(tagName string) map[NodeID]struct{} {
	g.mu.Lock()
	defer g.mu.Unlock()
	tagID, ok := g.tagIndex[tagName]
	if !ok {
		return nil
	}
	out := make(map[NodeID]struct{}, len(g.get(tagID).entries))
	for id := range g.get(tagID).entries {
		out[id] = struct{}{}
	}
	return out
}

// RenameTag renames tag old to newName everywhere: in TagIndex, on the Tag
// node itself, and on disk (via the adapter) for every entry currently
// carrying it. Returns the sorted absolute paths of affected entries.
// Renaming to the same name is a no-op that still reports the affected
// paths. Returns ErrUnknownTag if old does not exist.
func (g *Graph) RenameTag(old, newName string) ([]string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.renameTagLocked(old, newName)
}

func (g *Graph) renameTagLocked(old, newName string) ([]string, error) {
	tagID, ok := g.tagIndex[old]
	if !ok {
		return nil, ErrUnknownTag
	}
	if old == newName {
		return g.affectedPathsLocked(tagID), nil
	}

	tagNode := g.get(tagID)
	delete(g.tagIndex, old)
	tagNode.name = newName
	g.tagIndex[newName] = tagID

	paths := g.affectedPathsLocked(tagID)
	for entry := range tagNode.entries {
		abs := g.absoluteLocked(entry)
		if err := g.adapter.RenameTag(abs, old, newName); err != nil {
			g.log.WithField("path", abs).WithError(err).Warn("rename_tag: adapter persist failed")
		}
	}
	return paths, nil
}

func (g *Graph) affectedPathsLocked(tagID NodeID) []string {
	tagNode := g.get(tagID)
	paths := make([]string, 0, len(tagNode.entries))
	for entry := range tagNode.entries {
		paths = append(paths, g.absoluteLocked(entry))
	}
	sort.Strings(paths)
	return paths
}

// DebugNode is a point-in-time snapshot of one arena slot, exported only for
// diagnostics (internal/debugdump).
type DebugNode struct {
	ID      NodeID
	Kind    Kind
	Name    string
	Parent  NodeID
	Tags    []NodeID
	Entries []NodeID
}

// Snapshot returns a point-in-time copy of every live node, for rendering a
// debug DOT graph.
func (g *Graph) Snapshot() []DebugNode {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]DebugNode, 0, len(g.nodes))
	for id, n := range g.nodes {
		if n == nil {
			continue
		}
		dn := DebugNode{ID: NodeID(id), Kind: n.kind, Name: n.name, Parent: n.parent}
		for t := range n.tags {
			dn.Tags = append(dn.Tags, t)
		}
		for e := range n.entries {
			dn.Entries = append(dn.Entries, e)
		}
		out = append(out, dn)
	}
	return out
}

// Counts returns the number of live nodes by kind, for the periodic debug
// log snapshot.
func (g *Graph) Counts() (directories, files, tags int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, n := range g.nodes {
		if n == nil {
			continue
		}
		switch n.kind {
		case KindDirectory:
			directories++
		case KindFile:
			files++
		case KindTag:
			tags++
		}
	}
	return directories, files, tags
}

// TagNames returns every known tag name, sorted alphabetically.
func (g *Graph) TagNames() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	names := make([]string, 0, len(g.tagIndex))
	for name := range g.tagIndex {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
