package watcher

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"

	"github.com/tagfsd/tagfsd/internal/config"
)

// ExcludeMatcher decides which paths under a watched root the watcher skips:
// excluded directories are not watched and events for excluded paths are
// dropped. The graph's bootstrap walk does not consult it; of the excluded
// paths, only the daemon's own project directory is also left out of that
// walk. Rules come from three sources, in the order
// they're loaded: the config.yaml exclude_patterns list, any .gitignore
// files discovered under the watched root (so a tree that is already a git
// checkout doesn't need its ignore rules duplicated), and any .tagfsdignore
// files, which exist for excludes that are specific to tag indexing and
// have nothing to do with git (e.g. a build-cache directory in a tree with
// no .gitignore at all).
type ExcludeMatcher struct {
	watchRoots      []string
	excludePatterns []string
	rules           []ignoreRule
}

type ignoreRule struct {
	pattern  string
	negation bool
	dirOnly  bool
	basePath string // directory the rule's ignore file was found in
}

// ignoreFileNames are the ignore-file basenames LoadPatterns looks for
// while walking a watched root, in precedence order (later entries are
// appended after, so a .tagfsdignore rule can override an earlier
// .gitignore negation for the same path).
var ignoreFileNames = []string{".gitignore", ".tagfsdignore"}

// NewExcludeMatcher creates a new matcher for the given watched roots.
// excludePatterns are the additional patterns configured in .tagfsd/config.yaml.
func NewExcludeMatcher(watchRoots []string, excludePatterns []string) *ExcludeMatcher {
	return &ExcludeMatcher{
		watchRoots:      watchRoots,
		excludePatterns: excludePatterns,
	}
}

// LoadPatterns loads the configured exclude patterns as global rules, then
// walks each watched root collecting .gitignore/.tagfsdignore rules. The
// daemon's own project directory (config.ProjectDirName) is always skipped:
// it holds config.yaml, not user content, and must never be indexed.
func (m *ExcludeMatcher) LoadPatterns() error {
	m.rules = nil

	for _, p := range m.excludePatterns {
		m.rules = append(m.rules, parsePattern(p, ""))
	}

	for _, root := range m.watchRoots {
		err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
			if err != nil {
				return nil // skip inaccessible entries
			}
			if info.IsDir() {
				base := info.Name()
				if base == ".git" || base == "node_modules" || base == "vendor" || base == config.ProjectDirName {
					return filepath.SkipDir
				}
				return nil
			}
			for _, name := range ignoreFileNames {
				if info.Name() != name {
					continue
				}
				rules, loadErr := loadIgnoreFile(path)
				if loadErr != nil {
					return nil // skip unreadable ignore files
				}
				m.rules = append(m.rules, rules...)
			}
			return nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// Match returns true if the given path is excluded from watching and from
// the event stream.
func (m *ExcludeMatcher) Match(path string) bool {
	for _, part := range splitPath(path) {
		if part == config.ProjectDirName {
			return true
		}
	}
	matched := false
	for _, rule := range m.rules {
		if matchRule(rule, path) {
			matched = !rule.negation
		}
	}
	return matched
}

func loadIgnoreFile(path string) ([]ignoreRule, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	basePath := filepath.Dir(path)
	var rules []ignoreRule

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		rules = append(rules, parsePattern(line, basePath))
	}
	return rules, scanner.Err()
}

func parsePattern(pattern string, basePath string) ignoreRule {
	rule := ignoreRule{basePath: basePath}

	if strings.HasPrefix(pattern, "!") {
		rule.negation = true
		pattern = pattern[1:]
	}

	if strings.HasSuffix(pattern, "/") {
		rule.dirOnly = true
		pattern = strings.TrimSuffix(pattern, "/")
	}

	rule.pattern = pattern
	return rule
}

func matchRule(rule ignoreRule, path string) bool {
	// dirOnly rules still match on path components, since paths are often
	// matched before a stat is available to confirm directory-ness.
	if rule.dirOnly {
		return matchDirOnlyPattern(rule, path)
	}

	return matchPattern(rule.pattern, rule.basePath, path)
}

func matchDirOnlyPattern(rule ignoreRule, path string) bool {
	return matchPattern(rule.pattern, rule.basePath, path)
}

func matchPattern(pattern string, basePath string, path string) bool {
	if strings.Contains(pattern, "/") {
		return matchRelativePattern(pattern, basePath, path)
	}

	// A pattern loaded from an ignore file only applies within that file's
	// directory tree.
	if basePath != "" {
		relPath, err := filepath.Rel(basePath, path)
		if err != nil || strings.HasPrefix(relPath, "..") {
			return false
		}
	}

	base := filepath.Base(path)
	if matched, _ := filepath.Match(pattern, base); matched {
		return true
	}

	parts := splitPath(path)
	for _, part := range parts {
		if matched, _ := filepath.Match(pattern, part); matched {
			return true
		}
	}

	return false
}

func matchRelativePattern(pattern string, basePath string, path string) bool {
	if strings.Contains(pattern, "**") {
		return matchDoubleStarPattern(pattern, basePath, path)
	}

	relPath := path
	if basePath != "" {
		var err error
		relPath, err = filepath.Rel(basePath, path)
		if err != nil {
			return false
		}
		if strings.HasPrefix(relPath, "..") {
			return false
		}
	}

	matched, _ := filepath.Match(pattern, relPath)
	return matched
}

func matchDoubleStarPattern(pattern string, basePath string, path string) bool {
	relPath := path
	if basePath != "" {
		var err error
		relPath, err = filepath.Rel(basePath, path)
		if err != nil {
			return false
		}
		if strings.HasPrefix(relPath, "..") {
			return false
		}
	}

	patternParts := splitPath(pattern)
	pathParts := splitPath(relPath)

	return matchParts(patternParts, pathParts)
}

func matchParts(patternParts, pathParts []string) bool {
	if len(patternParts) == 0 {
		return len(pathParts) == 0
	}

	if patternParts[0] == "**" {
		rest := patternParts[1:]
		for i := 0; i <= len(pathParts); i++ {
			if matchParts(rest, pathParts[i:]) {
				return true
			}
		}
		return false
	}

	if len(pathParts) == 0 {
		return false
	}

	matched, _ := filepath.Match(patternParts[0], pathParts[0])
	if !matched {
		return false
	}
	return matchParts(patternParts[1:], pathParts[1:])
}

func splitPath(path string) []string {
	path = filepath.ToSlash(path)
	parts := strings.Split(path, "/")
	var result []string
	for _, p := range parts {
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}
