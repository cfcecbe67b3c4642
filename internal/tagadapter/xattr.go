package tagadapter

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pkg/xattr"
)

// tagsAttr is the extended-attribute name tags are stored under, in the
// user namespace so no special privilege is required to read or write it.
const tagsAttr = "user.tags"

// XattrAdapter implements Adapter against real filesystem extended
// attributes, storing the tag set as a comma-separated list.
type XattrAdapter struct{}

// NewXattrAdapter returns the extended-attribute backed Adapter.
func NewXattrAdapter() *XattrAdapter {
	return &XattrAdapter{}
}

func (a *XattrAdapter) ReadTags(path string) (map[string]struct{}, bool, error) {
	buf, err := xattr.LGet(path, tagsAttr)
	if err != nil {
		if xattr.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("tagadapter: read %s: %w", path, err)
	}

	tags := make(map[string]struct{})
	for _, tag := range strings.Split(string(buf), ",") {
		tag = strings.TrimSpace(tag)
		if tag != "" {
			tags[tag] = struct{}{}
		}
	}
	return tags, true, nil
}

func (a *XattrAdapter) RenameTag(path, old, new string) error {
	if old == new {
		return nil
	}

	tags, present, err := a.ReadTags(path)
	if err != nil {
		return err
	}
	if !present {
		return nil
	}
	if _, ok := tags[old]; !ok {
		return nil
	}

	delete(tags, old)
	tags[new] = struct{}{}

	names := make([]string, 0, len(tags))
	for t := range tags {
		names = append(names, t)
	}
	sort.Strings(names)

	value := strings.Join(names, ",")
	if err := xattr.LSet(path, tagsAttr, []byte(value)); err != nil {
		return fmt.Errorf("tagadapter: rename %q to %q on %s: %w", old, new, path, err)
	}
	return nil
}
