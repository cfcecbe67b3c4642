package debugdump

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/tagfsd/tagfsd/internal/graph"
	"github.com/tagfsd/tagfsd/internal/tagadapter"
)

func TestRenderDOT(t *testing.T) {
	tmp := t.TempDir()
	root := filepath.Join(tmp, "root")
	if err := os.MkdirAll(filepath.Join(root, "a"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "a", "x.txt"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	adapter := tagadapter.NewFakeAdapter()
	adapter.SetTags(filepath.Join(root, "a", "x.txt"), "red")

	g := graph.New(adapter, nil)
	if err := g.Bootstrap(root); err != nil {
		t.Fatal(err)
	}

	dot := RenderDOT(g.Snapshot())
	if !strings.HasPrefix(dot, "digraph tagfsd {") {
		t.Fatalf("expected digraph header, got %q", dot)
	}
	if !strings.Contains(dot, `label="red"`) {
		t.Errorf("expected a red tag node, got %s", dot)
	}
	if !strings.Contains(dot, `label="x.txt"`) {
		t.Errorf("expected an x.txt node, got %s", dot)
	}
	if !strings.HasSuffix(dot, "}\n") {
		t.Errorf("expected closing brace, got %q", dot)
	}
}

func TestRenderDOTEmptyGraph(t *testing.T) {
	dot := RenderDOT(nil)
	if dot != "digraph tagfsd {\n}\n" {
		t.Errorf("got %q", dot)
	}
}
