package ipc

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/tagfsd/tagfsd/internal/graph"
	"github.com/tagfsd/tagfsd/internal/tagadapter"
)

func buildFixtureGraph(t *testing.T) (*graph.Graph, string) {
	t.Helper()
	tmp := t.TempDir()
	root := filepath.Join(tmp, "root")
	if err := os.MkdirAll(filepath.Join(root, "a"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "a", "x.txt"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "b.txt"), []byte("b"), 0644); err != nil {
		t.Fatal(err)
	}

	adapter := tagadapter.NewFakeAdapter()
	adapter.SetTags(filepath.Join(root, "a", "x.txt"), "red", "blue")
	adapter.SetTags(filepath.Join(root, "b.txt"), "red")

	g := graph.New(adapter, nil)
	if err := g.Bootstrap(root); err != nil {
		t.Fatal(err)
	}
	return g, root
}

func startTestServer(t *testing.T, g *graph.Graph) (socketPath string, stop func()) {
	t.Helper()
	socketPath = filepath.Join(t.TempDir(), "tagfsd.sock")
	srv := NewServer(socketPath, g, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := os.Stat(socketPath); err == nil {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	return socketPath, func() {
		cancel()
		<-done
	}
}

func request(t *testing.T, socketPath, req string) string {
	t.Helper()
	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	if _, err := conn.Write([]byte(req)); err != nil {
		t.Fatal(err)
	}
	conn.(*net.UnixConn).CloseWrite()

	buf := make([]byte, bufferSize)
	n, _ := conn.Read(buf)
	return string(buf[:n])
}

func TestIPCEntries(t *testing.T) {
	g, root := buildFixtureGraph(t)
	socketPath, stop := startTestServer(t, g)
	defer stop()

	got := request(t, socketPath, "0x0red")
	want := filepath.Join(root, "a", "x.txt") + "\n" + filepath.Join(root, "b.txt") + "\n"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestIPCEntriesNoFiles(t *testing.T) {
	g, _ := buildFixtureGraph(t)
	socketPath, stop := startTestServer(t, g)
	defer stop()

	got := request(t, socketPath, "0x0nonexistent")
	if got != "No files\n" {
		t.Errorf("got %q, want %q", got, "No files\n")
	}
}

func TestIPCTags(t *testing.T) {
	g, _ := buildFixtureGraph(t)
	socketPath, stop := startTestServer(t, g)
	defer stop()

	got := request(t, socketPath, "0x1")
	want := "blue\nred\n"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestIPCRenameTag(t *testing.T) {
	g, root := buildFixtureGraph(t)
	socketPath, stop := startTestServer(t, g)
	defer stop()

	got := request(t, socketPath, "0x2red crimson")
	if !strings.HasPrefix(got, `Rename "red" to "crimson" for files :`+"\n") {
		t.Fatalf("unexpected header in %q", got)
	}
	for _, p := range []string{filepath.Join(root, "a", "x.txt"), filepath.Join(root, "b.txt")} {
		if !strings.Contains(got, p) {
			t.Errorf("expected %q in response %q", p, got)
		}
	}
}

func TestIPCRenameTagUnknown(t *testing.T) {
	g, _ := buildFixtureGraph(t)
	socketPath, stop := startTestServer(t, g)
	defer stop()

	got := request(t, socketPath, "0x2nonexistent other")
	if got != "No tag with this old name\n" {
		t.Errorf("got %q, want %q", got, "No tag with this old name\n")
	}
}

func TestIPCRenameTagBadRequest(t *testing.T) {
	g, _ := buildFixtureGraph(t)
	socketPath, stop := startTestServer(t, g)
	defer stop()

	got := request(t, socketPath, "0x2onlyonetoken")
	if got != "Bad request\n" {
		t.Errorf("got %q, want %q", got, "Bad request\n")
	}
}

func TestIPCInvalidCode(t *testing.T) {
	g, _ := buildFixtureGraph(t)
	socketPath, stop := startTestServer(t, g)
	defer stop()

	got := request(t, socketPath, "0x9whatever")
	if got != invalidRequest {
		t.Errorf("got %q, want %q", got, invalidRequest)
	}
}

func TestServeCleansUpSocketOnShutdown(t *testing.T) {
	g, _ := buildFixtureGraph(t)
	socketPath, stop := startTestServer(t, g)
	stop()

	if _, err := os.Stat(socketPath); !os.IsNotExist(err) {
		t.Errorf("expected socket to be removed after shutdown, stat err = %v", err)
	}
}
