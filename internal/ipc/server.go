// Package ipc implements the local socket server that accepts framed tag
// queries and rename requests and dispatches them to the tagged-entry
// graph. One connection is handled to completion before the next is
// accepted; every request is short enough that this is no bottleneck.
package ipc

import (
	"context"
	"errors"
	"net"
	"os"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/tagfsd/tagfsd/internal/graph"
	"github.com/tagfsd/tagfsd/internal/query"
)

const (
	bufferSize = 4096
	codeSize   = 3
)

const (
	codeEntries    = "0x0"
	codeTags       = "0x1"
	codeRenameTag  = "0x2"
	invalidRequest = "Invalid request\n"
)

// Server listens on a Unix domain socket and serves tag queries against a
// graph.Graph.
type Server struct {
	socketPath string
	graph      *graph.Graph
	log        logrus.FieldLogger
}

// NewServer returns a Server that will listen at socketPath once Serve is
// called.
func NewServer(socketPath string, g *graph.Graph, log logrus.FieldLogger) *Server {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Server{socketPath: socketPath, graph: g, log: log}
}

// Serve removes any stale socket file, binds the listener, and accepts
// connections until ctx is cancelled. The socket file is unlinked before
// returning.
func (s *Server) Serve(ctx context.Context) error {
	if err := removeStaleSocket(s.socketPath); err != nil {
		return err
	}

	ln, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return err
	}
	defer os.Remove(s.socketPath)

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.log.WithField("component", "ipc").WithError(err).Warn("accept failed")
			continue
		}
		s.handleConn(conn)
	}
}

func removeStaleSocket(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if info.Mode()&os.ModeSocket == 0 {
		return errors.New("ipc: refusing to remove non-socket at " + path)
	}
	return os.Remove(path)
}

func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()

	buf := make([]byte, bufferSize)
	n, err := conn.Read(buf)
	if err != nil {
		s.log.WithField("component", "ipc").WithError(err).Warn("read failed")
		return
	}
	if n < codeSize {
		writeLines(conn, invalidRequest)
		return
	}

	code := string(buf[:codeSize])
	payload := strings.TrimSpace(string(buf[codeSize:n]))

	switch code {
	case codeEntries:
		s.handleEntries(conn, payload)
	case codeTags:
		s.handleTags(conn)
	case codeRenameTag:
		s.handleRenameTag(conn, payload)
	default:
		writeLines(conn, invalidRequest)
	}
}

func (s *Server) handleEntries(conn net.Conn, expr string) {
	s.log.WithFields(logrus.Fields{"component": "ipc", "cmd": "entries", "payload": expr}).Debug("handling request")
	postfix := query.InfixToPostfix(expr)
	paths := query.Evaluate(postfix, s.graph)
	if len(paths) == 0 {
		writeLines(conn, "No files\n")
		return
	}
	writeLines(conn, paths...)
}

func (s *Server) handleTags(conn net.Conn) {
	s.log.WithFields(logrus.Fields{"component": "ipc", "cmd": "tags"}).Debug("handling request")
	writeLines(conn, s.graph.TagNames()...)
}

func (s *Server) handleRenameTag(conn net.Conn, payload string) {
	s.log.WithFields(logrus.Fields{"component": "ipc", "cmd": "rename_tag", "payload": payload}).Debug("handling request")

	tokens := strings.Fields(payload)
	if len(tokens) != 2 {
		writeLines(conn, "Bad request\n")
		return
	}
	old, newName := tokens[0], tokens[1]

	affected, err := s.graph.RenameTag(old, newName)
	if errors.Is(err, graph.ErrUnknownTag) {
		writeLines(conn, "No tag with this old name\n")
		return
	}
	if err != nil {
		s.log.WithField("component", "ipc").WithError(err).Warn("rename_tag failed")
		writeLines(conn, "Bad request\n")
		return
	}

	header := "Rename \"" + old + "\" to \"" + newName + "\" for files :"
	lines := make([]string, 0, len(affected)+1)
	lines = append(lines, header)
	lines = append(lines, affected...)
	writeLines(conn, lines...)
}

func writeLines(conn net.Conn, lines ...string) {
	var b strings.Builder
	for _, line := range lines {
		b.WriteString(line)
		if !strings.HasSuffix(line, "\n") {
			b.WriteByte('\n')
		}
	}
	conn.Write([]byte(b.String()))
}
