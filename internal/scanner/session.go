package scanner

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/whearn17/FTP-Smasher/internal/store"
)

// The fixed anonymous identity. Anything email-shaped is accepted as the
// password by convention.
const (
	anonymousUser = "anonymous"
	anonymousPass = "anonymous@example.com"
)

// Conn is the FTP connection a session drives. *ftpconn.Client satisfies it;
// tests substitute fakes that record the conversation.
type Conn interface {
	Welcome() string
	Login(user, pass string) error
	ChangeDir(path string) error
	ChangeDirToParent() error
	List() ([]string, error)
	Quit() error
}

// DialFunc opens a connection to one host, bounded by timeout.
type DialFunc func(host string, timeout time.Duration) (Conn, error)

// session owns one connection to one host for the duration of its scan:
// connect, authenticate, read banner, traverse, disconnect. Exactly one
// session exists per host; it is destroyed when the scan ends.
type session struct {
	host    string
	dial    DialFunc
	store   Recorder
	logger  *slog.Logger
	timeout time.Duration

	maxDepth int

	conn Conn
	// path is the explicit stack of directory segments below the root.
	path []string
	// visited guards against servers presenting self-referential trees.
	visited map[string]bool
}

func newSession(host string, dial DialFunc, rec Recorder, logger *slog.Logger, timeout time.Duration, maxDepth int) *session {
	return &session{
		host:     host,
		dial:     dial,
		store:    rec,
		logger:   logger.With(slog.String("host", host)),
		timeout:  timeout,
		maxDepth: maxDepth,
		visited:  make(map[string]bool),
	}
}

// scan runs the session to its terminal state and returns the host's final
// status. A "success" status has already been recorded (with any detected
// server type and version) by the time scan returns; other statuses are the
// caller's to record. The connection is closed on every path.
func (s *session) scan(ctx context.Context) (string, error) {
	conn, err := s.dial(s.host, s.timeout)
	if err != nil {
		return store.StatusFailed, classify(ErrConnect, err)
	}
	s.conn = conn
	defer s.conn.Quit() //nolint:errcheck

	if err := s.conn.Login(anonymousUser, anonymousPass); err != nil {
		return store.StatusFailed, classify(ErrAuth, err)
	}

	serverType, version := DetectServer(s.conn.Welcome())
	if serverType != "" {
		s.logger.Info("detected server", "type", serverType, "version", version)
	}

	serverID, err := s.store.AddServer(ctx, s.host, store.StatusSuccess, serverType, version)
	if err != nil {
		return store.StatusError, err
	}

	// Login succeeded, so the host's status is terminal regardless of how
	// the traversal below fares.
	s.traverseRoot(ctx, serverID)

	return store.StatusSuccess, nil
}

// traverseRoot scans the remote tree starting at "/". Traversal failures are
// warnings; they never demote the host.
func (s *session) traverseRoot(ctx context.Context, serverID int64) {
	if err := s.conn.ChangeDir("/"); err != nil {
		s.logger.Warn("cannot enter root directory", "error", err)
		return
	}
	s.visited["/"] = true
	s.listAndDescend(ctx, serverID, "/")
}

// scanDirectory enters one child directory of the current remote directory,
// records its contents, and returns to the parent. The return to the parent
// happens on every exit path once the directory has been entered, keeping the
// remote working directory in step with the path stack.
func (s *session) scanDirectory(ctx context.Context, serverID int64, name string) {
	if len(s.path)+1 >= s.maxDepth {
		s.logger.Warn("max traversal depth reached, abandoning branch",
			"path", s.currentPath(), "dir", name)
		return
	}

	full := joinPath(s.currentPath(), name)
	if s.visited[full] {
		s.logger.Warn("directory already visited, skipping", "path", full)
		return
	}

	if err := s.conn.ChangeDir(name); err != nil {
		s.logger.Warn("cannot enter directory", "path", full, "error", err)
		return
	}
	s.path = append(s.path, name)
	s.visited[full] = true
	defer func() {
		s.path = s.path[:len(s.path)-1]
		if err := s.conn.ChangeDirToParent(); err != nil {
			s.logger.Warn("cannot return to parent directory", "path", full, "error", err)
		}
	}()

	s.listAndDescend(ctx, serverID, full)
}

// listAndDescend records the current directory, lists it, persists its files,
// and recurses depth-first into its subdirectories.
func (s *session) listAndDescend(ctx context.Context, serverID int64, full string) {
	dirID, err := s.store.AddDirectory(ctx, serverID, full)
	if err != nil {
		s.logger.Warn("recording directory", "path", full, "error", err)
		return
	}

	lines, err := s.conn.List()
	if err != nil {
		s.logger.Warn("listing directory", "path", full, "error", err)
		return
	}
	s.logger.Debug("scanned directory", "path", full, "entries", len(lines))

	for _, line := range lines {
		entry := ParseListLine(line)
		if entry.IsDir {
			if entry.Name == "." || entry.Name == ".." {
				continue
			}
			s.scanDirectory(ctx, serverID, entry.Name)
			continue
		}
		if err := s.store.AddFile(ctx, dirID, entry.Name, entry.Size, entry.Modified, entry.Permissions); err != nil {
			s.logger.Warn("recording file", "path", full, "name", entry.Name, "error", err)
		}
	}
}

func (s *session) currentPath() string {
	if len(s.path) == 0 {
		return "/"
	}
	return "/" + strings.Join(s.path, "/")
}

func joinPath(dir, name string) string {
	if dir == "/" {
		return "/" + name
	}
	return dir + "/" + name
}
