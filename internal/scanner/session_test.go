package scanner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/whearn17/FTP-Smasher/internal/store"
)

// fakeConn is a scripted FTP connection that records the conversation.
type fakeConn struct {
	welcome  string
	loginErr error
	listings map[string][]string // raw LIST lines per absolute path
	cwdFail  map[string]bool     // absolute paths whose CWD is rejected
	listFail map[string]bool     // absolute paths whose LIST fails

	calls []string // "CWD <arg>", "CDUP", "QUIT" in order
	stack []string
	quit  bool
}

func (f *fakeConn) Welcome() string { return f.welcome }

func (f *fakeConn) Login(user, pass string) error { return f.loginErr }

func (f *fakeConn) ChangeDir(path string) error {
	f.calls = append(f.calls, "CWD "+path)
	if path == "/" {
		if f.cwdFail["/"] {
			return errors.New("550 permission denied")
		}
		f.stack = nil
		return nil
	}
	full := f.cwd() + "/" + path
	if f.cwd() == "/" {
		full = "/" + path
	}
	if f.cwdFail[full] {
		return errors.New("550 permission denied")
	}
	f.stack = append(f.stack, path)
	return nil
}

func (f *fakeConn) ChangeDirToParent() error {
	f.calls = append(f.calls, "CDUP")
	if len(f.stack) > 0 {
		f.stack = f.stack[:len(f.stack)-1]
	}
	return nil
}

func (f *fakeConn) List() ([]string, error) {
	if f.listFail[f.cwd()] {
		return nil, errors.New("425 cannot open data connection")
	}
	return f.listings[f.cwd()], nil
}

func (f *fakeConn) Quit() error {
	f.calls = append(f.calls, "QUIT")
	f.quit = true
	return nil
}

func (f *fakeConn) cwd() string {
	if len(f.stack) == 0 {
		return "/"
	}
	return "/" + strings.Join(f.stack, "/")
}

// fakeRecorder captures persistence writes in memory.
type fakeRecorder struct {
	mu      sync.Mutex
	nextID  int64
	servers []serverWrite
	dirs    []string
	files   []string
}

type serverWrite struct {
	host, status, serverType, version string
}

func (r *fakeRecorder) AddServer(_ context.Context, host, status, serverType, version string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.servers = append(r.servers, serverWrite{host, status, serverType, version})
	r.nextID++
	return r.nextID, nil
}

func (r *fakeRecorder) AddDirectory(_ context.Context, _ int64, path string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dirs = append(r.dirs, path)
	r.nextID++
	return r.nextID, nil
}

func (r *fakeRecorder) AddFile(_ context.Context, _ int64, name string, _ *int64, _ *time.Time, _ *string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.files = append(r.files, name)
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func dirLine(name string) string {
	return fmt.Sprintf("drwxr-xr-x 2 user group 4096 Jan 1 2020 %s", name)
}

func fileLine(name string) string {
	return fmt.Sprintf("-rw-r--r-- 1 user group 123 Feb 2 2021 %s", name)
}

func scanFake(t *testing.T, conn *fakeConn, rec Recorder) (string, error) {
	t.Helper()
	dial := func(string, time.Duration) (Conn, error) { return conn, nil }
	sess := newSession("198.51.100.7", dial, rec, testLogger(), time.Second, 16)
	return sess.scan(context.Background())
}

// assertBalanced checks that every entered directory was exited: the number
// of successful CWDs below the root equals the number of CDUPs, and the
// connection ended back at the root.
func assertBalanced(t *testing.T, conn *fakeConn) {
	t.Helper()
	if got := conn.cwd(); got != "/" {
		t.Errorf("session ended at %q, want /", got)
	}
	cdups := 0
	for _, c := range conn.calls {
		if c == "CDUP" {
			cdups++
		}
	}
	entered := 0
	for _, c := range conn.calls {
		if strings.HasPrefix(c, "CWD ") && c != "CWD /" {
			entered++
		}
	}
	// Rejected CWDs do not get a CDUP; the fake rejects via cwdFail.
	rejected := 0
	for full := range conn.cwdFail {
		if full != "/" {
			rejected++
		}
	}
	if cdups != entered-rejected {
		t.Errorf("got %d CDUPs for %d entered directories (%d rejected)", cdups, entered, rejected)
	}
}

func TestSessionTraversesTreeDepthFirst(t *testing.T) {
	conn := &fakeConn{
		welcome: "Microsoft FTP Service (Version 5.0)",
		listings: map[string][]string{
			"/":          {dirLine("pub"), fileLine("root.txt")},
			"/pub":       {dirLine("inner"), fileLine("a.txt")},
			"/pub/inner": {fileLine("b.txt")},
		},
	}
	rec := &fakeRecorder{}

	status, err := scanFake(t, conn, rec)
	if err != nil || status != store.StatusSuccess {
		t.Fatalf("scan = (%q, %v), want success", status, err)
	}

	if len(rec.servers) != 1 {
		t.Fatalf("got %d server writes, want 1", len(rec.servers))
	}
	sw := rec.servers[0]
	if sw.status != store.StatusSuccess || sw.serverType != "Microsoft" || sw.version != "5.0" {
		t.Errorf("server write = %+v, want success/Microsoft/5.0", sw)
	}

	wantDirs := []string{"/", "/pub", "/pub/inner"}
	if len(rec.dirs) != len(wantDirs) {
		t.Fatalf("recorded dirs %v, want %v", rec.dirs, wantDirs)
	}
	for i, d := range wantDirs {
		if rec.dirs[i] != d {
			t.Errorf("dirs[%d] = %q, want %q", i, rec.dirs[i], d)
		}
	}

	wantFiles := map[string]bool{"root.txt": true, "a.txt": true, "b.txt": true}
	if len(rec.files) != len(wantFiles) {
		t.Fatalf("recorded files %v, want 3", rec.files)
	}
	for _, f := range rec.files {
		if !wantFiles[f] {
			t.Errorf("unexpected file %q", f)
		}
	}

	assertBalanced(t, conn)
	if !conn.quit {
		t.Error("connection was not closed")
	}
}

func TestSessionSkipsSelfAndParentEntries(t *testing.T) {
	conn := &fakeConn{
		listings: map[string][]string{
			"/": {dirLine("."), dirLine(".."), fileLine("x.txt")},
		},
	}
	rec := &fakeRecorder{}

	if status, _ := scanFake(t, conn, rec); status != store.StatusSuccess {
		t.Fatalf("status = %q, want success", status)
	}
	for _, c := range conn.calls {
		if c == "CWD ." || c == "CWD .." {
			t.Errorf("session descended into pseudo-entry: %q", c)
		}
	}
}

func TestSessionBranchFailureDoesNotFailHost(t *testing.T) {
	conn := &fakeConn{
		listings: map[string][]string{
			"/":     {dirLine("bad"), dirLine("good")},
			"/good": {fileLine("ok.txt")},
		},
		cwdFail: map[string]bool{"/bad": true},
	}
	rec := &fakeRecorder{}

	status, err := scanFake(t, conn, rec)
	if err != nil || status != store.StatusSuccess {
		t.Fatalf("scan = (%q, %v), want success despite branch failure", status, err)
	}

	for _, d := range rec.dirs {
		if d == "/bad" {
			t.Error("unreachable branch must not be recorded")
		}
	}
	found := false
	for _, f := range rec.files {
		if f == "ok.txt" {
			found = true
		}
	}
	if !found {
		t.Error("sibling branch was lost after a branch failure")
	}
	assertBalanced(t, conn)
}

func TestSessionListFailureAbortsBranchOnly(t *testing.T) {
	conn := &fakeConn{
		listings: map[string][]string{
			"/":     {dirLine("broken"), dirLine("fine")},
			"/fine": {fileLine("kept.txt")},
		},
		listFail: map[string]bool{"/broken": true},
	}
	rec := &fakeRecorder{}

	status, err := scanFake(t, conn, rec)
	if err != nil || status != store.StatusSuccess {
		t.Fatalf("scan = (%q, %v), want success", status, err)
	}
	kept := false
	for _, f := range rec.files {
		if f == "kept.txt" {
			kept = true
		}
	}
	if !kept {
		t.Error("sibling branch was lost after a listing failure")
	}
	assertBalanced(t, conn)
}

func TestSessionConnectFailure(t *testing.T) {
	dial := func(string, time.Duration) (Conn, error) {
		return nil, errors.New("connection refused")
	}
	rec := &fakeRecorder{}
	sess := newSession("198.51.100.8", dial, rec, testLogger(), time.Second, 16)

	status, err := sess.scan(context.Background())
	if status != store.StatusFailed {
		t.Errorf("status = %q, want failed", status)
	}
	if !errors.Is(err, ErrConnect) {
		t.Errorf("err = %v, want ErrConnect", err)
	}
	if len(rec.servers) != 0 {
		t.Errorf("session must not record on connect failure, got %v", rec.servers)
	}
}

func TestSessionLoginRejected(t *testing.T) {
	conn := &fakeConn{loginErr: errors.New("530 anonymous access denied")}
	rec := &fakeRecorder{}

	status, err := scanFake(t, conn, rec)
	if status != store.StatusFailed {
		t.Errorf("status = %q, want failed", status)
	}
	if !errors.Is(err, ErrAuth) {
		t.Errorf("err = %v, want ErrAuth", err)
	}
	if !conn.quit {
		t.Error("connection must be closed after a rejected login")
	}
}

func TestSessionDepthBound(t *testing.T) {
	// Every directory contains another directory; only the depth bound
	// stops the descent.
	conn := &fakeConn{listings: map[string][]string{}}
	conn.listings["/"] = []string{dirLine("d")}
	path := ""
	for i := 0; i < 30; i++ {
		path += "/d"
		conn.listings[path] = []string{dirLine("d")}
	}
	rec := &fakeRecorder{}

	dial := func(string, time.Duration) (Conn, error) { return conn, nil }
	sess := newSession("198.51.100.9", dial, rec, testLogger(), time.Second, 5)
	status, err := sess.scan(context.Background())
	if err != nil || status != store.StatusSuccess {
		t.Fatalf("scan = (%q, %v), want success", status, err)
	}

	for _, d := range rec.dirs {
		if strings.Count(d, "/") > 5 {
			t.Errorf("recorded directory %q beyond the depth bound", d)
		}
	}
	assertBalanced(t, conn)
}

func TestSessionSkipsRevisitedPath(t *testing.T) {
	conn := &fakeConn{
		listings: map[string][]string{
			"/":    {dirLine("pub"), dirLine("pub")},
			"/pub": {fileLine("once.txt")},
		},
	}
	rec := &fakeRecorder{}

	if status, _ := scanFake(t, conn, rec); status != store.StatusSuccess {
		t.Fatal("want success")
	}
	entered := 0
	for _, c := range conn.calls {
		if c == "CWD pub" {
			entered++
		}
	}
	if entered != 1 {
		t.Errorf("entered /pub %d times, want 1", entered)
	}
	assertBalanced(t, conn)
}
