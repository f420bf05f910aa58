package scanner

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/whearn17/FTP-Smasher/internal/store"
)

// worker scans one partition of the host list. It owns its queue outright;
// the only thing shared with other workers is the store, whose writes are
// independent atomic upserts.
type worker struct {
	id       int
	sessions int
	timeout  time.Duration
	maxDepth int
	dial     DialFunc
	store    Recorder
	logger   *slog.Logger

	mu    sync.Mutex
	queue []string
}

func newWorker(id int, partition []string, sessions int, timeout time.Duration, maxDepth int, dial DialFunc, rec Recorder, logger *slog.Logger) *worker {
	return &worker{
		id:       id,
		sessions: sessions,
		timeout:  timeout,
		maxDepth: maxDepth,
		dial:     dial,
		store:    rec,
		logger:   logger.With(slog.Int("worker", id)),
		queue:    partition,
	}
}

// run drives up to `sessions` concurrent session tasks over the shared queue
// and returns the hosts whose scans succeeded. It returns once every task has
// drained out.
func (w *worker) run(ctx context.Context) []string {
	tasks := w.sessions
	if len(w.queue) < tasks {
		tasks = len(w.queue)
	}

	var (
		foundMu sync.Mutex
		found   []string
		wg      sync.WaitGroup
	)

	for i := 0; i < tasks; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				host, ok := w.pop()
				if !ok {
					return
				}
				if w.scanHost(ctx, host) {
					foundMu.Lock()
					found = append(found, host)
					foundMu.Unlock()
				}
			}
		}()
	}
	wg.Wait()

	return found
}

// pop takes one host off the queue. The lock covers only the pop itself,
// never any network I/O.
func (w *worker) pop() (string, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.queue) == 0 {
		return "", false
	}
	host := w.queue[len(w.queue)-1]
	w.queue = w.queue[:len(w.queue)-1]
	return host, true
}

// scanHost scans a single host and records its terminal status. It is the
// per-host fault boundary: an unexpected failure here must not lose the rest
// of the partition.
func (w *worker) scanHost(ctx context.Context, host string) (found bool) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("unexpected failure scanning host", "host", host, "panic", r)
			if _, err := w.store.AddServer(ctx, host, store.StatusError, "", ""); err != nil {
				w.logger.Error("recording host error status", "host", host, "error", err)
			}
			found = false
		}
	}()

	sess := newSession(host, w.dial, w.store, w.logger, w.timeout, w.maxDepth)
	status, err := sess.scan(ctx)

	switch status {
	case store.StatusSuccess:
		w.logger.Info("anonymous login succeeded", "host", host)
		return true
	case store.StatusFailed:
		w.logger.Debug("host unreachable or rejected login", "host", host,
			"auth_rejected", errors.Is(err, ErrAuth), "error", err)
	default:
		w.logger.Error("unclassified scan failure", "host", host, "error", err)
	}

	if _, recErr := w.store.AddServer(ctx, host, status, "", ""); recErr != nil {
		w.logger.Error("recording host status", "host", host, "status", status, "error", recErr)
	}
	return false
}
