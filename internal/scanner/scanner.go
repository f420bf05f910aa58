// Package scanner implements the concurrent anonymous-FTP scan pipeline:
// the host list is shuffled and partitioned across isolated workers, each
// worker schedules a bounded number of concurrent sessions over its own
// queue, and per-host outcomes are aggregated into the final found-list.
package scanner

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/whearn17/FTP-Smasher/internal/hostlist"
)

// Recorder is the persistence collaborator the pipeline writes to. All access
// during scanning is write-only; every call must be an independent atomic
// upsert (or append) so concurrent session tasks cannot corrupt records.
type Recorder interface {
	AddServer(ctx context.Context, host, status, serverType, version string) (int64, error)
	AddDirectory(ctx context.Context, serverID int64, path string) (int64, error)
	AddFile(ctx context.Context, directoryID int64, name string, size *int64, modified *time.Time, permissions *string) error
}

// Options configures a scan run. Worker and session counts are fixed for the
// lifetime of the run.
type Options struct {
	// Workers is the number of partitions scanned in parallel (K).
	Workers int
	// SessionsPerWorker bounds concurrent sessions within one worker (M).
	SessionsPerWorker int
	// ConnectTimeout bounds the connect and all control-channel I/O of a
	// session. Its expiry counts as an ordinary connection failure.
	ConnectTimeout time.Duration
	// MaxDepth bounds recursive directory traversal per host.
	MaxDepth int
}

// Result summarizes one completed run. Found lists hosts that accepted the
// anonymous login, in completion order across workers.
type Result struct {
	RunID     string
	Found     []string
	Scanned   int
	Started   time.Time
	Completed time.Time
}

// Scanner orchestrates scan runs.
type Scanner struct {
	opts   Options
	store  Recorder
	dial   DialFunc
	logger *slog.Logger
}

// New creates a Scanner that dials real FTP servers.
func New(rec Recorder, logger *slog.Logger, opts Options) *Scanner {
	return NewWithDialer(rec, dialFTP, logger, opts)
}

// NewWithDialer creates a Scanner with a custom dialer (for testing).
func NewWithDialer(rec Recorder, dial DialFunc, logger *slog.Logger, opts Options) *Scanner {
	return &Scanner{
		opts:   opts,
		store:  rec,
		dial:   dial,
		logger: logger.With(slog.String("component", "scanner")),
	}
}

// Run scans every host once and returns the aggregated result. The run always
// completes: host failures are recorded, never fatal. Hosts is consumed as
// given apart from shuffling; deduplication is not required, and an empty list
// yields an empty result with no workers spawned.
func (s *Scanner) Run(ctx context.Context, hosts []string) *Result {
	result := &Result{
		RunID:   uuid.New().String(),
		Scanned: len(hosts),
		Started: time.Now().UTC(),
	}
	logger := s.logger.With(slog.String("run_id", result.RunID))

	if len(hosts) == 0 {
		result.Completed = time.Now().UTC()
		logger.Info("nothing to scan")
		return result
	}

	hostlist.Shuffle(hosts)
	partitions := hostlist.Partition(hosts, s.opts.Workers)

	logger.Info("scan starting",
		"hosts", len(hosts),
		"workers", len(partitions),
		"sessions_per_worker", s.opts.SessionsPerWorker,
	)

	// Workers report their own found subset on completion; collecting from
	// the channel preserves completion order in the final list.
	results := make(chan []string, len(partitions))
	for i, partition := range partitions {
		go s.runWorker(ctx, i, partition, logger, results)
	}
	for range partitions {
		result.Found = append(result.Found, <-results...)
	}

	result.Completed = time.Now().UTC()
	logger.Info("scan complete",
		"found", len(result.Found),
		"scanned", result.Scanned,
		"elapsed", result.Completed.Sub(result.Started),
	)

	return result
}

// runWorker is the worker fault boundary: a crash in one worker forfeits only
// its own remaining partition, never its siblings.
func (s *Scanner) runWorker(ctx context.Context, id int, partition []string, logger *slog.Logger, results chan<- []string) {
	var found []string
	defer func() {
		if r := recover(); r != nil {
			logger.Error("worker crashed", "worker", id, "panic", r)
		}
		results <- found
	}()

	w := newWorker(id, partition, s.opts.SessionsPerWorker, s.opts.ConnectTimeout, s.opts.MaxDepth, s.dial, s.store, logger)
	found = w.run(ctx)
}
