// Package writer streams reconciliation rows into BigQuery.
package writer

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/cenkalti/backoff/v4"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/gikundiro/fanpay-backend/internal/analytics/types"
)

const (
	defaultBatchSize   = 1
	defaultMaxAttempts = 3
	defaultFirstDelay  = 250 * time.Millisecond
	defaultMaxDelay    = 2 * time.Second
)

// rowPutter is the slice of *pkg/bigquery.Client the writer needs.
type rowPutter interface {
	Put(ctx context.Context, table string, rows []any) error
}

type Config struct {
	Table       string
	BatchSize   int
	MaxAttempts int
	FirstDelay  time.Duration
	MaxDelay    time.Duration
}

// Writer buffers rows and streams them in batches. Each row carries its
// event id as insert id, so a batch resent after a partial failure does not
// duplicate rows. Safe for concurrent use.
type Writer struct {
	client      rowPutter
	table       string
	batchSize   int
	maxAttempts int
	newBackOff  func() backoff.BackOff

	mu      sync.Mutex
	pending []types.ReconciliationEventRow
}

func New(client rowPutter, cfg Config) (*Writer, error) {
	if client == nil {
		return nil, errors.New("bigquery client required")
	}
	table := strings.TrimSpace(cfg.Table)
	if table == "" {
		return nil, errors.New("reconciliation table is required")
	}
	first := positive(cfg.FirstDelay, defaultFirstDelay)
	maxDelay := max(positive(cfg.MaxDelay, defaultMaxDelay), first)
	return &Writer{
		client:      client,
		table:       table,
		batchSize:   positive(cfg.BatchSize, defaultBatchSize),
		maxAttempts: positive(cfg.MaxAttempts, defaultMaxAttempts),
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = first
			b.MaxInterval = maxDelay
			b.MaxElapsedTime = 0
			return b
		},
	}, nil
}

func positive[T int | time.Duration](v, fallback T) T {
	if v > 0 {
		return v
	}
	return fallback
}

// Insert queues row and writes the batch once it is full. On a failed write
// the batch stays queued for the next Insert or Flush.
func (w *Writer) Insert(ctx context.Context, row types.ReconciliationEventRow) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.pending = append(w.pending, row)
	if len(w.pending) < w.batchSize {
		return nil
	}
	return w.flushLocked(ctx)
}

// Flush writes whatever is queued.
func (w *Writer) Flush(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.flushLocked(ctx)
}

// Pending reports how many rows are queued.
func (w *Writer) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.pending)
}

func (w *Writer) flushLocked(ctx context.Context) error {
	if len(w.pending) == 0 {
		return nil
	}
	rows := make([]any, len(w.pending))
	for i := range w.pending {
		rows[i] = &bigquery.StructSaver{Struct: &w.pending[i], InsertID: w.pending[i].EventID}
	}
	if err := w.put(ctx, rows); err != nil {
		return fmt.Errorf("write %d rows to %s: %w", len(rows), w.table, err)
	}
	w.pending = w.pending[:0]
	return nil
}

// put retries transient failures up to maxAttempts in total.
func (w *Writer) put(ctx context.Context, rows []any) error {
	policy := backoff.WithContext(backoff.WithMaxRetries(w.newBackOff(), uint64(w.maxAttempts-1)), ctx)
	return backoff.Retry(func() error {
		err := w.client.Put(ctx, w.table, rows)
		if err != nil && !Transient(err) {
			return backoff.Permanent(err)
		}
		return err
	}, policy)
}

// Transient reports whether a BigQuery insert error is worth retrying. A
// multi-row error is transient only if every part is.
func Transient(err error) bool {
	if err == nil {
		return false
	}
	var puts bigquery.PutMultiError
	if errors.As(err, &puts) {
		for _, row := range puts {
			if !Transient(row.Errors) {
				return false
			}
		}
		return len(puts) > 0
	}
	var multi bigquery.MultiError
	if errors.As(err, &multi) {
		for _, part := range multi {
			if !Transient(part) {
				return false
			}
		}
		return len(multi) > 0
	}
	var rowErr *bigquery.Error
	if errors.As(err, &rowErr) {
		switch rowErr.Reason {
		case "backendError", "internalError", "rateLimitExceeded", "timeout", "stopped":
			return true
		}
		return false
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusTooManyRequests, http.StatusRequestTimeout, http.StatusInternalServerError,
			http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return true
		}
		return false
	}
	if st, ok := status.FromError(err); ok {
		switch st.Code() {
		case codes.Aborted, codes.DeadlineExceeded, codes.Internal, codes.ResourceExhausted, codes.Unavailable:
			return true
		}
	}
	return false
}
