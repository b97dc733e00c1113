package sculptor

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/jmylchreest/sculptor/internal/logger"
)

// BatchOption adjusts a single SculptBatch or Process call, overriding the
// sculptor's configured defaults.
type BatchOption func(*batchConfig)

type batchConfig struct {
	workers  int
	progress ProgressFunc
	merge    *bool
}

// WithBatchWorkers bounds how many completion requests are in flight at
// once for this batch. One worker degrades to strictly sequential execution
// with identical output.
func WithBatchWorkers(n int) BatchOption {
	return func(c *batchConfig) { c.workers = n }
}

// WithBatchProgress sets the progress callback for this batch.
func WithBatchProgress(fn ProgressFunc) BatchOption {
	return func(c *batchConfig) { c.progress = fn }
}

// withMerge overrides the sculptor's merge setting; pipelines force merging
// so stage filters and later stages see accumulated fields.
func withMerge(merge bool) BatchOption {
	return func(c *batchConfig) { c.merge = &merge }
}

// SculptBatch extracts every record concurrently and returns results in
// input order regardless of completion order: each worker owns its record
// end-to-end and writes into a slot indexed by the record's position.
//
// The output always has exactly one record per input. A record whose
// extraction fails keeps its input fields (when merging), carries the null
// sentinel for every schema field, and is tagged with ErrorKey — one
// endpoint hiccup never discards the rest of the batch.
//
// Cancelling ctx stops new records from being dispatched; requests already
// in flight drain normally and keep their results. Records that never ran
// are returned as error-marked records noting the cancellation, so the
// caller can tell them apart from genuine failures.
func (s *Sculptor) SculptBatch(ctx context.Context, records []map[string]any, opts ...BatchOption) []map[string]any {
	cfg := batchConfig{workers: s.workers, progress: s.progress}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.workers < 1 {
		cfg.workers = 1
	}

	merge := s.mergeInput
	if cfg.merge != nil {
		merge = *cfg.merge
	}

	results := make([]map[string]any, len(records))
	if len(records) == 0 {
		return results
	}

	workers := cfg.workers
	if workers > len(records) {
		workers = len(records)
	}

	logger.Debug("batch starting",
		"records", len(records),
		"workers", workers,
		"provider", s.provider.Name(),
		"model", s.provider.Model())

	// Workers get a detached context: in-flight completions drain instead
	// of being interrupted mid-request. Cancellation is observed only at
	// the dispatch point below.
	workCtx := context.WithoutCancel(ctx)

	total := len(records)
	var done atomic.Int64

	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				results[i] = s.sculptSlot(workCtx, records[i], merge)
				if cfg.progress != nil {
					cfg.progress(int(done.Add(1)), total)
				}
			}
		}()
	}

	cancelled := -1
dispatch:
	for i := range records {
		select {
		case jobs <- i:
		case <-ctx.Done():
			cancelled = i
			break dispatch
		}
	}
	close(jobs)
	wg.Wait()

	if cancelled >= 0 {
		err := fmt.Errorf("extraction cancelled: %w", context.Cause(ctx))
		for i := cancelled; i < len(records); i++ {
			results[i] = s.errorRecord(records[i], err, merge)
		}
		logger.Warn("batch cancelled",
			"dispatched", cancelled,
			"cancelled", len(records)-cancelled)
	}

	return results
}

// sculptSlot runs one record and absorbs its failure into an error-marked
// record; batch processing never aborts on a single record.
func (s *Sculptor) sculptSlot(ctx context.Context, record map[string]any, merge bool) map[string]any {
	result, err := s.invoke(ctx, record)
	if err != nil {
		logger.Warn("record extraction failed",
			"provider", s.provider.Name(),
			"error", err)
		return s.errorRecord(record, err, merge)
	}
	return mergeRecord(record, result, merge)
}

// errorRecord builds the failure shape for a record: every schema field set
// to the null sentinel plus the error marker, merged per batch settings.
func (s *Sculptor) errorRecord(record map[string]any, err error, merge bool) map[string]any {
	sentinel := make(map[string]any, s.schema.Len()+1)
	for _, f := range s.schema.Fields() {
		sentinel[f.Name] = nil
	}
	sentinel[ErrorKey] = err.Error()
	return mergeRecord(record, sentinel, merge)
}
