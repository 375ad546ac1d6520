package classify

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/shpitdev/conference-icp-scout/internal/logging"
	"github.com/shpitdev/conference-icp-scout/internal/metrics"
	"github.com/shpitdev/conference-icp-scout/pkg/pipeline/core"
	"github.com/shpitdev/conference-icp-scout/pkg/pipeline/redact"
	"github.com/shpitdev/conference-icp-scout/pkg/pipeline/worker"
)

// DefaultBatchSize is used when Validate gets a non-positive batch size.
const DefaultBatchSize = 10

// Options tunes oracle calls. Transient oracle errors are retried.
type Options struct {
	MaxRetries     int
	RequestTimeout time.Duration
	RateLimitRPS   float64
	BackoffInitial time.Duration
	BackoffMax     time.Duration
}

// Batcher validates company names in fixed-size batches.
type Batcher struct {
	Oracle  Oracle
	Logger  *zap.Logger
	Metrics *metrics.Metrics
	Options Options
}

// Validate returns exactly one row per name, in the order of names. Names the
// oracle skips get a low-confidence Maybe row; a batch the oracle fails on
// gets error rows and does not stop later batches. The error is non-nil only
// when ctx ends.
func (b *Batcher) Validate(ctx context.Context, names []string, batchSize int) ([]Row, error) {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	log := logging.OrNop(b.Logger)

	out := make([]Row, 0, len(names))
	_, err := worker.ProcessAllWithCallback(ctx, Chunk(names, batchSize), core.ProcessFunc[[]string, []Row](b.Oracle.Classify),
		func(r worker.Result[[]string, []Row]) error {
			if r.Err != nil {
				b.Metrics.ClassificationBatch(metrics.OutcomeFailed)
				b.Metrics.FallbackRows(metrics.ReasonError, len(r.Input))
				log.Warn("classification batch failed",
					zap.Strings("batch", r.Input),
					zap.String("error", redact.Secrets(r.Err.Error())),
				)
				for _, name := range r.Input {
					out = append(out, ErrorRow(name))
				}
				return nil
			}
			b.Metrics.ClassificationBatch(metrics.OutcomeOK)
			rows, missing := Reconcile(r.Input, r.Output)
			b.Metrics.FallbackRows(metrics.ReasonMissing, missing)
			if missing > 0 {
				log.Debug("oracle skipped names", zap.Int("missing", missing), zap.Int("batch_size", len(r.Input)))
			}
			out = append(out, rows...)
			return nil
		},
		worker.Options{
			MaxRetries:     b.Options.MaxRetries,
			RequestTimeout: b.Options.RequestTimeout,
			RateLimitRPS:   b.Options.RateLimitRPS,
			BackoffInitial: b.Options.BackoffInitial,
			BackoffMax:     b.Options.BackoffMax,
			FailurePolicy:  worker.FailurePolicyPartialOutput,
		},
	)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Chunk splits names into consecutive batches of at most size names.
func Chunk(names []string, size int) [][]string {
	if size <= 0 {
		size = DefaultBatchSize
	}
	var out [][]string
	for start := 0; start < len(names); start += size {
		end := min(start+size, len(names))
		out = append(out, names[start:end])
	}
	return out
}

// Reconcile lines oracle rows up with the requested names. Rows are matched by
// lower-cased company name, the later of two duplicates wins, and each
// returned row carries the requested spelling. Unmatched names get MissingRow;
// the count of those is returned.
func Reconcile(names []string, rows []Row) ([]Row, int) {
	byName := make(map[string]Row, len(rows))
	for _, r := range rows {
		byName[strings.ToLower(strings.TrimSpace(r.Company))] = r
	}

	out := make([]Row, 0, len(names))
	missing := 0
	for _, name := range names {
		r, ok := byName[strings.ToLower(name)]
		if !ok {
			missing++
			out = append(out, MissingRow(name))
			continue
		}
		r.Company = name
		out = append(out, r)
	}
	return out, missing
}
