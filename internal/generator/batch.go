package generator

import (
	"context"

	"golang.org/x/sync/errgroup"

	failures "hrdocs/internal/errors"
	"hrdocs/internal/logger"
)

// BatchItem is one document of a batch.
type BatchItem struct {
	Input string // where the data came from, used as the journal key
	Kind  string
	Data  map[string]any
}

// BatchResult is the outcome of one BatchItem.
type BatchResult struct {
	Input  string
	Kind   string
	Result *Result
	Err    error
}

// GenerateBatch builds items concurrently, at most concurrency at a time. A
// failed item does not stop the others; only ctx cancellation does. Results
// are in item order.
func (g *Generator) GenerateBatch(ctx context.Context, items []BatchItem, concurrency int) ([]BatchResult, error) {
	if concurrency <= 0 {
		concurrency = g.cfg.Concurrency
	}
	if concurrency <= 0 {
		concurrency = 1
	}

	results := make([]BatchResult, len(items))
	eg, gctx := errgroup.WithContext(ctx)
	eg.SetLimit(concurrency)

	for i, item := range items {
		if gctx.Err() != nil {
			break
		}
		eg.Go(func() error {
			res, err := g.Generate(gctx, item.Kind, item.Data)
			results[i] = BatchResult{Input: item.Input, Kind: item.Kind, Result: res, Err: err}
			if err != nil && gctx.Err() != nil {
				return gctx.Err()
			}
			g.journalOutcome(item, res, err)
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return results, err
	}
	if err := ctx.Err(); err != nil {
		return results, err
	}

	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
		}
	}
	logger.Info("batch finished",
		logger.Int("documents", len(items)),
		logger.Int("failed", failed),
		logger.Int("concurrency", concurrency))
	return results, nil
}

func (g *Generator) journalOutcome(item BatchItem, res *Result, err error) {
	if g.journal == nil {
		return
	}
	if err == nil && res != nil && res.ArchiveError != nil {
		err = res.ArchiveError
	}

	var jerr error
	if err != nil {
		jerr = g.journal.RecordError(item.Kind, item.Input, err)
	} else {
		jerr = g.journal.RemoveError(failures.RecordID(item.Kind, item.Input))
	}
	if jerr != nil {
		logger.Warn("failure journal not updated", logger.String("input", item.Input), logger.Err(jerr))
	}
}
