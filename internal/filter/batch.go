package filter

import (
	"context"
	"sync"
	"time"

	"github.com/spherical-ai/spherical/libs/entity-filter/internal/extraction"
)

// BatchResult is the outcome of filtering a set of retrieved documents.
type BatchResult struct {
	Query extraction.EntityExtraction `json:"query"`
	// Decisions align with the input documents.
	Decisions []Decision `json:"decisions"`
	// Kept holds the indexes of documents that survived, in input order.
	Kept     []int         `json:"kept"`
	Duration time.Duration `json:"duration"`
}

// KeptDocuments returns the surviving documents from docs.
func (r BatchResult) KeptDocuments(docs []string) []string {
	out := make([]string, 0, len(r.Kept))
	for _, i := range r.Kept {
		out = append(out, docs[i])
	}
	return out
}

// FilterDocuments extracts the query constraints once and evaluates every
// document against them. With a worker pool the documents are evaluated
// concurrently; the result order always matches the input. If ctx is done
// before every document has been scheduled, the remaining documents are kept
// and ctx.Err() is returned alongside the partial result.
func (e *Engine) FilterDocuments(ctx context.Context, query string, docs []string) (BatchResult, error) {
	start := time.Now()
	c := e.load(ctx)
	q := e.GetApplicableRules(ctx, query)

	res := BatchResult{Query: q, Decisions: make([]Decision, len(docs))}

	var runErr error
	if e.pool == nil || len(docs) < 2 {
		for i, doc := range docs {
			if err := ctx.Err(); err != nil {
				runErr = err
				break
			}
			res.Decisions[i] = c.service.Decide(doc, q)
		}
	} else {
		var wg sync.WaitGroup
		for i := range docs {
			if err := ctx.Err(); err != nil {
				runErr = err
				break
			}
			i := i
			wg.Add(1)
			if err := e.pool.Submit(func() {
				defer wg.Done()
				res.Decisions[i] = c.service.Decide(docs[i], q)
			}); err != nil {
				wg.Done()
				res.Decisions[i] = c.service.Decide(docs[i], q)
			}
		}
		wg.Wait()
	}

	for i, d := range res.Decisions {
		if !d.Filter {
			res.Kept = append(res.Kept, i)
		}
	}
	res.Duration = time.Since(start)

	e.logger.Debug().
		Int("documents", len(docs)).
		Int("kept", len(res.Kept)).
		Dur("duration", res.Duration).
		Msg("Filtered documents")
	return res, runErr
}
