package coordinator

import (
	"context"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	errs "github.com/johnayoung/go-price-sync/internal/errors"
	"github.com/johnayoung/go-price-sync/internal/models"
)

// SymbolError is the failure of one symbol in a multi-symbol request.
type SymbolError struct {
	Symbol string    `json:"symbol"`
	Error  string    `json:"error"`
	Kind   errs.Kind `json:"kind"`
}

// MultiResult holds per-symbol results and per-symbol failures.
type MultiResult struct {
	Results map[string]*SeriesResult `json:"results"`
	Errors  []SymbolError            `json:"errors"`
}

// GetMultiple runs GetSeries for every symbol with at most Workers requests
// in flight. One symbol failing never aborts the others; the returned error is
// non-nil only when the symbol list itself is unusable.
func (c *Coordinator) GetMultiple(ctx context.Context, symbols []string, start, end string, opts models.SeriesOptions) (*MultiResult, error) {
	unique := make([]string, 0, len(symbols))
	seen := make(map[string]bool, len(symbols))
	for _, s := range symbols {
		sym := models.NormalizeSymbol(s)
		if sym == "" || seen[sym] {
			continue
		}
		seen[sym] = true
		unique = append(unique, sym)
	}
	if len(unique) == 0 {
		return nil, errs.NewValidationError("get_multiple", "", &models.ValidationError{Field: "symbols", Message: "at least one symbol is required"})
	}

	out := &MultiResult{
		Results: make(map[string]*SeriesResult, len(unique)),
		Errors:  []SymbolError{},
	}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.config.Workers)
	for _, sym := range unique {
		g.Go(func() error {
			res, err := c.GetSeries(gctx, sym, start, end, opts)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				out.Errors = append(out.Errors, SymbolError{Symbol: sym, Error: err.Error(), Kind: errs.KindOf(err)})
				return nil
			}
			out.Results[sym] = res
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(out.Errors, func(i, j int) bool { return out.Errors[i].Symbol < out.Errors[j].Symbol })

	c.logger.Info("multi-symbol request completed",
		"symbols", len(unique),
		"succeeded", len(out.Results),
		"failed", len(out.Errors))
	return out, nil
}
