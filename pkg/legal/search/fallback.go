package search

import (
	"context"

	"legal-assistant-be/internal/pkg/logger"
)

// Fallback asks Secondary whenever Primary fails, returns nothing, or only
// returns low-confidence results.
type Fallback struct {
	Primary   Searcher
	Secondary Searcher
	Logger    logger.ILogger
}

func NewFallback(primary, secondary Searcher, log logger.ILogger) *Fallback {
	return &Fallback{Primary: primary, Secondary: secondary, Logger: log}
}

func (f *Fallback) Search(ctx context.Context, query, jurisdiction string, topK int) (Response, error) {
	resp, err := f.Primary.Search(ctx, query, jurisdiction, topK)
	if err == nil && len(resp.Results) > 0 && resp.Confidence != ConfidenceLow {
		return resp, nil
	}
	if err != nil {
		f.Logger.Warn("search.fallback", "primary search failed", map[string]interface{}{
			"error":        err.Error(),
			"jurisdiction": jurisdiction,
		})
	}

	alt, altErr := f.Secondary.Search(ctx, query, jurisdiction, topK)
	if altErr != nil {
		f.Logger.Warn("search.fallback", "secondary search failed", map[string]interface{}{
			"error":        altErr.Error(),
			"jurisdiction": jurisdiction,
		})
		if err != nil {
			return Response{}, err
		}
		return resp, nil
	}
	if len(alt.Results) == 0 && err == nil {
		return resp, nil
	}

	f.Logger.Info("search.fallback", "used secondary results", map[string]interface{}{
		"primary_confidence": string(resp.Confidence),
		"results":            len(alt.Results),
	})
	return alt, nil
}
