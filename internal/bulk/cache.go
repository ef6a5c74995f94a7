package bulk

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/kiranshivaraju/fineprint/internal/kv"
	"github.com/kiranshivaraju/fineprint/pkg/models"
)

// CachedAnalyzer serves analyses stored by the queue under (url, content hash)
// and falls through to the wrapped analyzer on a miss. Served results carry
// Usage.Cached so the cost ledger books them as savings.
type CachedAnalyzer struct {
	next  models.Analyzer
	store kv.Store
}

func NewCachedAnalyzer(next models.Analyzer, store kv.Store) *CachedAnalyzer {
	return &CachedAnalyzer{next: next, store: store}
}

func (c *CachedAnalyzer) Name() string { return c.next.Name() }

func (c *CachedAnalyzer) Analyze(ctx context.Context, req models.AnalysisRequest) (models.AnalysisResult, error) {
	key := kv.AnalysisCacheKey(req.URL, ContentHash(req.Content))
	data, found, err := c.store.Get(ctx, key)
	if err != nil {
		slog.Warn("analysis cache lookup failed", "url", req.URL, "error", err)
	}
	if found {
		var result models.AnalysisResult
		if err := json.Unmarshal(data, &result); err == nil {
			if result.Usage == nil {
				result.Usage = &models.Usage{Model: c.next.Name()}
			}
			result.Usage.Cached = true
			return result, nil
		}
		slog.Warn("discarding corrupt analysis cache entry", "key", key)
	}
	return c.next.Analyze(ctx, req)
}

var _ models.Analyzer = (*CachedAnalyzer)(nil)

// storeCacheEntry saves a fresh analysis so later requests for the same content
// hit the cache. Failures are logged only.
func storeCacheEntry(ctx context.Context, store kv.Store, url, content string, result models.AnalysisResult, ttl time.Duration) {
	data, err := json.Marshal(result)
	if err != nil {
		slog.Warn("encoding analysis cache entry", "url", url, "error", err)
		return
	}
	if err := store.Set(ctx, kv.AnalysisCacheKey(url, ContentHash(content)), data, ttl); err != nil {
		slog.Warn("writing analysis cache entry", "url", url, "error", err)
	}
}
