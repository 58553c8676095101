package label

// #region imports
import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/coreloop/behavior-engine/internal/behavior"
	"github.com/coreloop/behavior-engine/internal/metrics"
)

// #endregion

// #region provider

// Provider generates a natural-language statement for a set of member texts.
// Implementations may be slow or fail; the labeler absorbs both.
type Provider interface {
	GenerateLabel(ctx context.Context, texts []string) (string, error)
}

// #endregion

// #region labeler

// DefaultTimeout bounds one provider call. Past it the labeler falls back.
const DefaultTimeout = 10 * time.Second

// Labeler wraps a Provider with a call timeout, a TTL cache, and the
// deterministic fallback. A nil provider means fallback-only, which is the
// test configuration. Labeling never touches any numeric score.
type Labeler struct {
	provider Provider
	timeout  time.Duration
	cache    *Cache
}

// NewLabeler builds a labeler. provider may be nil; cacheTTL <= 0 disables
// caching.
func NewLabeler(provider Provider, timeout time.Duration, cacheTTL time.Duration) *Labeler {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	var cache *Cache
	if cacheTTL > 0 {
		cache = NewCache(cacheTTL)
	}
	return &Labeler{provider: provider, timeout: timeout, cache: cache}
}

// Label returns a statement for the member set. Provider errors, timeouts,
// and empty responses all degrade to the deterministic fallback — the run
// never aborts over a label.
func (l *Labeler) Label(ctx context.Context, members []behavior.Record) string {
	if l.provider == nil {
		return Fallback(members)
	}

	texts := memberTexts(members)
	if len(texts) == 0 {
		return Fallback(members)
	}

	key := cacheKey(texts)
	if l.cache != nil {
		if v, ok := l.cache.Get(key); ok {
			return v
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	statement, err := l.provider.GenerateLabel(callCtx, texts)
	if err != nil || strings.TrimSpace(statement) == "" {
		if err != nil {
			log.Printf("[LABEL] provider failed, using fallback: %v", err)
		}
		return Fallback(members)
	}

	statement = strings.TrimSpace(statement)
	if l.cache != nil {
		l.cache.Set(key, statement)
	}
	return statement
}

// #endregion

// #region fallback

// Fallback builds the deterministic template statement from member
// aggregates. Same members, same statement, no model call.
func Fallback(members []behavior.Record) string {
	avgClarity := metrics.MeanClarity(members)
	avgReinforcement := metrics.MeanReinforcement(members)

	var pattern string
	switch {
	case avgClarity > 0.7 && avgReinforcement > 3:
		pattern = "demonstrates deep and iterative engagement"
	case avgReinforcement > 3:
		pattern = "shows consistent follow-up behavior"
	case avgClarity > 0.7:
		pattern = "exhibits high-clarity understanding"
	default:
		pattern = "displays regular interest"
	}

	return fmt.Sprintf("Subject %s (based on %d related behaviors)", pattern, len(members))
}

// #endregion

// #region helpers

func memberTexts(members []behavior.Record) []string {
	texts := make([]string, 0, len(members))
	for _, m := range members {
		if t := strings.TrimSpace(m.Text); t != "" {
			texts = append(texts, t)
		}
	}
	return texts
}

// cacheKey hashes the sorted texts so member order never splits the cache.
func cacheKey(texts []string) string {
	sorted := append([]string(nil), texts...)
	sort.Strings(sorted)

	h := sha256.New()
	for _, t := range sorted {
		h.Write([]byte(t))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// #endregion
