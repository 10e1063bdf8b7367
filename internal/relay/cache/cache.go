// Package cache memoizes answers for pass-through runs in Redis. Identical
// concurrent misses are collapsed into one downstream call.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/hackrx-gateway/internal/relay"
	apperrors "github.com/Adithya-Monish-Kumar-K/hackrx-gateway/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/hackrx-gateway/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/hackrx-gateway/pkg/metrics"
)

const keyPrefix = "hackrx:answers:"

// Store is the key/value backend; *redis.Client satisfies it.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
}

type AnswerCache struct {
	store   Store
	ttl     time.Duration
	group   singleflight.Group
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func New(store Store, ttl time.Duration, m *metrics.Metrics) *AnswerCache {
	return &AnswerCache{
		store:   store,
		ttl:     ttl,
		metrics: m,
		logger:  logger.WithComponent("answer-cache"),
	}
}

// Get returns the cached response for reference and questions. Store and
// decode errors are logged and reported as a miss.
func (c *AnswerCache) Get(ctx context.Context, reference string, questions []string) (*relay.Response, bool) {
	key := Key(reference, questions)
	data, found, err := c.store.Get(ctx, key)
	if err != nil {
		logger.FromContext(ctx).Warn("answer cache get failed", "key", key, "error", err)
		return nil, false
	}
	if !found {
		return nil, false
	}
	var resp relay.Response
	if err := json.Unmarshal([]byte(data), &resp); err != nil {
		c.logger.Error("answer cache decode failed", "key", key, "error", err)
		return nil, false
	}
	if resp.Answers == nil {
		resp.Answers = []string{}
	}
	if resp.RelevantClauses == nil {
		resp.RelevantClauses = []string{}
	}
	return &resp, true
}

// Set stores resp; failures are only logged.
func (c *AnswerCache) Set(ctx context.Context, reference string, questions []string, resp *relay.Response) {
	key := Key(reference, questions)
	data, err := json.Marshal(resp)
	if err != nil {
		c.logger.Error("answer cache encode failed", "key", key, "error", err)
		return
	}
	if err := c.store.Set(ctx, key, string(data), c.ttl); err != nil {
		logger.FromContext(ctx).Warn("answer cache set failed", "key", key, "error", err)
	}
}

// GetOrRelay serves a cached response or calls relayFn, sharing a single
// in-flight call between identical concurrent requests. Only successful
// responses are stored. hit reports whether the response came from Redis.
//
// The shared call runs under a context that keeps ctx's values but not its
// cancellation, so a caller that goes away does not fail the others waiting
// on the same key; relayFn must bound itself with its own timeout. Each
// caller still stops waiting when its own ctx is done.
func (c *AnswerCache) GetOrRelay(
	ctx context.Context,
	reference string,
	questions []string,
	relayFn func(ctx context.Context) (*relay.Response, error),
) (resp *relay.Response, hit bool, err error) {
	if cached, ok := c.Get(ctx, reference, questions); ok {
		c.metrics.CacheHitsTotal.Inc()
		return cached, true, nil
	}
	c.metrics.CacheMissesTotal.Inc()

	shared := context.WithoutCancel(ctx)
	ch := c.group.DoChan(Key(reference, questions), func() (any, error) {
		resp, err := relayFn(shared)
		if err != nil {
			return nil, err
		}
		c.Set(shared, reference, questions, resp)
		return resp, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, false, res.Err
		}
		return res.Val.(*relay.Response), false, nil
	case <-ctx.Done():
		return nil, false, apperrors.RelayFailed(ctx.Err().Error())
	}
}

// Key derives the Redis key for a reference and its ordered questions.
func Key(reference string, questions []string) string {
	raw := reference + "\n" + strings.Join(questions, "\n")
	hash := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("%s%x", keyPrefix, hash[:16])
}
