// Package cache stores successful answer envelopes in Redis, keyed by the
// index build they were computed against.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/doc-rag/internal/pipeline"
	pkgredis "github.com/Adithya-Monish-Kumar-K/doc-rag/pkg/redis"
	"golang.org/x/sync/singleflight"
)

const keyPrefix = "rag:answer:"

// Store is the key-value backend; *pkgredis.Client satisfies it.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	FlushByPattern(ctx context.Context, pattern string) (int64, error)
}

// AnswerCache implements pipeline.Cache. Backend failures are logged and
// treated as misses.
type AnswerCache struct {
	store   Store
	ttl     time.Duration
	buildID string
	group   singleflight.Group
	logger  *slog.Logger
	hits    atomic.Int64
	misses  atomic.Int64

	computeTimeout time.Duration
}

// Option configures an AnswerCache.
type Option func(*AnswerCache)

// WithComputeTimeout bounds a shared compute call. Non-positive values keep
// the default of one minute.
func WithComputeTimeout(d time.Duration) Option {
	return func(c *AnswerCache) {
		if d > 0 {
			c.computeTimeout = d
		}
	}
}

func New(store Store, ttl time.Duration, buildID string, opts ...Option) *AnswerCache {
	c := &AnswerCache{
		store:          store,
		ttl:            ttl,
		buildID:        buildID,
		logger:         slog.Default().With("component", "answer-cache", "build_id", buildID),
		computeTimeout: time.Minute,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *AnswerCache) get(ctx context.Context, key string) (*pipeline.Envelope, bool) {
	data, err := c.store.Get(ctx, key)
	if err != nil {
		if !pkgredis.IsNilError(err) {
			c.logger.Warn("cache get failed", "key", key, "error", err)
		}
		return nil, false
	}
	var env pipeline.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		c.logger.Warn("cache entry undecodable", "key", key, "error", err)
		return nil, false
	}
	return &env, true
}

func (c *AnswerCache) set(ctx context.Context, key string, env *pipeline.Envelope) {
	data, err := json.Marshal(env)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	if err := c.store.Set(ctx, key, data, c.ttl); err != nil {
		c.logger.Warn("cache set failed", "key", key, "error", err)
	}
}

// GetOrCompute returns the cached envelope for (query, k) or runs compute.
// Concurrent misses for the same key share one compute call, which runs
// detached from any single caller's cancellation and is bounded by the
// compute timeout. Each caller stops waiting when its own ctx ends. A
// waiter reuses the shared result only when it succeeded and otherwise
// computes its own. Only successful envelopes are stored.
func (c *AnswerCache) GetOrCompute(
	ctx context.Context,
	query string,
	k int,
	compute func(context.Context) pipeline.Result,
) (pipeline.Result, error) {
	key := c.Key(query, k)
	if env, ok := c.get(ctx, key); ok {
		c.hits.Add(1)
		return pipeline.Result{Envelope: env, Source: pipeline.SourceCache}, nil
	}
	c.misses.Add(1)

	var leader bool
	ch := c.group.DoChan(key, func() (any, error) {
		leader = true
		flightCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.computeTimeout)
		defer cancel()
		if env, ok := c.get(flightCtx, key); ok {
			return pipeline.Result{Envelope: env, Source: pipeline.SourceCache}, nil
		}
		res := compute(flightCtx)
		if res.Envelope.Success {
			c.set(flightCtx, key, res.Envelope)
		}
		return res, nil
	})

	select {
	case <-ctx.Done():
		return pipeline.Result{}, fmt.Errorf("waiting for answer: %w", ctx.Err())
	case r := <-ch:
		res := r.Val.(pipeline.Result)
		if leader {
			return res, nil
		}
		if res.Envelope.Success {
			if res.Source == pipeline.SourceComputed {
				res.Source = pipeline.SourceShared
			}
			return res, nil
		}
		c.logger.Debug("shared answer failed, recomputing", "key", key, "error", res.Envelope.Error)
		res = compute(ctx)
		if res.Envelope.Success {
			c.set(ctx, key, res.Envelope)
		}
		return res, nil
	}
}

// Invalidate removes every cached answer, for all builds.
func (c *AnswerCache) Invalidate(ctx context.Context) error {
	deleted, err := c.store.FlushByPattern(ctx, keyPrefix+"*")
	if err != nil {
		return fmt.Errorf("invalidating answer cache: %w", err)
	}
	c.logger.Info("answer cache invalidated", "keys_deleted", deleted)
	return nil
}

func (c *AnswerCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// Key derives the cache key from the build id, the normalized query and k.
func (c *AnswerCache) Key(query string, k int) string {
	raw := fmt.Sprintf("%s|%s|%d", c.buildID, normalizeQuery(query), k)
	sum := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("%s%x", keyPrefix, sum[:16])
}

func normalizeQuery(query string) string {
	return strings.Join(strings.Fields(strings.ToLower(query)), " ")
}
