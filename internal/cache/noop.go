package cache

import (
	"context"
	"time"
)

// Noop is a Cache that never stores anything; every Get is a miss.
// Used when caching is disabled so the service layer needs no branching.
type Noop struct{}

func (Noop) Get(ctx context.Context, key string) ([]byte, error) { return nil, ErrCacheMiss }

func (Noop) Set(ctx context.Context, key string, val []byte, ttl time.Duration) error { return nil }

func (Noop) Delete(ctx context.Context, key string) error { return nil }
