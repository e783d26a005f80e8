package cache

import (
	"context"
	"crypto/tls"
	"errors"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/redis/go-redis/v9"
)

// Scope for Azure Managed Redis access tokens.
const entraIDScope = "https://redis.azure.com/.default"

// Redis implements Cache on top of a go-redis client.
type Redis struct {
	client *redis.Client
}

// New connects to a plain Redis instance (local dev: no TLS, no auth).
func New(addr string) *Redis {
	return &Redis{client: redis.NewClient(&redis.Options{Addr: addr})}
}

// NewEntraID connects to an Azure-managed Redis over TLS, authenticating with
// the ambient managed identity. Tokens are fetched per connection handshake,
// so expired credentials heal on reconnect.
func NewEntraID(addr, username string) (*Redis, error) {
	cred, err := azidentity.NewDefaultAzureCredential(nil)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(&redis.Options{
		Addr:      addr,
		TLSConfig: &tls.Config{MinVersion: tls.VersionTLS12},
		CredentialsProviderContext: func(ctx context.Context) (string, string, error) {
			tok, err := cred.GetToken(ctx, policy.TokenRequestOptions{Scopes: []string{entraIDScope}})
			if err != nil {
				return "", "", err
			}
			return username, tok.Token, nil
		},
	})
	return &Redis{client: client}, nil
}

// Ping checks connectivity; used at startup for an early failure.
func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close releases the underlying connection pool.
func (r *Redis) Close() error { return r.client.Close() }

// Get retrieves the value for key, or ErrCacheMiss.
func (r *Redis) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	return b, err
}

// Set stores val under key with an optional TTL.
func (r *Redis) Set(ctx context.Context, key string, val []byte, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	return r.client.Set(ctx, key, val, ttl).Err()
}

// Delete removes key; removing an absent key succeeds.
func (r *Redis) Delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, key).Err()
}
