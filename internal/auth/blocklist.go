package auth

import (
	"context"
	"errors"
	"time"

	"github.com/sakif/smilecook/internal/cache"
)

const blocklistPrefix = "blocklist:"

// Blocklist remembers revoked token ids until the token would have expired
// anyway. Entries live in the shared cache so every server instance sees a
// revocation made on any other.
type Blocklist struct {
	cache cache.Cache
	now   func() time.Time
}

// NewBlocklist stores revoked ids in c under the "blocklist:" prefix.
func NewBlocklist(c cache.Cache) *Blocklist {
	return &Blocklist{cache: c, now: time.Now}
}

// Revoke blocks the token described by claims. A token that has already
// expired needs no entry.
func (b *Blocklist) Revoke(ctx context.Context, claims *Claims) error {
	ttl := claims.Remaining(b.now())
	if ttl <= 0 || claims.ID == "" {
		return nil
	}
	return b.cache.Set(ctx, blocklistPrefix+claims.ID, []byte{1}, ttl)
}

// IsRevoked reports whether the token id jti has been revoked.
func (b *Blocklist) IsRevoked(ctx context.Context, jti string) (bool, error) {
	_, err := b.cache.Get(ctx, blocklistPrefix+jti)
	if errors.Is(err, cache.ErrMiss) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
