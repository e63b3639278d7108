// Package epoch caches the forward ratchet of per-space key-encryption keys.
package epoch

import (
	"errors"
	"sync"

	lru "github.com/hashicorp/golang-lru"

	"github.com/TheMichaelB/spacesync/internal/config"
	"github.com/TheMichaelB/spacesync/internal/crypto"
	"github.com/TheMichaelB/spacesync/internal/events"
	"github.com/TheMichaelB/spacesync/internal/models"
)

// DefaultMaxAdvance bounds how far past the base epoch KEK will derive.
// Options may lower it but never raise it.
const DefaultMaxAdvance uint32 = config.MaxEpochAdvanceLimit

// ErrClosed is returned by a cache whose keys have been destroyed.
var ErrClosed = errors.New("epoch cache is closed")

// Options tunes a Cache.
type Options struct {
	// MaxAdvance is the largest permitted distance from the base epoch.
	MaxAdvance uint32

	// Capacity is the number of derived keys kept. Defaults to MaxAdvance+1.
	Capacity int

	Logger *events.Logger
}

// OptionsFromConfig maps the sync configuration onto cache options.
func OptionsFromConfig(cfg config.SyncConfig, logger *events.Logger) Options {
	return Options{
		MaxAdvance: cfg.MaxEpochAdvance,
		Capacity:   cfg.EpochCacheSize,
		Logger:     logger,
	}
}

// Cache holds the base KEK of one space and memoizes every key derived
// forward from it. Returned keys are copies owned by the caller.
type Cache struct {
	mu sync.Mutex

	spaceID      string
	baseEpoch    uint32
	currentEpoch uint32
	maxAdvance   uint32

	base   *crypto.SecretBuffer
	memo   *lru.Cache
	logger *events.Logger
	closed bool
}

// NewCache creates a cache with default options.
func NewCache(baseKey []byte, baseEpoch uint32, spaceID string) (*Cache, error) {
	return NewCacheWithOptions(baseKey, baseEpoch, spaceID, Options{})
}

// NewCacheWithOptions creates a cache for spaceID whose base key belongs to
// baseEpoch. The base key is copied.
func NewCacheWithOptions(baseKey []byte, baseEpoch uint32, spaceID string, opts Options) (*Cache, error) {
	if err := crypto.ValidateKeySize(baseKey); err != nil {
		return nil, err
	}

	if opts.MaxAdvance == 0 || opts.MaxAdvance > DefaultMaxAdvance {
		opts.MaxAdvance = DefaultMaxAdvance
	}
	if opts.Capacity <= 0 {
		opts.Capacity = int(opts.MaxAdvance) + 1
	}

	memo, err := lru.NewWithEvict(opts.Capacity, func(_ interface{}, value interface{}) {
		if key, ok := value.([]byte); ok {
			crypto.Zero(key)
		}
	})
	if err != nil {
		return nil, err
	}

	return &Cache{
		spaceID:      spaceID,
		baseEpoch:    baseEpoch,
		currentEpoch: baseEpoch,
		maxAdvance:   opts.MaxAdvance,
		base:         crypto.NewSecretBuffer(baseKey),
		memo:         memo,
		logger: opts.Logger.WithFields(map[string]interface{}{
			"component": "epoch_cache",
			"space_id":  spaceID,
		}),
	}, nil
}

// SpaceID returns the space the cache derives keys for.
func (c *Cache) SpaceID() string {
	return c.spaceID
}

// BaseEpoch returns the epoch of the base key.
func (c *Cache) BaseEpoch() uint32 {
	return c.baseEpoch
}

// CurrentEpoch returns the epoch used for new encryptions.
func (c *Cache) CurrentEpoch() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentEpoch
}

// UpdateEncryptionEpoch moves the encryption epoch forward. Smaller or
// equal values are ignored.
func (c *Cache) UpdateEncryptionEpoch(epoch uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if epoch > c.currentEpoch {
		c.logger.WithFields(map[string]interface{}{
			"from": c.currentEpoch,
			"to":   epoch,
		}).Debug("Advancing encryption epoch")
		c.currentEpoch = epoch
	}
}

// KEK returns the key-encryption key for epoch.
func (c *Cache) KEK(epoch uint32) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrClosed
	}

	if epoch == c.baseEpoch {
		return c.base.Copy(), nil
	}
	if epoch < c.baseEpoch {
		return nil, &models.BackwardDerivationError{Target: epoch, Base: c.baseEpoch}
	}

	distance := epoch - c.baseEpoch
	if distance > c.maxAdvance {
		return nil, &models.EpochTooFarAheadError{
			Target:   epoch,
			Base:     c.baseEpoch,
			Distance: distance,
			Max:      c.maxAdvance,
		}
	}

	if cached, ok := c.memo.Get(epoch); ok {
		return clone(cached.([]byte)), nil
	}

	// Start from the closest memoized ancestor.
	start := c.baseEpoch
	key := c.base.Copy()
	for e := epoch - 1; e > c.baseEpoch; e-- {
		if cached, ok := c.memo.Peek(e); ok {
			crypto.Zero(key)
			key = clone(cached.([]byte))
			start = e
			break
		}
	}

	for e := start; e < epoch; {
		e++
		next, err := crypto.DeriveNextEpochKey(key, c.spaceID, e)
		crypto.Zero(key)
		if err != nil {
			return nil, err
		}
		c.memo.Add(e, clone(next))
		key = next
	}

	c.logger.WithFields(map[string]interface{}{
		"epoch": epoch,
		"steps": epoch - start,
	}).Debug("Derived epoch key")

	return key, nil
}

// Len reports how many derived keys are memoized.
func (c *Cache) Len() int {
	return c.memo.Len()
}

// Close zeroizes the base key and every memoized key.
func (c *Cache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	c.memo.Purge()
	c.base.Destroy()
	return nil
}

func clone(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
