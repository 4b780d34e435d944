package usercache

import (
	"context"
	"errors"
	"time"

	"eterna-home/internal/model"
	"eterna-home/prometheus"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"gorm.io/gorm"
)

// Cache is a short-lived, best-effort user lookup cache keyed by email.
// Implementations must never fail a request: errors degrade to a miss.
type Cache interface {
	Get(ctx context.Context, email string) (*model.User, bool)
	Set(ctx context.Context, email string, user *model.User)
	Invalidate(ctx context.Context, email string)
}

// MemoryCache is an in-process expiring LRU cache
type MemoryCache struct {
	lru *lru.LRU[string, model.User]
}

// NewMemoryCache creates an in-process cache with the given capacity and TTL
func NewMemoryCache(size int, ttl time.Duration) *MemoryCache {
	return &MemoryCache{
		lru: lru.NewLRU[string, model.User](size, nil, ttl),
	}
}

func (c *MemoryCache) Get(_ context.Context, email string) (*model.User, bool) {
	user, ok := c.lru.Get(email)
	if !ok {
		return nil, false
	}
	return &user, true
}

func (c *MemoryCache) Set(_ context.Context, email string, user *model.User) {
	if user == nil {
		return
	}
	c.lru.Add(email, *user)
}

func (c *MemoryCache) Invalidate(_ context.Context, email string) {
	c.lru.Remove(email)
}

// Store resolves users by email through the cache, falling back to the
// primary store. A cache failure or miss is never an authentication
// failure; the database remains authoritative.
type Store struct {
	db    *gorm.DB
	cache Cache
}

// NewStore creates a user store. cache may be nil to disable caching.
func NewStore(db *gorm.DB, cache Cache) *Store {
	return &Store{db: db, cache: cache}
}

// ByEmail returns the user with the given email. Returns
// gorm.ErrRecordNotFound when no such user exists.
func (s *Store) ByEmail(ctx context.Context, email string) (*model.User, error) {
	if s.cache != nil {
		if user, ok := s.cache.Get(ctx, email); ok {
			prometheus.RecordCacheLookup("hit")
			return user, nil
		}
		prometheus.RecordCacheLookup("miss")
	}

	var user model.User
	if err := s.db.WithContext(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		return nil, err
	}

	if s.cache != nil {
		s.cache.Set(ctx, email, &user)
	}
	return &user, nil
}

// ByID returns the user with the given ID, bypassing the cache
func (s *Store) ByID(ctx context.Context, id uint) (*model.User, error) {
	var user model.User
	if err := s.db.WithContext(ctx).First(&user, id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// Invalidate drops the cache entry for the given email. Called whenever a
// user record changes in a way the authorization layer must see
// immediately (disable, role change, delete).
func (s *Store) Invalidate(ctx context.Context, email string) {
	if s.cache != nil {
		s.cache.Invalidate(ctx, email)
	}
}

// IsNotFound reports whether the error is a missing-user error
func IsNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
