package cart

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/noah-isme/toko-storefront/internal/lock"
	"github.com/noah-isme/toko-storefront/internal/storeapi"
)

// ProductSource fetches a live product from the store API.
type ProductSource interface {
	Product(ctx context.Context, id string) (storeapi.Product, error)
}

// Locker serialises work on a key. lock.Locker satisfies it.
type Locker interface {
	WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error
}

// Service encapsulates cart domain operations scoped to a session.
type Service struct {
	Store    Store
	Products ProductSource
	Locker   Locker
	LockTTL  time.Duration
}

// SessionLockKey is the lock shared by every mutation of a session's
// cart, coupon and checkout state.
func SessionLockKey(session string) string {
	return lock.Key("session", session)
}

func (s *Service) withLock(ctx context.Context, session string, fn func(context.Context) error) error {
	if s.Locker == nil {
		return fn(ctx)
	}
	return s.Locker.WithLock(ctx, SessionLockKey(session), s.LockTTL, fn)
}

func (s *Service) ready(session string) error {
	if s == nil || s.Store == nil {
		return errors.New("cart service not configured")
	}
	if strings.TrimSpace(session) == "" {
		return errors.New("cart: session required")
	}
	return nil
}

// Get returns the session's cart.
func (s *Service) Get(ctx context.Context, session string) (Cart, error) {
	if err := s.ready(session); err != nil {
		return Cart{}, err
	}
	return s.Store.Load(ctx, session)
}

// Add fetches a fresh product snapshot and adds qty units of it.
func (s *Service) Add(ctx context.Context, session, productID string, qty int) (Cart, error) {
	if err := s.ready(session); err != nil {
		return Cart{}, err
	}
	if qty <= 0 {
		return Cart{}, ErrInvalidQuantity
	}
	if s.Products == nil {
		return Cart{}, errors.New("cart: product source not configured")
	}
	p, err := s.Products.Product(ctx, productID)
	if err != nil {
		return Cart{}, fmt.Errorf("fetch product %s: %w", productID, err)
	}
	snapshot := ProductFromAPI(p)
	return s.mutate(ctx, session, func(c *Cart) error {
		return c.Add(snapshot, qty)
	})
}

// UpdateQuantity sets the quantity of a line. qty <= 0 removes it.
func (s *Service) UpdateQuantity(ctx context.Context, session, productID string, qty int) (Cart, error) {
	if err := s.ready(session); err != nil {
		return Cart{}, err
	}
	return s.mutate(ctx, session, func(c *Cart) error {
		return c.SetQuantity(productID, qty)
	})
}

// Remove deletes a line. It succeeds when the product is absent.
func (s *Service) Remove(ctx context.Context, session, productID string) (Cart, error) {
	if err := s.ready(session); err != nil {
		return Cart{}, err
	}
	return s.mutate(ctx, session, func(c *Cart) error {
		c.Remove(productID)
		return nil
	})
}

// Clear empties the cart.
func (s *Service) Clear(ctx context.Context, session string) error {
	if err := s.ready(session); err != nil {
		return err
	}
	return s.withLock(ctx, session, func(ctx context.Context) error {
		return s.Store.Delete(ctx, session)
	})
}

func (s *Service) mutate(ctx context.Context, session string, fn func(*Cart) error) (Cart, error) {
	var out Cart
	err := s.withLock(ctx, session, func(ctx context.Context) error {
		c, err := s.Store.Load(ctx, session)
		if err != nil {
			return err
		}
		if err := fn(&c); err != nil {
			return err
		}
		if err := s.Store.Save(ctx, session, c); err != nil {
			return err
		}
		out = c
		return nil
	})
	return out, err
}
