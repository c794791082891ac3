package ratelimit

import (
	"context"
	"log"
	"sync/atomic"
	"time"
)

// Store selects between the shared backend and the local fallback per
// call.  Every operation tries the shared counter first and falls through
// to the local one on any error, so a Redis outage degrades rate limiting
// to per-process accuracy instead of failing requests.  The switch is
// logged once per outage, not per request.
type Store struct {
	shared   Counter // nil when no shared backend was configured
	local    Counter
	degraded atomic.Bool
}

// NewStore builds a Store.  shared may be nil; the Store then runs purely
// on the local fallback.
func NewStore(shared Counter) *Store {
	s := &Store{shared: shared, local: NewLocalCounter()}
	if shared == nil {
		log.Printf("ratelimit: no shared backend configured; counters are per-process")
		s.degraded.Store(true)
	}
	return s
}

func (s *Store) noteFallback(err error) {
	if s.degraded.CompareAndSwap(false, true) {
		log.Printf("ratelimit: shared backend unavailable, using local counters: %v", err)
	}
}

func (s *Store) noteRecovered() {
	if s.degraded.CompareAndSwap(true, false) {
		log.Printf("ratelimit: shared backend recovered")
	}
}

func (s *Store) Incr(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	if s.shared != nil {
		count, ttl, err := s.shared.Incr(ctx, key, window)
		if err == nil {
			s.noteRecovered()
			return count, ttl, nil
		}
		s.noteFallback(err)
	}
	return s.local.Incr(ctx, key, window)
}

func (s *Store) PutMarker(ctx context.Context, key string, ttl time.Duration) error {
	if s.shared != nil {
		if err := s.shared.PutMarker(ctx, key, ttl); err == nil {
			s.noteRecovered()
			return nil
		} else {
			s.noteFallback(err)
		}
	}
	return s.local.PutMarker(ctx, key, ttl)
}

func (s *Store) MarkerTTL(ctx context.Context, key string) (time.Duration, bool, error) {
	if s.shared != nil {
		ttl, ok, err := s.shared.MarkerTTL(ctx, key)
		if err == nil {
			s.noteRecovered()
			return ttl, ok, nil
		}
		s.noteFallback(err)
	}
	return s.local.MarkerTTL(ctx, key)
}

func (s *Store) Clear(ctx context.Context, keys ...string) error {
	if s.shared != nil {
		if err := s.shared.Clear(ctx, keys...); err != nil {
			s.noteFallback(err)
		} else {
			s.noteRecovered()
		}
	}
	// Always clear locally too: counts may have accrued on both sides
	// across an outage boundary.
	return s.local.Clear(ctx, keys...)
}
