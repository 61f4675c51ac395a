package session

import (
	"context"
	"log"
	"time"
)

// EvictCallback is called for each class removed by the reaper
type EvictCallback func(classCode string)

// StartReaper runs a background goroutine that periodically evicts classes idle
// for longer than ttl. A non-positive ttl or interval disables it.
func StartReaper(ctx context.Context, store *Store, ttl, interval time.Duration, onEvict EvictCallback) {
	if ttl <= 0 || interval <= 0 {
		log.Printf("Idle class reaper disabled: ttl=%s interval=%s", ttl, interval)
		return
	}

	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		log.Printf("Idle class reaper started: ttl=%s interval=%s", ttl, interval)

		for {
			select {
			case <-ticker.C:
				reapOnce(store, ttl, onEvict)
			case <-ctx.Done():
				log.Printf("Idle class reaper stopping: %v", ctx.Err())
				return
			}
		}
	}()
}

func reapOnce(store *Store, ttl time.Duration, onEvict EvictCallback) {
	evicted := store.ReapIdle(ttl)
	if len(evicted) == 0 {
		return
	}

	log.Printf("Reaped %d idle classes", len(evicted))
	if onEvict == nil {
		return
	}
	for _, code := range evicted {
		onEvict(code)
	}
}
