package session

import (
	"context"
	"testing"
	"time"
)

func TestReapOnce_InvokesCallback(t *testing.T) {
	store := NewStore()
	now := time.Now()
	store.now = func() time.Time { return now }

	code, _ := store.CreateSession(testTeacher)
	now = now.Add(time.Hour)

	var evicted []string
	reapOnce(store, time.Minute, func(classCode string) {
		evicted = append(evicted, classCode)
	})

	if len(evicted) != 1 || evicted[0] != code {
		t.Errorf("expected callback for %s, got %v", code, evicted)
	}
}

func TestStartReaper_Disabled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Should return immediately without starting a goroutine
	StartReaper(ctx, NewStore(), 0, time.Second, nil)
	StartReaper(ctx, NewStore(), time.Minute, 0, nil)
}

func TestStartReaper_EvictsIdleClass(t *testing.T) {
	store := NewStore()
	code, _ := store.CreateSession(testTeacher)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	evictedCh := make(chan string, 1)
	StartReaper(ctx, store, time.Nanosecond, 10*time.Millisecond, func(classCode string) {
		evictedCh <- classCode
	})

	select {
	case got := <-evictedCh:
		if got != code {
			t.Errorf("expected %s evicted, got %s", code, got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("reaper did not evict idle class")
	}
}
