package keylock

import (
	"sync"
	"testing"
	"time"
)

func TestLockSerializesSameKey(t *testing.T) {
	m := New()
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		active  int
		maxSeen int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release := m.Lock("cr-1")
			defer release()

			mu.Lock()
			active++
			if active > maxSeen {
				maxSeen = active
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			active--
			mu.Unlock()
		}()
	}
	wg.Wait()

	if maxSeen != 1 {
		t.Fatalf("expected exclusive access, saw %d concurrent holders", maxSeen)
	}
	if m.Len() != 0 {
		t.Fatalf("expected released keys to be dropped, %d remain", m.Len())
	}
}

func TestLockAllowsDifferentKeys(t *testing.T) {
	m := New()
	releaseA := m.Lock("a")
	defer releaseA()

	done := make(chan struct{})
	go func() {
		release := m.Lock("b")
		release()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("lock on a different key blocked")
	}
}

func TestReleaseIsIdempotent(t *testing.T) {
	m := New()
	release := m.Lock("a")
	release()
	release()

	if m.Len() != 0 {
		t.Fatalf("expected no held keys, got %d", m.Len())
	}
}
