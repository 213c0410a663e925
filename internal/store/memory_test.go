package store

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func finishedAt(t time.Time) *time.Time {
	return &t
}

func TestNewMemoryStore(t *testing.T) {
	store := NewMemoryStore(0)
	if store == nil {
		t.Fatal("NewMemoryStore() = nil")
	}
	if store.retainFinished != DefaultRetainFinished {
		t.Errorf("retainFinished = %d, want %d", store.retainFinished, DefaultRetainFinished)
	}
	if len(store.GetAll()) != 0 {
		t.Errorf("GetAll() = %v items, want 0", len(store.GetAll()))
	}
}

func TestMemoryStore_UpdateAndGet(t *testing.T) {
	store := NewMemoryStore(10)

	store.Update(SessionSnapshot{
		ID:        "a",
		URL:       "https://exports.example.com/export/1/status",
		State:     "polling",
		Polls:     2,
		ElapsedMs: 10000,
		StartedAt: epoch,
	})

	got, ok := store.Get("a")
	if !ok {
		t.Fatal("Get() did not find session")
	}
	if got.State != "polling" || got.Polls != 2 {
		t.Errorf("Get() = %+v", got)
	}

	if _, ok := store.Get("missing"); ok {
		t.Error("Get() found unknown session")
	}
}

func TestMemoryStore_UpdateOverwrites(t *testing.T) {
	store := NewMemoryStore(10)

	store.Update(SessionSnapshot{ID: "a", State: "polling", StartedAt: epoch})
	store.Update(SessionSnapshot{ID: "a", State: "done", StartedAt: epoch, FinishedAt: finishedAt(epoch)})

	all := store.GetAll()
	if len(all) != 1 {
		t.Fatalf("GetAll() = %v items, want 1", len(all))
	}
	if all[0].State != "done" {
		t.Errorf("GetAll()[0].State = %v, want done", all[0].State)
	}
}

func TestMemoryStore_GetAllOrdered(t *testing.T) {
	store := NewMemoryStore(10)

	store.Update(SessionSnapshot{ID: "c", StartedAt: epoch.Add(2 * time.Second)})
	store.Update(SessionSnapshot{ID: "a", StartedAt: epoch})
	store.Update(SessionSnapshot{ID: "b", StartedAt: epoch.Add(time.Second)})

	all := store.GetAll()
	for i, want := range []string{"a", "b", "c"} {
		if all[i].ID != want {
			t.Errorf("GetAll()[%d].ID = %v, want %v", i, all[i].ID, want)
		}
	}
}

func TestMemoryStore_EvictsOldestFinished(t *testing.T) {
	store := NewMemoryStore(2)

	store.Update(SessionSnapshot{ID: "active", State: "polling", StartedAt: epoch})
	for i := 0; i < 4; i++ {
		id := fmt.Sprintf("f%d", i)
		store.Update(SessionSnapshot{
			ID:         id,
			State:      "done",
			StartedAt:  epoch,
			FinishedAt: finishedAt(epoch.Add(time.Duration(i) * time.Second)),
		})
	}

	if _, ok := store.Get("active"); !ok {
		t.Error("active session was evicted")
	}
	for _, id := range []string{"f0", "f1"} {
		if _, ok := store.Get(id); ok {
			t.Errorf("session %s should have been evicted", id)
		}
	}
	for _, id := range []string{"f2", "f3"} {
		if _, ok := store.Get(id); !ok {
			t.Errorf("session %s should be retained", id)
		}
	}
}

func TestMemoryStore_Subscribe(t *testing.T) {
	store := NewMemoryStore(10)

	ch := store.Subscribe()
	if ch == nil {
		t.Fatal("Subscribe() = nil")
	}

	go func() {
		store.Update(SessionSnapshot{ID: "a", State: "polling"})
	}()

	select {
	case s := <-ch:
		if s.ID != "a" {
			t.Errorf("received ID = %v, want a", s.ID)
		}
	case <-time.After(time.Second):
		t.Error("Subscribe() channel did not receive update")
	}
}

func TestMemoryStore_MultipleSubscribers(t *testing.T) {
	store := NewMemoryStore(10)

	subs := []<-chan SessionSnapshot{store.Subscribe(), store.Subscribe(), store.Subscribe()}
	store.Update(SessionSnapshot{ID: "a"})

	for i, ch := range subs {
		select {
		case s := <-ch:
			if s.ID != "a" {
				t.Errorf("subscriber %d received ID = %v", i, s.ID)
			}
		case <-time.After(time.Second):
			t.Errorf("subscriber %d did not receive update", i)
		}
	}
}

func TestMemoryStore_Unsubscribe(t *testing.T) {
	store := NewMemoryStore(10)

	ch := store.Subscribe()
	store.Unsubscribe(ch)

	if _, ok := <-ch; ok {
		t.Error("channel should be closed after Unsubscribe")
	}

	// second call and unknown channel are no-ops
	store.Unsubscribe(ch)
	store.Unsubscribe(make(chan SessionSnapshot))

	store.Update(SessionSnapshot{ID: "a"})
}

func TestMemoryStore_SlowSubscriberDoesNotBlock(t *testing.T) {
	store := NewMemoryStore(10)
	_ = store.Subscribe() // never read

	done := make(chan struct{})
	go func() {
		for i := 0; i < subscriberBuffer*2; i++ {
			store.Update(SessionSnapshot{ID: "a", Polls: i})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Update blocked on a slow subscriber")
	}
}

func TestMemoryStore_ConcurrentAccess(t *testing.T) {
	store := NewMemoryStore(5)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			id := fmt.Sprintf("s%d", n)
			store.Update(SessionSnapshot{ID: id, State: "polling", StartedAt: epoch})
			store.Update(SessionSnapshot{ID: id, State: "done", StartedAt: epoch, FinishedAt: finishedAt(epoch.Add(time.Duration(n)))})
			_ = store.GetAll()
		}(i)
	}
	wg.Wait()

	if got := len(store.GetAll()); got != 5 {
		t.Errorf("GetAll() = %d items, want 5", got)
	}
}
