package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"beacon/internal/storage"
	"beacon/internal/storage/memory"
	"beacon/internal/storage/mocks"
)

type StoreSuite struct {
	suite.Suite
	ctx     context.Context
	backend *memory.InMemoryStore
	store   *Store
}

func TestStoreSuite(t *testing.T) {
	suite.Run(t, new(StoreSuite))
}

func (s *StoreSuite) SetupTest() {
	s.ctx = context.Background()
	s.backend = memory.New()
	s.store = NewStore(s.backend)
}

func testEvent(name string, props map[string]any) Event {
	return NewEvent(name, props, time.Date(2026, 10, 19, 9, 30, 0, 123_000_000, time.UTC))
}

func (s *StoreSuite) TestLoad() {
	s.Run("missing key loads as empty", func() {
		events := NewStore(memory.New()).Load(s.ctx)
		s.NotNil(events)
		s.Empty(events)
	})

	for _, raw := range []string{"not json", "{\"eventName\":\"x\"}", "[1,2,3]", "[]garbage", "[{\"eventName\":"} {
		s.Run(fmt.Sprintf("corrupt blob %q loads as empty", raw), func() {
			backend := memory.New()
			s.Require().NoError(backend.Set(s.ctx, storage.QueueKey, raw))
			store := NewStore(backend)
			s.Empty(store.Load(s.ctx))
			s.Empty(store.Load(s.ctx), "load stays idempotent")
		})
	}

	s.Run("null and empty blobs load as empty", func() {
		for _, raw := range []string{"null", "", "  "} {
			backend := memory.New()
			s.Require().NoError(backend.Set(s.ctx, storage.QueueKey, raw))
			s.Empty(NewStore(backend).Load(s.ctx))
		}
	})

	s.Run("read failure loads as empty without writing", func() {
		ctrl := gomock.NewController(s.T())
		backend := mocks.NewMockStorage(ctrl)
		backend.EXPECT().Get(gomock.Any(), storage.QueueKey).Return("", errors.New("io error"))
		s.Empty(NewStore(backend).Load(s.ctx))
	})

	s.Run("corruption heals on next enqueue", func() {
		backend := memory.New()
		s.Require().NoError(backend.Set(s.ctx, storage.QueueKey, "{{{"))
		store := NewStore(backend)

		e := testEvent("app_started", nil)
		s.Require().NoError(store.Enqueue(s.ctx, e))
		s.Equal([]Event{e}, store.Load(s.ctx))
	})
}

func (s *StoreSuite) TestEnqueue() {
	s.Run("last element equals the enqueued event", func() {
		s.Require().NoError(s.store.Enqueue(s.ctx, testEvent("a", map[string]any{"questId": "q1"})))
		e := testEvent("b", map[string]any{"questId": "q2", "anonymous": true})
		s.Require().NoError(s.store.Enqueue(s.ctx, e))

		events := s.store.Load(s.ctx)
		s.Require().Len(events, 2)
		s.Equal(e, events[len(events)-1])
	})

	s.Run("preserves FIFO order", func() {
		store := NewStore(memory.New())
		var want []string
		for i := range 20 {
			name := fmt.Sprintf("event_%02d", i)
			want = append(want, name)
			s.Require().NoError(store.Enqueue(s.ctx, testEvent(name, nil)))
		}

		var got []string
		for _, e := range store.Load(s.ctx) {
			got = append(got, e.EventName)
		}
		s.Equal(want, got)
	})

	s.Run("concurrent enqueues lose nothing", func() {
		store := NewStore(memory.New())
		var wg sync.WaitGroup
		for i := range 50 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				s.NoError(store.Enqueue(s.ctx, testEvent(fmt.Sprintf("e%d", i), nil)))
			}()
		}
		wg.Wait()
		s.Equal(50, store.Len(s.ctx))
	})

	s.Run("write failure is returned", func() {
		ctrl := gomock.NewController(s.T())
		backend := mocks.NewMockStorage(ctrl)
		backend.EXPECT().Get(gomock.Any(), storage.QueueKey).Return("[]", nil)
		backend.EXPECT().Set(gomock.Any(), storage.QueueKey, gomock.Any()).Return(errors.New("quota exceeded"))

		err := NewStore(backend).Enqueue(s.ctx, testEvent("a", nil))
		s.Require().Error(err)
		s.Contains(err.Error(), "write queue")
	})
}

func (s *StoreSuite) TestRoundTrip() {
	s.Run("load then save is byte-for-byte lossless", func() {
		s.Require().NoError(s.store.Enqueue(s.ctx, testEvent("quest_completed", map[string]any{
			"questId": "q1",
			"xp":      12345678901234567,
			"ratio":   0.1,
			"badge":   "gold",
			"nested":  map[string]any{"a": []any{1, "two"}},
		})))
		before, err := s.backend.Get(s.ctx, storage.QueueKey)
		s.Require().NoError(err)

		s.Require().NoError(s.store.Save(s.ctx, s.store.Load(s.ctx)))

		after, err := s.backend.Get(s.ctx, storage.QueueKey)
		s.Require().NoError(err)
		s.Equal(before, after)
	})

	s.Run("numbers come back as json.Number", func() {
		store := NewStore(memory.New())
		s.Require().NoError(store.Enqueue(s.ctx, testEvent("quest_completed", map[string]any{"xp": 50})))
		s.Equal(json.Number("50"), store.Load(s.ctx)[0].Properties["xp"])
	})

	s.Run("saving nil persists an empty array", func() {
		s.Require().NoError(s.store.Save(s.ctx, nil))
		raw, err := s.backend.Get(s.ctx, storage.QueueKey)
		s.Require().NoError(err)
		s.Equal("[]", raw)
	})
}

func (s *StoreSuite) TestTrim() {
	s.Run("trimming the full snapshot empties the queue", func() {
		store := NewStore(memory.New())
		for _, n := range []string{"a", "b", "c"} {
			s.Require().NoError(store.Enqueue(s.ctx, testEvent(n, nil)))
		}
		s.Require().NoError(store.Trim(s.ctx, 3))
		s.Empty(store.Load(s.ctx))
	})

	s.Run("events appended after the snapshot survive", func() {
		store := NewStore(memory.New())
		for _, n := range []string{"a", "b", "c"} {
			s.Require().NoError(store.Enqueue(s.ctx, testEvent(n, nil)))
		}
		late := testEvent("late", nil)
		s.Require().NoError(store.Enqueue(s.ctx, late))

		s.Require().NoError(store.Trim(s.ctx, 3))
		s.Equal([]Event{late}, store.Load(s.ctx))
	})

	s.Run("non-positive n writes nothing", func() {
		ctrl := gomock.NewController(s.T())
		backend := mocks.NewMockStorage(ctrl)
		s.NoError(NewStore(backend).Trim(s.ctx, 0))
	})
}

// flakyStorage fails the next failNext Get calls, then defers to the wrapped
// store.
type flakyStorage struct {
	storage.Storage
	failNext int
}

func (f *flakyStorage) Get(ctx context.Context, key string) (string, error) {
	if f.failNext > 0 {
		f.failNext--
		return "", errors.New("i/o timeout")
	}
	return f.Storage.Get(ctx, key)
}

func (s *StoreSuite) TestTransientReadFailure() {
	names := func(events []Event) []string {
		var out []string
		for _, e := range events {
			out = append(out, e.EventName)
		}
		return out
	}
	seeded := func() (*flakyStorage, *Store) {
		backend := &flakyStorage{Storage: memory.New()}
		store := NewStore(backend)
		for _, n := range []string{"a", "b", "c"} {
			s.Require().NoError(store.Enqueue(s.ctx, testEvent(n, nil)))
		}
		return backend, store
	}

	s.Run("enqueue returns the error and keeps queued events", func() {
		backend, store := seeded()
		backend.failNext = 1

		err := store.Enqueue(s.ctx, testEvent("d", nil))
		s.Require().Error(err)
		s.Contains(err.Error(), "read queue")
		s.Equal([]string{"a", "b", "c"}, names(store.Load(s.ctx)))

		s.Require().NoError(store.Enqueue(s.ctx, testEvent("d", nil)))
		s.Equal([]string{"a", "b", "c", "d"}, names(store.Load(s.ctx)))
	})

	s.Run("trim returns the error and keeps queued events", func() {
		backend, store := seeded()
		backend.failNext = 1

		s.Require().Error(store.Trim(s.ctx, 2))
		s.Equal([]string{"a", "b", "c"}, names(store.Load(s.ctx)))
	})

	s.Run("write is never attempted after a failed read", func() {
		ctrl := gomock.NewController(s.T())
		backend := mocks.NewMockStorage(ctrl)
		backend.EXPECT().Get(gomock.Any(), storage.QueueKey).Return("", errors.New("connection reset")).Times(2)

		store := NewStore(backend)
		s.Error(store.Enqueue(s.ctx, testEvent("a", nil)))
		s.Error(store.Trim(s.ctx, 1))
	})
}

func TestNewEvent(t *testing.T) {
	at := time.Date(2026, 10, 19, 9, 30, 0, 5_000_000, time.FixedZone("CEST", 2*3600))
	props := map[string]any{"questId": "q1"}

	e := NewEvent("qr_scan_success", props, at)

	if e.DeviceTime != "2026-10-19T07:30:00.005Z" {
		t.Fatalf("unexpected device time %q", e.DeviceTime)
	}
	if e.Properties[DeviceTimeProperty] != e.DeviceTime {
		t.Fatalf("payload deviceTime %v does not match %q", e.Properties[DeviceTimeProperty], e.DeviceTime)
	}
	props["questId"] = "mutated"
	if e.Properties["questId"] != "q1" {
		t.Fatalf("event properties must not alias the caller's map")
	}
	if _, ok := props[DeviceTimeProperty]; ok {
		t.Fatalf("caller's map must not gain deviceTime")
	}
}
