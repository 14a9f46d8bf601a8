package tracker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"beacon/internal/connectivity"
	"beacon/internal/flush"
	"beacon/internal/identity"
	"beacon/internal/platform/metrics"
	"beacon/internal/queue"
	sinkmocks "beacon/internal/sink/mocks"
	"beacon/internal/storage"
	"beacon/internal/storage/memory"
	storagemocks "beacon/internal/storage/mocks"
)

type identifyingSink struct {
	*sinkmocks.MockSink
	*sinkmocks.MockIdentifier
}

type TrackerSuite struct {
	suite.Suite
	ctx      context.Context
	ctrl     *gomock.Controller
	sink     identifyingSink
	backend  *memory.InMemoryStore
	queue    *queue.Store
	monitor  *connectivity.Monitor
	coord    *flush.Coordinator
	metrics  *metrics.Metrics
	tracker  *Tracker
	clockNow time.Time
}

func TestTrackerSuite(t *testing.T) {
	suite.Run(t, new(TrackerSuite))
}

func (s *TrackerSuite) SetupTest() {
	s.ctx = context.Background()
	s.ctrl = gomock.NewController(s.T())
	s.sink = identifyingSink{sinkmocks.NewMockSink(s.ctrl), sinkmocks.NewMockIdentifier(s.ctrl)}
	s.backend = memory.New()
	s.queue = queue.NewStore(s.backend)
	s.monitor = connectivity.NewMonitor(true)
	s.metrics = metrics.New(prometheus.NewRegistry())
	s.clockNow = time.Date(2026, 10, 19, 9, 30, 0, 0, time.UTC)

	coord, err := flush.New(s.queue, s.monitor, s.sink)
	s.Require().NoError(err)
	s.coord = coord

	tr, err := New(s.sink, s.queue, identity.New(s.backend, identity.WithGenerator(func() string { return "device-1" })),
		s.monitor, s.coord,
		WithMetrics(s.metrics),
		WithClock(func() time.Time { return s.clockNow }),
	)
	s.Require().NoError(err)
	s.tracker = tr
	s.T().Cleanup(tr.Close)
}

func (s *TrackerSuite) expectIdentify() {
	s.sink.MockIdentifier.EXPECT().Identify(gomock.Any(), "device-1").Return(nil)
}

func (s *TrackerSuite) TestNewValidation() {
	q, id, conn := s.queue, identity.New(s.backend), s.monitor
	_, err := New(nil, q, id, conn, s.coord)
	s.Error(err)
	_, err = New(s.sink, nil, id, conn, s.coord)
	s.Error(err)
	_, err = New(s.sink, q, nil, conn, s.coord)
	s.Error(err)
	_, err = New(s.sink, q, id, nil, s.coord)
	s.Error(err)
	_, err = New(s.sink, q, id, conn, nil)
	s.Error(err)
}

func (s *TrackerSuite) TestTrackOfflinePreservesOrder() {
	s.expectIdentify()
	s.monitor.Set(false)

	names := []string{"app_started", "landing_viewed", "quest_viewed", "quest_started"}
	for i, name := range names {
		s.clockNow = s.clockNow.Add(time.Second)
		s.Equal(OutcomeQueued, s.tracker.Track(s.ctx, name, map[string]any{"i": i}))
	}

	events := s.queue.Load(s.ctx)
	s.Require().Len(events, len(names))
	for i, ev := range events {
		s.Equal(names[i], ev.EventName)
		s.EqualValues(i, mustInt(s.T(), ev.Properties["i"]))
		s.Equal(ev.DeviceTime, ev.Properties[queue.DeviceTimeProperty])
	}
	s.Equal("2026-10-19T09:30:01.000Z", events[0].DeviceTime)
	s.Equal(4.0, testutil.ToFloat64(s.metrics.TrackedEvents.WithLabelValues("queued")))
	s.Equal(4.0, testutil.ToFloat64(s.metrics.QueueDepth))
}

func (s *TrackerSuite) TestTrackOnlineSuccess() {
	s.expectIdentify()
	s.sink.MockSink.EXPECT().Deliver(gomock.Any(), "quest_started", gomock.Any()).
		DoAndReturn(func(_ context.Context, _ string, props map[string]any) error {
			s.Equal("q1", props["questId"])
			s.Equal("2026-10-19T09:30:00.000Z", props[queue.DeviceTimeProperty])
			return nil
		})

	props := map[string]any{"questId": "q1"}
	s.Equal(OutcomeDelivered, s.tracker.Track(s.ctx, "quest_started", props))

	s.Equal(0, s.queue.Len(s.ctx))
	s.NotContains(props, queue.DeviceTimeProperty, "caller's map is not modified")
	_, err := s.backend.Get(s.ctx, storage.QueueKey)
	s.Error(err, "queue blob is never written")
}

func (s *TrackerSuite) TestTrackOnlineFailureQueuesExactlyOne() {
	s.expectIdentify()
	s.sink.MockSink.EXPECT().Deliver(gomock.Any(), "ar_failed", gomock.Any()).
		Return(errors.New("connection reset"))

	s.Equal(OutcomeQueued, s.tracker.Track(s.ctx, "ar_failed", map[string]any{"questId": "q1"}))

	events := s.queue.Load(s.ctx)
	s.Require().Len(events, 1)
	s.Equal("ar_failed", events[0].EventName)
	s.Equal("q1", events[0].Properties["questId"])
	s.Equal(1.0, testutil.ToFloat64(s.metrics.DeliveryFailures))
}

func (s *TrackerSuite) TestTrackDropsWhenQueueWriteFails() {
	ctrl := gomock.NewController(s.T())
	failing := storagemocks.NewMockStorage(ctrl)
	failing.EXPECT().Get(gomock.Any(), gomock.Any()).Return("", errors.New("disk full")).AnyTimes()
	failing.EXPECT().Set(gomock.Any(), gomock.Any(), gomock.Any()).Return(errors.New("disk full")).AnyTimes()

	s.expectIdentify()
	q := queue.NewStore(failing)
	tr, err := New(s.sink, q, identity.New(failing, identity.WithGenerator(func() string { return "device-1" })),
		s.monitor, s.coord, WithMetrics(s.metrics))
	s.Require().NoError(err)

	s.monitor.Set(false)
	s.Equal(OutcomeDropped, tr.Track(s.ctx, "app_started", nil))
	s.Equal(1.0, testutil.ToFloat64(s.metrics.TrackedEvents.WithLabelValues("dropped")))
}

// queueReadFailure fails the next queue blob read once armed.
type queueReadFailure struct {
	storage.Storage
	armed bool
}

func (q *queueReadFailure) Get(ctx context.Context, key string) (string, error) {
	if q.armed && key == storage.QueueKey {
		q.armed = false
		return "", errors.New("i/o timeout")
	}
	return q.Storage.Get(ctx, key)
}

func (s *TrackerSuite) TestTrackKeepsQueueOnTransientReadFailure() {
	backend := &queueReadFailure{Storage: memory.New()}
	q := queue.NewStore(backend)
	tr, err := New(s.sink, q, identity.New(backend, identity.WithGenerator(func() string { return "device-1" })),
		s.monitor, s.coord, WithMetrics(s.metrics))
	s.Require().NoError(err)

	s.expectIdentify()
	s.monitor.Set(false)
	for _, name := range []string{"a", "b", "c"} {
		s.Require().Equal(OutcomeQueued, tr.Track(s.ctx, name, nil))
	}

	backend.armed = true
	s.Equal(OutcomeDropped, tr.Track(s.ctx, "d", nil))

	var names []string
	for _, e := range q.Load(s.ctx) {
		names = append(names, e.EventName)
	}
	s.Equal([]string{"a", "b", "c"}, names)
}

func (s *TrackerSuite) TestInitIdentifiesAndFlushes() {
	s.Require().NoError(s.queue.Enqueue(s.ctx, queue.NewEvent("app_started", nil, s.clockNow)))

	gomock.InOrder(
		s.sink.MockIdentifier.EXPECT().Identify(gomock.Any(), "device-1").Return(nil),
		s.sink.MockSink.EXPECT().Deliver(gomock.Any(), "app_started", gomock.Any()).Return(nil),
	)

	res := <-s.tracker.Init(s.ctx)
	s.Equal(flush.StatusDelivered, res.Status)
	s.Equal(0, s.queue.Len(s.ctx))

	stored, err := s.backend.Get(s.ctx, storage.IdentityKey)
	s.Require().NoError(err)
	s.Equal("device-1", stored)

	s.Run("second init is a no-op", func() {
		_, open := <-s.tracker.Init(s.ctx)
		s.False(open)
	})
}

func (s *TrackerSuite) TestInitSurvivesIdentifyFailure() {
	s.sink.MockIdentifier.EXPECT().Identify(gomock.Any(), "device-1").Return(errors.New("no network"))

	res := <-s.tracker.Init(s.ctx)
	s.Equal(flush.StatusEmpty, res.Status)
}

func (s *TrackerSuite) TestOfflineThenOnlineScenario() {
	s.expectIdentify()
	s.monitor.Set(false)
	<-s.tracker.Init(s.ctx)

	s.Equal(OutcomeQueued, s.tracker.QRSuccess(s.ctx, "q1"))
	events := s.queue.Load(s.ctx)
	s.Require().Len(events, 1)
	s.Equal("qr_scan_success", events[0].EventName)

	delivered := make(chan map[string]any, 1)
	s.sink.MockSink.EXPECT().Deliver(gomock.Any(), "qr_scan_success", gomock.Any()).
		DoAndReturn(func(_ context.Context, _ string, props map[string]any) error {
			delivered <- props
			return nil
		})

	s.monitor.Set(true)

	var props map[string]any
	select {
	case props = <-delivered:
	case <-time.After(2 * time.Second):
		s.FailNow("flush was not triggered by the online transition")
	}
	s.Equal("q1", props["questId"])
	s.Equal("2026-10-19T09:30:00.000Z", props[queue.DeviceTimeProperty])
	s.Eventually(func() bool { return s.queue.Len(s.ctx) == 0 }, 2*time.Second, 10*time.Millisecond)
}

func (s *TrackerSuite) TestCloseStopsOnlineFlushes() {
	s.expectIdentify()
	s.monitor.Set(false)
	<-s.tracker.Init(s.ctx)
	s.tracker.Close()

	s.Equal(OutcomeQueued, s.tracker.AppStarted(s.ctx))
	s.monitor.Set(true)

	// No Deliver expectation: a triggered flush would fail the mock.
	time.Sleep(50 * time.Millisecond)
	s.Equal(1, s.queue.Len(s.ctx))
}

func mustInt(t *testing.T, v any) int64 {
	t.Helper()
	switch n := v.(type) {
	case int:
		return int64(n)
	case interface{ Int64() (int64, error) }:
		i, err := n.Int64()
		if err != nil {
			t.Fatalf("not an integer: %v", v)
		}
		return i
	default:
		t.Fatalf("unexpected number type %T", v)
		return 0
	}
}
