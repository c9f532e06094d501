package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wabot/pkg/notify"
)

type fakeTransport struct {
	mu          sync.Mutex
	connects    int
	disconnects int
	clearAuths  int
	closes      int
	connectErr  error
	blockOn     chan struct{}
	sent        []string
}

func (f *fakeTransport) Connect() error {
	f.mu.Lock()
	f.connects++
	block := f.blockOn
	err := f.connectErr
	f.mu.Unlock()
	if block != nil {
		<-block
	}
	return err
}

func (f *fakeTransport) Disconnect() {
	f.mu.Lock()
	f.disconnects++
	f.mu.Unlock()
}

func (f *fakeTransport) IsConnected() bool   { return true }
func (f *fakeTransport) IsLoggedIn() bool    { return true }
func (f *fakeTransport) LoggedInJID() string { return "905001112233" }

func (f *fakeTransport) SendText(_ context.Context, target, _ string) (string, error) {
	f.mu.Lock()
	f.sent = append(f.sent, "text:"+target)
	f.mu.Unlock()
	return "id", nil
}

func (f *fakeTransport) SendMedia(_ context.Context, target string, _ []byte, _, _ string) (string, error) {
	f.mu.Lock()
	f.sent = append(f.sent, "media:"+target)
	f.mu.Unlock()
	return "id", nil
}

func (f *fakeTransport) ClearAuth(context.Context) error {
	f.mu.Lock()
	f.clearAuths++
	f.mu.Unlock()
	return nil
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	f.closes++
	f.mu.Unlock()
	return nil
}

func (f *fakeTransport) counts() (connects, clearAuths int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connects, f.clearAuths
}

// fakeFactory builds one fakeTransport per call and counts builds.
type fakeFactory struct {
	mu     sync.Mutex
	builds int
	last   *fakeTransport
	make   func() *fakeTransport
}

func (f *fakeFactory) factory() TransportFactory {
	return func(context.Context, string, string, EventSink) (Transport, error) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.builds++
		if f.make != nil {
			f.last = f.make()
		} else {
			f.last = &fakeTransport{}
		}
		return f.last, nil
	}
}

func (f *fakeFactory) buildCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.builds
}

func testCfg() ReconnectConfig {
	return ReconnectConfig{
		Base:             time.Hour, // timers must never fire during a test
		Max:              2 * time.Hour,
		AttemptCap:       6,
		ConflictRetry:    time.Hour,
		RecoveryCooldown: time.Hour,
	}
}

func newTestSupervisor(t *testing.T, ff *fakeFactory) *Supervisor {
	t.Helper()
	sess := Session{ID: "s1", OwnerID: 7, Status: StatusInitializing, CreatedAt: time.Now()}
	sup := NewSupervisor(sess, ff.factory(), testCfg(), notify.NewBus(), zerolog.Nop(), nil, nil)
	t.Cleanup(func() { sup.Destroy(context.Background()) })
	return sup
}

func TestInitializeBuildsTransportAndConnects(t *testing.T) {
	ff := &fakeFactory{}
	sup := newTestSupervisor(t, ff)

	require.NoError(t, sup.Initialize(context.Background()))
	assert.Equal(t, 1, ff.buildCount())
	connects, _ := ff.last.counts()
	assert.Equal(t, 1, connects)
	assert.Equal(t, StatusInitializing, sup.Snapshot().Status)
}

func TestInitializeInFlightIsShared(t *testing.T) {
	release := make(chan struct{})
	ff := &fakeFactory{make: func() *fakeTransport {
		return &fakeTransport{blockOn: release}
	}}
	sup := newTestSupervisor(t, ff)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = sup.Initialize(context.Background())
		}(i)
	}

	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, 1, ff.buildCount(), "concurrent initializes must share one attempt")
	assert.NoError(t, errs[0])
	assert.NoError(t, errs[1])
}

func TestHandleOpenMarksConnected(t *testing.T) {
	ff := &fakeFactory{}
	sup := newTestSupervisor(t, ff)
	require.NoError(t, sup.Initialize(context.Background()))

	sup.HandleQR("pairing-code")
	assert.Equal(t, StatusWaitingQR, sup.Snapshot().Status)
	assert.Equal(t, "pairing-code", sup.Snapshot().LastQR)

	sup.HandleOpen("905001112233")
	snap := sup.Snapshot()
	assert.Equal(t, StatusConnected, snap.Status)
	assert.Equal(t, "905001112233", snap.Phone)
	assert.Empty(t, snap.LastQR, "pairing code cleared once connected")
	assert.True(t, sup.Ready())
}

func TestHandleCloseGrowsBackoffUntilOpen(t *testing.T) {
	ff := &fakeFactory{}
	sup := newTestSupervisor(t, ff)
	require.NoError(t, sup.Initialize(context.Background()))

	sup.HandleClose(CloseReason{Description: "network"})
	sup.mu.Lock()
	assert.Equal(t, 1, sup.attempts)
	assert.NotNil(t, sup.reconnectTimer)
	sup.mu.Unlock()
	assert.Equal(t, StatusDisconnected, sup.Snapshot().Status)

	sup.HandleClose(CloseReason{Description: "network"})
	sup.mu.Lock()
	assert.Equal(t, 2, sup.attempts)
	sup.mu.Unlock()

	sup.HandleOpen("905001112233")
	sup.mu.Lock()
	assert.Equal(t, 0, sup.attempts, "successful open resets the backoff counter")
	assert.Nil(t, sup.reconnectTimer)
	sup.mu.Unlock()
}

func TestStreamConflictDoesNotGrowBackoff(t *testing.T) {
	ff := &fakeFactory{}
	sup := newTestSupervisor(t, ff)
	require.NoError(t, sup.Initialize(context.Background()))

	sup.HandleClose(CloseReason{Description: "replaced", StreamConflict: true})
	sup.mu.Lock()
	assert.Equal(t, 0, sup.attempts)
	assert.NotNil(t, sup.reconnectTimer, "conflict still schedules a retry")
	sup.mu.Unlock()
}

func TestAuthFailureRecoversOncePerCooldown(t *testing.T) {
	ff := &fakeFactory{}
	sup := newTestSupervisor(t, ff)
	require.NoError(t, sup.Initialize(context.Background()))
	first := ff.last

	sup.HandleClose(CloseReason{Description: "logged out", AuthFailure: true})

	// recovery wipes credentials and rebuilds the transport
	require.Eventually(t, func() bool {
		_, cleared := first.counts()
		return cleared == 1 && ff.buildCount() == 2
	}, 2*time.Second, 5*time.Millisecond)

	// a second auth failure inside the cooldown stays disconnected
	sup.HandleClose(CloseReason{Description: "logged out", AuthFailure: true})
	time.Sleep(50 * time.Millisecond)
	_, cleared := first.counts()
	assert.Equal(t, 1, cleared)
	assert.Equal(t, 2, ff.buildCount())
	assert.Equal(t, StatusDisconnected, sup.Snapshot().Status)
}

func TestDestroySuppressesReconnect(t *testing.T) {
	ff := &fakeFactory{}
	sup := newTestSupervisor(t, ff)
	require.NoError(t, sup.Initialize(context.Background()))
	ft := ff.last

	sup.Destroy(context.Background())
	ft.mu.Lock()
	assert.Equal(t, 1, ft.disconnects)
	assert.Equal(t, 1, ft.closes)
	ft.mu.Unlock()

	// the close event fired by teardown must not arm a timer
	sup.HandleClose(CloseReason{Description: "teardown"})
	sup.mu.Lock()
	assert.Nil(t, sup.reconnectTimer)
	sup.mu.Unlock()

	assert.ErrorIs(t, sup.Initialize(context.Background()), ErrDestroyed)
}

func TestSendRequiresConnectedSession(t *testing.T) {
	ff := &fakeFactory{}
	sup := newTestSupervisor(t, ff)
	require.NoError(t, sup.Initialize(context.Background()))

	_, err := sup.SendText(context.Background(), "905001", "hi")
	assert.ErrorIs(t, err, ErrNotConnected)

	sup.HandleOpen("905001112233")
	_, err = sup.SendText(context.Background(), "905001", "hi")
	require.NoError(t, err)
	_, err = sup.SendMedia(context.Background(), "905001", []byte{1}, "image/jpeg", "cap")
	require.NoError(t, err)

	ff.last.mu.Lock()
	assert.Equal(t, []string{"text:905001", "media:905001"}, ff.last.sent)
	ff.last.mu.Unlock()
}

func TestHandleOpenPublishesReadyEvent(t *testing.T) {
	ff := &fakeFactory{}
	bus := notify.NewBus()
	sess := Session{ID: "s3", OwnerID: 5, Status: StatusInitializing}
	sup := NewSupervisor(sess, ff.factory(), testCfg(), bus, zerolog.Nop(), nil, nil)
	defer sup.Destroy(context.Background())

	events, cancel := bus.Subscribe(8)
	defer cancel()

	sup.HandleOpen("905001112233")

	// observers keying on readiness (e.g. the active-session gate) get the
	// session snapshot on the ready event
	var types []string
	var ready Session
	deadline := time.After(time.Second)
	for len(types) < 2 {
		select {
		case e := <-events:
			types = append(types, e.Type)
			if e.Type == notify.EventReady {
				var ok bool
				ready, ok = e.Data.(Session)
				require.True(t, ok, "ready event must carry a session snapshot")
			}
		case <-deadline:
			t.Fatalf("expected authenticated+ready events, got %v", types)
		}
	}
	assert.Equal(t, []string{notify.EventAuthenticated, notify.EventReady}, types)
	assert.Equal(t, "s3", ready.ID)
	assert.Equal(t, StatusConnected, ready.Status)
}

func TestHandleInboundTagsSessionAndOwner(t *testing.T) {
	ff := &fakeFactory{}
	sess := Session{ID: "s9", OwnerID: 42, Status: StatusInitializing}
	got := make(chan InboundMessage, 1)
	sup := NewSupervisor(sess, ff.factory(), testCfg(), notify.NewBus(), zerolog.Nop(), nil, func(m InboundMessage) { got <- m })
	defer sup.Destroy(context.Background())

	sup.HandleInbound(InboundMessage{Sender: "alice", Text: "hi"})

	select {
	case m := <-got:
		assert.Equal(t, "s9", m.SessionID)
		assert.Equal(t, uint(42), m.OwnerID)
		assert.Equal(t, "hi", m.Text)
	case <-time.After(time.Second):
		t.Fatal("inbound message not delivered")
	}
}
