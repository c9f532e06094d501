package session

import (
	"context"
	"encoding/base64"
	"sync"
	"time"

	qrcode "github.com/skip2/go-qrcode"

	"github.com/rs/zerolog"
	"github.com/wabot/pkg/backoff"
	"github.com/wabot/pkg/notify"
)

// Supervisor owns one transport connection: it drives connect/close events
// through the session state machine, schedules reconnects with exponential
// backoff, and performs one guarded auto-recovery when credentials go bad.
type Supervisor struct {
	factory TransportFactory
	cfg     ReconnectConfig
	bus     *notify.Bus
	log     zerolog.Logger

	// onStatus is invoked after every status change (registry persistence).
	// Both callbacks are fixed at construction, before the pump starts.
	onStatus  func(Session)
	onInbound func(InboundMessage)

	mu             sync.Mutex
	sess           Session
	transport      Transport
	attempts       int
	reconnectTimer *time.Timer
	destroying     bool
	recovering     bool
	lastRecovery   time.Time
	pending        *initAttempt

	inbox    chan InboundMessage
	stop     chan struct{}
	stopOnce sync.Once
}

type initAttempt struct {
	done chan struct{}
	err  error
}

func NewSupervisor(sess Session, factory TransportFactory, cfg ReconnectConfig, bus *notify.Bus, log zerolog.Logger, onStatus func(Session), onInbound func(InboundMessage)) *Supervisor {
	s := &Supervisor{
		factory:   factory,
		cfg:       cfg,
		bus:       bus,
		log:       log.With().Str("component", "session").Str("session", sess.ID).Logger(),
		onStatus:  onStatus,
		onInbound: onInbound,
		sess:      sess,
		inbox:     make(chan InboundMessage, 128),
		stop:      make(chan struct{}),
	}
	go s.pump()
	return s
}

// pump delivers inbound messages one at a time, preserving per-session order.
func (s *Supervisor) pump() {
	for {
		select {
		case m := <-s.inbox:
			if s.onInbound != nil {
				s.onInbound(m)
			}
		case <-s.stop:
			return
		}
	}
}

// Snapshot returns a copy of the session state.
func (s *Supervisor) Snapshot() Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sess
}

func (s *Supervisor) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sess.Status == StatusConnected
}

// Initialize opens the auth storage, builds the transport and connects. It is
// idempotent: a call made while another initialization is in flight waits for
// and returns that attempt's result instead of starting a second one.
func (s *Supervisor) Initialize(ctx context.Context) error {
	s.mu.Lock()
	if s.destroying {
		s.mu.Unlock()
		return ErrDestroyed
	}
	if p := s.pending; p != nil {
		s.mu.Unlock()
		<-p.done
		return p.err
	}
	p := &initAttempt{done: make(chan struct{})}
	s.pending = p
	s.mu.Unlock()

	p.err = s.doInitialize(ctx)

	s.mu.Lock()
	s.pending = nil
	s.mu.Unlock()
	close(p.done)
	return p.err
}

func (s *Supervisor) doInitialize(ctx context.Context) error {
	s.mu.Lock()
	t := s.transport
	s.mu.Unlock()

	if t == nil {
		nt, err := s.factory(ctx, s.sess.AuthPath, s.sess.ID, s)
		if err != nil {
			return err
		}
		s.mu.Lock()
		if s.destroying {
			s.mu.Unlock()
			nt.Close()
			return ErrDestroyed
		}
		s.transport = nt
		t = nt
		s.mu.Unlock()
	}

	s.setStatus(StatusInitializing)
	return t.Connect()
}

// Destroy tears the session down. The destroying flag is set before the
// transport is closed so the close event that teardown fires does not
// schedule a reconnect.
func (s *Supervisor) Destroy(ctx context.Context) {
	s.mu.Lock()
	s.destroying = true
	s.clearReconnectTimerLocked()
	t := s.transport
	s.transport = nil
	s.mu.Unlock()

	s.stopOnce.Do(func() { close(s.stop) })

	if t != nil {
		t.Disconnect()
		if err := t.Close(); err != nil {
			s.log.Warn().Err(err).Msg("closing transport store")
		}
	}
	s.log.Info().Msg("session destroyed")
}

// SendText delivers a text message through the session's transport.
func (s *Supervisor) SendText(ctx context.Context, target, text string) (string, error) {
	t, err := s.connectedTransport()
	if err != nil {
		return "", err
	}
	return t.SendText(ctx, target, text)
}

// SendMedia delivers one media item with its caption.
func (s *Supervisor) SendMedia(ctx context.Context, target string, data []byte, mimeType, caption string) (string, error) {
	t, err := s.connectedTransport()
	if err != nil {
		return "", err
	}
	return t.SendMedia(ctx, target, data, mimeType, caption)
}

func (s *Supervisor) connectedTransport() (Transport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.transport == nil || s.sess.Status != StatusConnected {
		return nil, ErrNotConnected
	}
	return s.transport, nil
}

// ---- EventSink ----

func (s *Supervisor) HandleOpen(identity string) {
	s.mu.Lock()
	s.attempts = 0
	s.clearReconnectTimerLocked()
	if identity != "" {
		s.sess.Phone = identity
	}
	s.sess.LastQR = ""
	s.mu.Unlock()

	s.setStatus(StatusConnected)
	s.log.Info().Str("phone", identity).Msg("session connected")
	s.publish(notify.EventAuthenticated)
	s.publish(notify.EventReady)
}

func (s *Supervisor) HandleQR(code string) {
	s.mu.Lock()
	s.sess.LastQR = code
	s.mu.Unlock()

	s.setStatus(StatusWaitingQR)
	s.bus.Publish(notify.Event{Type: notify.EventQRCode, Data: QRPayload{
		SessionID: s.sess.ID,
		Code:      code,
		PNGBase64: QRPNGBase64(code),
	}})
}

func (s *Supervisor) HandleClose(reason CloseReason) {
	s.mu.Lock()
	if s.destroying {
		s.mu.Unlock()
		return
	}

	if reason.AuthFailure {
		if s.recovering || time.Since(s.lastRecovery) < s.cfg.RecoveryCooldown {
			// cooldown guard: a persistently failing account stays
			// disconnected instead of looping resets
			s.mu.Unlock()
			s.log.Warn().Str("reason", reason.Description).Msg("auth failure within recovery cooldown, staying disconnected")
			s.setStatus(StatusDisconnected)
			s.publish(notify.EventDisconnected)
			return
		}
		s.recovering = true
		s.lastRecovery = time.Now()
		s.mu.Unlock()
		s.log.Warn().Str("reason", reason.Description).Msg("auth invalidated, starting recovery")
		go s.recover()
		return
	}

	var delay time.Duration
	if reason.StreamConflict {
		// another client took over the stream; retry after a fixed short
		// delay without growing the backoff counter
		delay = s.cfg.ConflictRetry
	} else {
		delay = s.policy().Delay(s.attempts)
		s.attempts++
	}
	s.scheduleReconnectLocked(delay)
	s.mu.Unlock()

	s.log.Info().Str("reason", reason.Description).Dur("retry_in", delay).Msg("session closed, reconnect scheduled")
	s.setStatus(StatusDisconnected)
	s.publish(notify.EventDisconnected)
}

func (s *Supervisor) HandleInbound(m InboundMessage) {
	s.mu.Lock()
	m.SessionID = s.sess.ID
	m.OwnerID = s.sess.OwnerID
	s.mu.Unlock()

	select {
	case s.inbox <- m:
	default:
		s.log.Warn().Str("sender", m.Sender).Msg("inbound queue full, dropping message")
	}
}

// ---- reconnect ----

func (s *Supervisor) policy() backoff.Policy {
	return backoff.Policy{Base: s.cfg.Base, Max: s.cfg.Max, AttemptCap: s.cfg.AttemptCap}
}

// scheduleReconnectLocked arms the single reconnect timer, cancelling any
// pending one first. Caller holds s.mu.
func (s *Supervisor) scheduleReconnectLocked(delay time.Duration) {
	s.clearReconnectTimerLocked()
	s.reconnectTimer = time.AfterFunc(delay, s.reconnect)
}

func (s *Supervisor) clearReconnectTimerLocked() {
	if s.reconnectTimer != nil {
		s.reconnectTimer.Stop()
		s.reconnectTimer = nil
	}
}

func (s *Supervisor) reconnect() {
	s.mu.Lock()
	s.reconnectTimer = nil
	if s.destroying {
		s.mu.Unlock()
		return
	}
	t := s.transport
	s.mu.Unlock()

	var err error
	if t == nil {
		err = s.Initialize(context.Background())
	} else {
		err = t.Connect()
	}
	if err != nil {
		s.log.Warn().Err(err).Msg("reconnect attempt failed")
		s.mu.Lock()
		if !s.destroying {
			delay := s.policy().Delay(s.attempts)
			s.attempts++
			s.scheduleReconnectLocked(delay)
		}
		s.mu.Unlock()
	}
}

// recover destroys the connection, wipes the stored credentials and
// reinitializes. Runs at most once per cooldown window.
func (s *Supervisor) recover() {
	s.mu.Lock()
	t := s.transport
	s.transport = nil
	s.mu.Unlock()

	if t != nil {
		t.Disconnect()
		if err := t.ClearAuth(context.Background()); err != nil {
			s.log.Error().Err(err).Msg("clearing auth storage failed")
		}
		t.Close()
	}

	err := s.Initialize(context.Background())

	s.mu.Lock()
	s.recovering = false
	s.mu.Unlock()

	if err != nil {
		s.log.Error().Err(err).Msg("recovery reinitialization failed")
		s.setStatus(StatusDisconnected)
	}
}

// ---- helpers ----

func (s *Supervisor) setStatus(st Status) {
	s.mu.Lock()
	s.sess.Status = st
	snap := s.sess
	cb := s.onStatus
	s.mu.Unlock()

	if cb != nil {
		cb(snap)
	}
}

func (s *Supervisor) publish(eventType string) {
	s.bus.Publish(notify.Event{Type: eventType, Data: s.Snapshot()})
}

// QRPayload carries a pairing code plus a rendered PNG for UI consumers.
type QRPayload struct {
	SessionID string `json:"session_id"`
	Code      string `json:"code"`
	PNGBase64 string `json:"png_base64"`
}

// QRPNGBase64 renders a pairing code as a base64 PNG, or "" on failure.
func QRPNGBase64(code string) string {
	png, err := qrcode.Encode(code, qrcode.Medium, 256)
	if err != nil {
		return ""
	}
	return base64.StdEncoding.EncodeToString(png)
}
