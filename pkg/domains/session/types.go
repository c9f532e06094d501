package session

import (
	"context"
	"errors"
	"time"
)

type Status string

const (
	StatusInitializing Status = "initializing"
	StatusWaitingQR    Status = "waiting_qr"
	StatusConnected    Status = "connected"
	StatusDisconnected Status = "disconnected"
	StatusRestored     Status = "restored"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrNotConnected    = errors.New("session not connected")
	ErrDestroyed       = errors.New("session destroyed")
	// ErrNotAuthorized marks sends rejected by a group's posting restrictions.
	ErrNotAuthorized = errors.New("not authorized to post to target")
)

// Session is one managed connection to the transport, tied to one owner.
// Fields are mutated only by the session's supervisor.
type Session struct {
	ID        string
	OwnerID   uint
	Phone     string
	Status    Status
	CreatedAt time.Time
	// AuthPath is the per-session credential store (a sqlite file).
	AuthPath string
	// LastQR is the most recent pairing code, empty once connected.
	LastQR string
}

// InboundMessage is a transport-agnostic view of a received message, handed
// to the automation engine.
type InboundMessage struct {
	SessionID    string
	OwnerID      uint
	Sender       string
	SenderNumber string
	Chat         string
	PushName     string
	Text         string
	IsGroup      bool
	IsFromMe     bool
	IsBroadcast  bool
	Timestamp    time.Time
}

// CloseReason classifies a transport disconnect so the supervisor can choose
// between backoff reconnect, fixed-delay retry and auth recovery.
type CloseReason struct {
	Code           int
	Description    string
	AuthFailure    bool
	StreamConflict bool
}

// Transport is the black-box messaging capability. The production
// implementation wraps a whatsmeow client; tests substitute fakes.
type Transport interface {
	Connect() error
	Disconnect()
	IsConnected() bool
	IsLoggedIn() bool
	LoggedInJID() string
	SendText(ctx context.Context, target, text string) (string, error)
	SendMedia(ctx context.Context, target string, data []byte, mimeType, caption string) (string, error)
	// ClearAuth wipes the stored credentials. Used by auth recovery.
	ClearAuth(ctx context.Context) error
	Close() error
}

// EventSink receives transport lifecycle and message events. The supervisor
// implements it; the transport adapter calls it from its event stream, in
// arrival order.
type EventSink interface {
	HandleOpen(identity string)
	HandleClose(reason CloseReason)
	HandleQR(code string)
	HandleInbound(msg InboundMessage)
}

// TransportFactory opens the session's auth storage and builds a transport
// wired to the given sink.
type TransportFactory func(ctx context.Context, authPath, sessionID string, sink EventSink) (Transport, error)

// ReconnectConfig tunes the supervisor's retry behaviour.
type ReconnectConfig struct {
	Base             time.Duration
	Max              time.Duration
	AttemptCap       int
	ConflictRetry    time.Duration
	RecoveryCooldown time.Duration
}
