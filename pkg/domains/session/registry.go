package session

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/wabot/pkg/config"
	"github.com/wabot/pkg/entities"
	"github.com/wabot/pkg/notify"
	"gorm.io/gorm"

	"sync"
)

// Registry creates, restores and destroys sessions and maps owners to them.
// Other components never iterate its maps directly.
type Registry struct {
	cfg     config.WhatsApp
	factory TransportFactory
	bus     *notify.Bus
	db      *gorm.DB
	log     zerolog.Logger

	onInbound func(InboundMessage)

	mu          sync.RWMutex
	supervisors map[string]*Supervisor
	byOwner     map[uint][]string
}

func NewRegistry(cfg config.WhatsApp, factory TransportFactory, bus *notify.Bus, db *gorm.DB, log zerolog.Logger) *Registry {
	return &Registry{
		cfg:         cfg,
		factory:     factory,
		bus:         bus,
		db:          db,
		log:         log.With().Str("component", "registry").Logger(),
		supervisors: make(map[string]*Supervisor),
		byOwner:     make(map[uint][]string),
	}
}

// SetInboundHandler wires the automation engine. Must be called before any
// session is created.
func (r *Registry) SetInboundHandler(fn func(InboundMessage)) {
	r.onInbound = fn
}

func (r *Registry) reconnectConfig() ReconnectConfig {
	return ReconnectConfig{
		Base:             r.cfg.ReconnectBase,
		Max:              r.cfg.ReconnectMax,
		AttemptCap:       r.cfg.ReconnectCap,
		ConflictRetry:    r.cfg.ConflictRetry,
		RecoveryCooldown: r.cfg.RecoveryCooldown,
	}
}

// Create allocates a new session for the owner. The connection is not opened
// until Initialize is called.
func (r *Registry) Create(ownerID uint) (Session, error) {
	if err := os.MkdirAll(r.cfg.AuthDir, 0o755); err != nil {
		return Session{}, err
	}

	id := uuid.NewString()
	sess := Session{
		ID:        id,
		OwnerID:   ownerID,
		Status:    StatusInitializing,
		CreatedAt: time.Now(),
		AuthPath:  filepath.Join(r.cfg.AuthDir, id+".db"),
	}
	sup := r.newSupervisor(sess)

	r.mu.Lock()
	r.supervisors[id] = sup
	r.byOwner[ownerID] = append(r.byOwner[ownerID], id)
	r.mu.Unlock()

	r.persist(sess)
	r.bus.Publish(notify.Event{Type: notify.EventSessionCreated, Data: sess})
	r.log.Info().Str("session", id).Uint("owner", ownerID).Msg("session created")
	return sess, nil
}

func (r *Registry) newSupervisor(sess Session) *Supervisor {
	onStatus := func(s Session) {
		r.persist(s)
		r.bus.Publish(notify.Event{Type: notify.EventSessionUpdated, Data: s})
	}
	return NewSupervisor(sess, r.factory, r.reconnectConfig(), r.bus, r.log, onStatus, r.dispatchInbound)
}

func (r *Registry) dispatchInbound(m InboundMessage) {
	if r.onInbound != nil {
		r.onInbound(m)
	}
}

// Initialize connects the identified session.
func (r *Registry) Initialize(ctx context.Context, id string) error {
	sup, ok := r.supervisor(id)
	if !ok {
		return ErrSessionNotFound
	}
	return sup.Initialize(ctx)
}

// Destroy tears the session down and removes its credential store. A missing
// id reports ErrSessionNotFound without side effects.
func (r *Registry) Destroy(ctx context.Context, id string) error {
	r.mu.Lock()
	sup, ok := r.supervisors[id]
	if !ok {
		r.mu.Unlock()
		return ErrSessionNotFound
	}
	delete(r.supervisors, id)
	snap := sup.Snapshot()
	ids := r.byOwner[snap.OwnerID]
	for i, sid := range ids {
		if sid == id {
			r.byOwner[snap.OwnerID] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	r.mu.Unlock()

	sup.Destroy(ctx)
	removeAuthFiles(snap.AuthPath)

	if r.db != nil {
		r.db.Where("session_id = ?", id).Delete(&entities.SessionRecord{})
	}
	r.bus.Publish(notify.Event{Type: notify.EventSessionDestroyed, Data: snap})
	return nil
}

// Get returns a snapshot of the identified session.
func (r *Registry) Get(id string) (Session, bool) {
	sup, ok := r.supervisor(id)
	if !ok {
		return Session{}, false
	}
	return sup.Snapshot(), true
}

// ListByOwner returns snapshots of all the owner's sessions.
func (r *Registry) ListByOwner(ownerID uint) []Session {
	r.mu.RLock()
	ids := append([]string(nil), r.byOwner[ownerID]...)
	r.mu.RUnlock()

	out := make([]Session, 0, len(ids))
	for _, id := range ids {
		if sup, ok := r.supervisor(id); ok {
			out = append(out, sup.Snapshot())
		}
	}
	return out
}

// FirstReady returns the owner's first connected session, or any session of
// theirs if none are connected, or nil.
func (r *Registry) FirstReady(ownerID uint) *Supervisor {
	r.mu.RLock()
	ids := append([]string(nil), r.byOwner[ownerID]...)
	r.mu.RUnlock()

	var fallback *Supervisor
	for _, id := range ids {
		sup, ok := r.supervisor(id)
		if !ok {
			continue
		}
		if sup.Ready() {
			return sup
		}
		if fallback == nil {
			fallback = sup
		}
	}
	return fallback
}

// Restore scans the auth directory at startup, rebuilds one session per
// credential store found and auto-initializes each.
func (r *Registry) Restore(ctx context.Context) error {
	entries, err := os.ReadDir(r.cfg.AuthDir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}

	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".db") {
			continue
		}
		id := strings.TrimSuffix(name, ".db")

		r.mu.RLock()
		_, exists := r.supervisors[id]
		r.mu.RUnlock()
		if exists {
			continue
		}

		sess := Session{
			ID:        id,
			Status:    StatusRestored,
			CreatedAt: time.Now(),
			AuthPath:  filepath.Join(r.cfg.AuthDir, name),
		}

		// owner and cached phone identity come from the mirrored record
		if r.db != nil {
			var rec entities.SessionRecord
			if err := r.db.Where("session_id = ?", id).First(&rec).Error; err == nil {
				sess.OwnerID = rec.UserID
				sess.Phone = rec.PhoneNumber
			} else {
				r.log.Warn().Str("session", id).Msg("restoring session with no record, owner unknown")
			}
		}

		sup := r.newSupervisor(sess)
		r.mu.Lock()
		r.supervisors[id] = sup
		r.byOwner[sess.OwnerID] = append(r.byOwner[sess.OwnerID], id)
		r.mu.Unlock()

		r.log.Info().Str("session", id).Uint("owner", sess.OwnerID).Msg("session restored")
		go func(sup *Supervisor, id string) {
			if err := sup.Initialize(ctx); err != nil {
				r.log.Warn().Err(err).Str("session", id).Msg("restored session failed to initialize")
			}
		}(sup, id)
	}
	return nil
}

// Shutdown destroys every live supervisor without deleting credentials, so
// sessions can be restored on next start.
func (r *Registry) Shutdown(ctx context.Context) {
	r.mu.Lock()
	sups := make([]*Supervisor, 0, len(r.supervisors))
	for _, sup := range r.supervisors {
		sups = append(sups, sup)
	}
	r.supervisors = make(map[string]*Supervisor)
	r.byOwner = make(map[uint][]string)
	r.mu.Unlock()

	for _, sup := range sups {
		sup.Destroy(ctx)
	}
}

func (r *Registry) supervisor(id string) (*Supervisor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sup, ok := r.supervisors[id]
	return sup, ok
}

func (r *Registry) persist(sess Session) {
	if r.db == nil {
		return
	}
	var rec entities.SessionRecord
	err := r.db.Where("session_id = ?", sess.ID).First(&rec).Error
	if err == gorm.ErrRecordNotFound {
		rec = entities.SessionRecord{
			SessionID:    sess.ID,
			UserID:       sess.OwnerID,
			PhoneNumber:  sess.Phone,
			Status:       string(sess.Status),
			LastActiveAt: time.Now(),
		}
		r.db.Create(&rec)
	} else if err == nil {
		rec.PhoneNumber = sess.Phone
		rec.Status = string(sess.Status)
		rec.LastActiveAt = time.Now()
		r.db.Save(&rec)
	}
}

func removeAuthFiles(path string) {
	if path == "" {
		return
	}
	for _, p := range []string{path, path + "-wal", path + "-shm"} {
		os.Remove(p)
	}
}
