// Package dispatch performs single and batched rate-limited sends through an
// owner's ready session, with per-owner pause/resume/cancel control.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/rs/zerolog"
	"github.com/wabot/pkg/domains/session"
	"github.com/wabot/pkg/notify"
)

var ErrBulkActive = errors.New("a bulk send is already running for this owner")

// Sender is the sending half of a session; *session.Supervisor satisfies it.
type Sender interface {
	SendText(ctx context.Context, target, text string) (string, error)
	SendMedia(ctx context.Context, target string, data []byte, mimeType, caption string) (string, error)
}

// Sessions resolves an owner to their first ready session.
type Sessions interface {
	SenderFor(ownerID uint) (Sender, error)
}

// DeliveryLog records one row per delivery attempt. Implementations must be
// safe for concurrent use.
type DeliveryLog interface {
	Record(ownerID uint, target, kind, status, detail string)
}

type Media struct {
	Data     []byte `json:"data"`
	MimeType string `json:"mime_type"`
	Caption  string `json:"caption"`
}

type Contact struct {
	Phone  string            `json:"phone"`
	Fields map[string]string `json:"fields"`
}

type BulkOptions struct {
	MaxDelaySeconds  int `json:"max_delay_seconds"`
	BatchSize        int `json:"batch_size"`
	BatchWaitMinutes int `json:"batch_wait_minutes"`
}

// Outcome is the per-target result of a bulk run.
type Outcome struct {
	Target string    `json:"target"`
	Sent   bool      `json:"sent"`
	Error  string    `json:"error,omitempty"`
	At     time.Time `json:"at"`
}

type Report struct {
	Total     int       `json:"total"`
	Success   int       `json:"success"`
	Failed    int       `json:"failed"`
	Cancelled bool      `json:"cancelled"`
	Outcomes  []Outcome `json:"outcomes"`
}

// Progress is published on the bus after every send and before every
// inter-batch wait.
type Progress struct {
	OwnerID int  `json:"owner_id"`
	Current int  `json:"current"`
	Total   int  `json:"total"`
	Success int  `json:"success"`
	Failed  int  `json:"failed"`
	Batch   int  `json:"batch"`
	Batches int  `json:"batches"`
	Waiting bool `json:"waiting"`
}

type Service struct {
	sessions Sessions
	bus      *notify.Bus
	dlog     DeliveryLog
	log      zerolog.Logger

	controllers *controllerMap
	// pollInterval bounds how long pause/cancel take to be observed (≤500ms).
	pollInterval time.Duration
}

func NewService(sessions Sessions, bus *notify.Bus, dlog DeliveryLog, pollInterval time.Duration, log zerolog.Logger) *Service {
	if pollInterval <= 0 || pollInterval > 500*time.Millisecond {
		pollInterval = 500 * time.Millisecond
	}
	return &Service{
		sessions:     sessions,
		bus:          bus,
		dlog:         dlog,
		log:          log.With().Str("component", "dispatch").Logger(),
		controllers:  newControllerMap(),
		pollInterval: pollInterval,
	}
}

// SendMessage sends text (if non-empty) then each media item in order with
// its caption, awaiting each transport call before the next.
func (s *Service) SendMessage(ctx context.Context, ownerID uint, target, text string, media []Media) error {
	return s.Send(ctx, ownerID, target, text, media, "single")
}

// Send is SendMessage with an explicit log kind (single, group, auto).
func (s *Service) Send(ctx context.Context, ownerID uint, target, text string, media []Media, kind string) error {
	sender, err := s.sessions.SenderFor(ownerID)
	if err != nil {
		return err
	}
	if err := s.deliver(ctx, sender, target, text, media); err != nil {
		status := "failed"
		if errors.Is(err, session.ErrNotAuthorized) {
			status = "not_authorized"
		}
		s.record(ownerID, target, kind, status, err.Error())
		return err
	}
	s.record(ownerID, target, kind, "sent", "")
	return nil
}

func (s *Service) deliver(ctx context.Context, sender Sender, target, text string, media []Media) error {
	if text != "" {
		if _, err := sender.SendText(ctx, target, text); err != nil {
			return err
		}
	}
	for _, m := range media {
		if _, err := sender.SendMedia(ctx, target, m.Data, m.MimeType, m.Caption); err != nil {
			return err
		}
	}
	return nil
}

// SendBulk partitions contacts into batches of at most opts.BatchSize and
// sends the rendered template to each, throttled by a randomized delay
// between sends and a fixed wait between batches. The owner's controller is
// checked before every send and during every wait; cancellation abandons the
// remaining contacts and batches immediately.
func (s *Service) SendBulk(ctx context.Context, ownerID uint, contacts []Contact, template string, media []Media, opts BulkOptions) (*Report, error) {
	if opts.BatchSize <= 0 {
		opts.BatchSize = len(contacts)
		if opts.BatchSize == 0 {
			opts.BatchSize = 1
		}
	}

	ctrl, ok := s.controllers.activate(ownerID)
	if !ok {
		return nil, ErrBulkActive
	}
	defer s.controllers.release(ownerID)

	sender, err := s.sessions.SenderFor(ownerID)
	if err != nil {
		return nil, err
	}

	report := &Report{Total: len(contacts)}
	batches := partition(contacts, opts.BatchSize)
	s.log.Info().Uint("owner", ownerID).Int("contacts", len(contacts)).Int("batches", len(batches)).Msg("bulk send started")

	for bi, batch := range batches {
		for ci, contact := range batch {
			if !s.waitWhilePaused(ctx, ctrl) {
				report.Cancelled = true
				s.log.Info().Uint("owner", ownerID).Msg("bulk send cancelled")
				return report, nil
			}

			fields := contact.Fields
			if fields == nil {
				fields = map[string]string{}
			}
			text := Render(template, fields)
			rendered := make([]Media, len(media))
			for i, m := range media {
				rendered[i] = Media{Data: m.Data, MimeType: m.MimeType, Caption: Render(m.Caption, fields)}
			}

			outcome := Outcome{Target: contact.Phone, At: time.Now()}
			if err := s.deliver(ctx, sender, contact.Phone, text, rendered); err != nil {
				outcome.Error = err.Error()
				report.Failed++
				status := "failed"
				if errors.Is(err, session.ErrNotAuthorized) {
					status = "not_authorized"
				}
				s.record(ownerID, contact.Phone, "bulk", status, err.Error())
				s.log.Warn().Err(err).Str("target", contact.Phone).Msg("bulk send to contact failed")
			} else {
				outcome.Sent = true
				report.Success++
				s.record(ownerID, contact.Phone, "bulk", "sent", "")
			}
			report.Outcomes = append(report.Outcomes, outcome)

			s.progress(ownerID, report, bi+1, len(batches), false)

			lastInBatch := ci == len(batch)-1
			if !lastInBatch && opts.MaxDelaySeconds > 0 {
				delay := randomDelay(opts.MaxDelaySeconds)
				if !s.waitWithControl(ctx, ctrl, delay) {
					report.Cancelled = true
					return report, nil
				}
			}
		}

		lastBatch := bi == len(batches)-1
		if !lastBatch && opts.BatchWaitMinutes > 0 {
			s.progress(ownerID, report, bi+1, len(batches), true)
			wait := time.Duration(opts.BatchWaitMinutes) * time.Minute
			if !s.waitWithControl(ctx, ctrl, wait) {
				report.Cancelled = true
				return report, nil
			}
		}
	}

	s.log.Info().Uint("owner", ownerID).Int("success", report.Success).Int("failed", report.Failed).Msg("bulk send finished")
	return report, nil
}

// BulkActive reports whether the owner already has a bulk run in flight, so
// callers can reject a second one before spawning it.
func (s *Service) BulkActive(ownerID uint) bool { return s.controllers.isActive(ownerID) }

func (s *Service) PauseBulk(ownerID uint)  { s.controllers.get(ownerID).Pause() }
func (s *Service) ResumeBulk(ownerID uint) { s.controllers.get(ownerID).Resume() }
func (s *Service) CancelBulk(ownerID uint) { s.controllers.get(ownerID).Cancel() }

// waitWhilePaused blocks while the controller is paused, polling at the
// configured interval. Returns false once cancelled.
func (s *Service) waitWhilePaused(ctx context.Context, ctrl *Controller) bool {
	for {
		if ctrl.Cancelled() || ctx.Err() != nil {
			return false
		}
		if !ctrl.Paused() {
			return true
		}
		if !sleepStep(ctx, s.pollInterval) {
			return false
		}
	}
}

// waitWithControl sleeps for d in poll-interval steps, re-checking
// cancellation at each tick. Time spent paused does not consume the delay
// budget. Returns false if cancelled.
func (s *Service) waitWithControl(ctx context.Context, ctrl *Controller, d time.Duration) bool {
	remaining := d
	for remaining > 0 {
		if ctrl.Cancelled() || ctx.Err() != nil {
			return false
		}
		if ctrl.Paused() {
			if !sleepStep(ctx, s.pollInterval) {
				return false
			}
			continue
		}
		step := s.pollInterval
		if step > remaining {
			step = remaining
		}
		if !sleepStep(ctx, step) {
			return false
		}
		remaining -= step
	}
	return !ctrl.Cancelled()
}

func sleepStep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (s *Service) progress(ownerID uint, r *Report, batch, batches int, waiting bool) {
	s.bus.Publish(notify.Event{Type: notify.EventBulkProgress, Data: Progress{
		OwnerID: int(ownerID),
		Current: r.Success + r.Failed,
		Total:   r.Total,
		Success: r.Success,
		Failed:  r.Failed,
		Batch:   batch,
		Batches: batches,
		Waiting: waiting,
	}})
}

func (s *Service) record(ownerID uint, target, kind, status, detail string) {
	if s.dlog != nil {
		s.dlog.Record(ownerID, target, kind, status, detail)
	}
	s.bus.Publish(notify.Event{Type: notify.EventDeliveryLog, Data: map[string]string{
		"owner":  fmt.Sprint(ownerID),
		"target": target,
		"kind":   kind,
		"status": status,
	}})
}

func partition(contacts []Contact, size int) [][]Contact {
	var out [][]Contact
	for start := 0; start < len(contacts); start += size {
		end := start + size
		if end > len(contacts) {
			end = len(contacts)
		}
		out = append(out, contacts[start:end])
	}
	return out
}

// randomDelay picks a whole-second delay in [1s, maxSeconds].
func randomDelay(maxSeconds int) time.Duration {
	if maxSeconds <= 1 {
		return time.Second
	}
	return time.Duration(1+rand.Intn(maxSeconds)) * time.Second
}
