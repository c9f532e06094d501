// Package scheduler registers one-shot timers that invoke the dispatcher at
// a future time, plus cron-driven recurring campaigns. Cancel and reschedule
// enforce job ownership.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/wabot/pkg/domains/dispatch"
	"github.com/wabot/pkg/notify"
)

type Kind string

const (
	KindSingle Kind = "single"
	KindBulk   Kind = "bulk"
	KindGroup  Kind = "group"
)

var (
	// ErrJobNotFound also covers ownership mismatches: callers learn nothing
	// about jobs they do not own.
	ErrJobNotFound = errors.New("scheduled job not found")
	ErrBadSchedule = errors.New("invalid schedule")
)

// Dispatcher is the slice of the dispatch service the scheduler invokes.
type Dispatcher interface {
	SendMessage(ctx context.Context, ownerID uint, target, text string, media []dispatch.Media) error
	SendBulk(ctx context.Context, ownerID uint, contacts []dispatch.Contact, template string, media []dispatch.Media, opts dispatch.BulkOptions) (*dispatch.Report, error)
}

type job struct {
	id      string
	kind    Kind
	ownerID uint

	targets  []string
	contacts []dispatch.Contact
	text     string
	media    []dispatch.Media
	bulk     dispatch.BulkOptions

	fireAt   time.Time
	cronSpec string

	timer  *time.Timer
	cronID cron.EntryID
}

// Summary is the read-only view returned by List; timer handles never leave
// the registry.
type Summary struct {
	ID          string    `json:"id"`
	Kind        Kind      `json:"kind"`
	OwnerID     uint      `json:"owner_id"`
	FireAt      time.Time `json:"fire_at"`
	TargetCount int       `json:"target_count"`
	Recurring   bool      `json:"recurring"`
	CronSpec    string    `json:"cron_spec,omitempty"`
}

type Service struct {
	dispatcher Dispatcher
	bus        *notify.Bus
	log        zerolog.Logger
	cron       *cron.Cron

	mu   sync.Mutex
	jobs map[string]*job
}

func NewService(dispatcher Dispatcher, bus *notify.Bus, log zerolog.Logger) *Service {
	s := &Service{
		dispatcher: dispatcher,
		bus:        bus,
		log:        log.With().Str("component", "scheduler").Logger(),
		cron:       cron.New(),
		jobs:       make(map[string]*job),
	}
	s.cron.Start()
	return s
}

// Stop halts the cron runner and every pending timer. Pending one-shot jobs
// are lost; they are not durable across restarts.
func (s *Service) Stop() {
	s.cron.Stop()
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, j := range s.jobs {
		if j.timer != nil {
			j.timer.Stop()
		}
	}
	s.jobs = make(map[string]*job)
}

// ScheduleMessage registers a one-shot single send.
func (s *Service) ScheduleMessage(ownerID uint, target, text string, media []dispatch.Media, at time.Time) (string, error) {
	if !at.After(time.Now()) {
		return "", ErrBadSchedule
	}
	j := &job{
		id:      uuid.NewString(),
		kind:    KindSingle,
		ownerID: ownerID,
		targets: []string{target},
		text:    text,
		media:   media,
		fireAt:  at,
	}
	s.arm(j)
	return j.id, nil
}

// ScheduleBulkMessages registers a one-shot bulk run.
func (s *Service) ScheduleBulkMessages(ownerID uint, contacts []dispatch.Contact, template string, media []dispatch.Media, opts dispatch.BulkOptions, at time.Time) (string, error) {
	if !at.After(time.Now()) {
		return "", ErrBadSchedule
	}
	j := &job{
		id:       uuid.NewString(),
		kind:     KindBulk,
		ownerID:  ownerID,
		contacts: contacts,
		text:     template,
		media:    media,
		bulk:     opts,
		fireAt:   at,
	}
	s.arm(j)
	return j.id, nil
}

// ScheduleGroupMessages registers a one-shot broadcast to several group
// targets.
func (s *Service) ScheduleGroupMessages(ownerID uint, groups []string, text string, media []dispatch.Media, at time.Time) (string, error) {
	if !at.After(time.Now()) {
		return "", ErrBadSchedule
	}
	j := &job{
		id:      uuid.NewString(),
		kind:    KindGroup,
		ownerID: ownerID,
		targets: groups,
		text:    text,
		media:   media,
		fireAt:  at,
	}
	s.arm(j)
	return j.id, nil
}

// ScheduleRecurringBulk registers a bulk run on a cron spec. Recurring jobs
// stay registered until cancelled.
func (s *Service) ScheduleRecurringBulk(ownerID uint, contacts []dispatch.Contact, template string, media []dispatch.Media, opts dispatch.BulkOptions, cronSpec string) (string, error) {
	j := &job{
		id:       uuid.NewString(),
		kind:     KindBulk,
		ownerID:  ownerID,
		contacts: contacts,
		text:     template,
		media:    media,
		bulk:     opts,
		cronSpec: cronSpec,
	}
	entryID, err := s.cron.AddFunc(cronSpec, func() { s.run(j) })
	if err != nil {
		return "", ErrBadSchedule
	}
	j.cronID = entryID

	s.mu.Lock()
	s.jobs[j.id] = j
	s.mu.Unlock()

	s.log.Info().Str("job", j.id).Str("cron", cronSpec).Uint("owner", ownerID).Msg("recurring campaign scheduled")
	return j.id, nil
}

func (s *Service) arm(j *job) {
	s.mu.Lock()
	j.timer = time.AfterFunc(time.Until(j.fireAt), func() { s.fire(j.id) })
	s.jobs[j.id] = j
	s.mu.Unlock()
	s.log.Info().Str("job", j.id).Str("kind", string(j.kind)).Time("at", j.fireAt).Uint("owner", j.ownerID).Msg("job scheduled")
}

// fire executes a one-shot job and removes it from the registry.
func (s *Service) fire(id string) {
	s.mu.Lock()
	j, ok := s.jobs[id]
	if ok {
		delete(s.jobs, id)
	}
	s.mu.Unlock()
	if !ok {
		return
	}
	s.run(j)
}

func (s *Service) run(j *job) {
	ctx := context.Background()
	var failed int

	switch j.kind {
	case KindBulk:
		report, err := s.dispatcher.SendBulk(ctx, j.ownerID, j.contacts, j.text, j.media, j.bulk)
		if err != nil {
			s.log.Error().Err(err).Str("job", j.id).Msg("scheduled bulk run failed")
			failed = len(j.contacts)
		} else {
			failed = report.Failed
		}
	default:
		for _, target := range j.targets {
			if err := s.dispatcher.SendMessage(ctx, j.ownerID, target, j.text, j.media); err != nil {
				failed++
				s.log.Warn().Err(err).Str("job", j.id).Str("target", target).Msg("scheduled send failed")
			}
		}
	}

	s.bus.Publish(notify.Event{Type: notify.EventJobDone, Data: Summary{
		ID:          j.id,
		Kind:        j.kind,
		OwnerID:     j.ownerID,
		FireAt:      j.fireAt,
		TargetCount: s.targetCount(j),
		Recurring:   j.cronSpec != "",
		CronSpec:    j.cronSpec,
	}})
	s.log.Info().Str("job", j.id).Int("failed", failed).Msg("scheduled job completed")
}

// CancelJob removes a job. Ownership mismatch is reported as not-found with
// no mutation.
func (s *Service) CancelJob(id string, ownerID uint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok || j.ownerID != ownerID {
		return ErrJobNotFound
	}
	if j.timer != nil {
		j.timer.Stop()
	}
	if j.cronSpec != "" {
		s.cron.Remove(j.cronID)
	}
	delete(s.jobs, id)
	s.log.Info().Str("job", id).Msg("job cancelled")
	return nil
}

// RescheduleJob moves a one-shot job to a new fire time. Ownership mismatch
// is reported as not-found with no mutation.
func (s *Service) RescheduleJob(id string, newTime time.Time, ownerID uint) error {
	if !newTime.After(time.Now()) {
		return ErrBadSchedule
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok || j.ownerID != ownerID {
		return ErrJobNotFound
	}
	if j.cronSpec != "" {
		// recurring jobs follow their cron spec; cancel and re-create instead
		return ErrBadSchedule
	}
	j.timer.Stop()
	j.fireAt = newTime
	j.timer = time.AfterFunc(time.Until(newTime), func() { s.fire(j.id) })
	s.log.Info().Str("job", id).Time("at", newTime).Msg("job rescheduled")
	return nil
}

// ListJobs returns read-only summaries of every registered job.
func (s *Service) ListJobs() []Summary {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Summary, 0, len(s.jobs))
	for _, j := range s.jobs {
		fireAt := j.fireAt
		if j.cronSpec != "" {
			fireAt = s.cron.Entry(j.cronID).Next
		}
		out = append(out, Summary{
			ID:          j.id,
			Kind:        j.kind,
			OwnerID:     j.ownerID,
			FireAt:      fireAt,
			TargetCount: s.targetCount(j),
			Recurring:   j.cronSpec != "",
			CronSpec:    j.cronSpec,
		})
	}
	return out
}

// ListJobsByOwner filters summaries to one owner.
func (s *Service) ListJobsByOwner(ownerID uint) []Summary {
	all := s.ListJobs()
	out := make([]Summary, 0, len(all))
	for _, sum := range all {
		if sum.OwnerID == ownerID {
			out = append(out, sum)
		}
	}
	return out
}

func (s *Service) targetCount(j *job) int {
	if j.kind == KindBulk {
		return len(j.contacts)
	}
	return len(j.targets)
}
