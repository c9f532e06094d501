// Package automation matches incoming messages against keyword rules and
// drives per-contact interactive menu conversations.
package automation

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/wabot/pkg/docstore"
	"github.com/wabot/pkg/domains/session"
	"github.com/wabot/pkg/notify"
	"golang.org/x/time/rate"
)

// Quota is the account collaborator deciding whether automated activity may
// continue for an owner.
type Quota interface {
	MaySend(ownerID uint, n int) bool
	RecordSent(ownerID uint, n int)
}

// Replier delivers an automated response through the owner's session.
type Replier interface {
	Reply(ctx context.Context, ownerID uint, target string, resp *Response) error
}

type Engine struct {
	rulesDoc    *docstore.Store
	menusDoc    *docstore.Store
	settingsDoc *docstore.Store

	quota   Quota
	replier Replier
	bus     *notify.Bus
	limiter *rate.Limiter
	log     zerolog.Logger

	mu       sync.RWMutex
	rules    []Rule
	menus    map[string]Menu
	settings Settings
	convos   map[string]*Conversation
	// activeSession gates automation when single-active-session mode is on.
	activeSession string

	// injectable for tests
	now   func() time.Time
	sleep func(time.Duration)
}

func NewEngine(rulesDoc, menusDoc, settingsDoc *docstore.Store, quota Quota, replier Replier, bus *notify.Bus, repliesPerSecond float64, log zerolog.Logger) (*Engine, error) {
	if repliesPerSecond <= 0 {
		repliesPerSecond = 1
	}
	e := &Engine{
		rulesDoc:    rulesDoc,
		menusDoc:    menusDoc,
		settingsDoc: settingsDoc,
		quota:       quota,
		replier:     replier,
		bus:         bus,
		limiter:     rate.NewLimiter(rate.Limit(repliesPerSecond), 1),
		log:         log.With().Str("component", "automation").Logger(),
		menus:       make(map[string]Menu),
		convos:      make(map[string]*Conversation),
		now:         time.Now,
		sleep:       time.Sleep,
	}
	if err := e.Reload(); err != nil {
		return nil, err
	}
	return e, nil
}

// Reload re-reads the rule, menu and settings documents.
func (e *Engine) Reload() error {
	var rules []Rule
	if err := e.rulesDoc.Load(&rules); err != nil {
		return fmt.Errorf("load rules: %w", err)
	}
	var menus []Menu
	if err := e.menusDoc.Load(&menus); err != nil {
		return fmt.Errorf("load menus: %w", err)
	}
	var settings Settings
	if err := e.settingsDoc.Load(&settings); err != nil {
		return fmt.Errorf("load settings: %w", err)
	}

	menuIndex := make(map[string]Menu, len(menus))
	for _, m := range menus {
		menuIndex[m.ID] = m
	}

	e.mu.Lock()
	e.rules = rules
	e.menus = menuIndex
	e.settings = settings
	e.mu.Unlock()

	e.log.Info().Int("rules", len(rules)).Int("menus", len(menus)).Msg("automation documents loaded")
	return nil
}

// SetActiveSession designates the only session allowed to run automation in
// single-active-session mode.
func (e *Engine) SetActiveSession(id string) {
	e.mu.Lock()
	e.activeSession = id
	e.mu.Unlock()
}

// StartJanitor expires idle conversations until ctx is done.
func (e *Engine) StartJanitor(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				e.expireIdle()
			}
		}
	}()
}

func (e *Engine) expireIdle() {
	cutoff := e.now().Add(-idleTimeout)
	e.mu.Lock()
	for contact, conv := range e.convos {
		if conv.LastActive.Before(cutoff) {
			delete(e.convos, contact)
		}
	}
	e.mu.Unlock()
}

// HandleIncoming is the inbound entry point, called from each session's
// event pump.
func (e *Engine) HandleIncoming(ctx context.Context, msg session.InboundMessage) {
	if msg.IsFromMe || msg.IsBroadcast || msg.Text == "" {
		return
	}

	e.mu.RLock()
	settings := e.settings
	active := e.activeSession
	e.mu.RUnlock()

	if msg.IsGroup && !settings.GroupAutomation {
		return
	}
	if !e.quota.MaySend(msg.OwnerID, 1) {
		e.bus.Publish(notify.Event{Type: notify.EventQuotaExceeded, Data: map[string]any{
			"owner":   msg.OwnerID,
			"session": msg.SessionID,
		}})
		return
	}
	if settings.SingleActiveSession && active != "" && active != msg.SessionID {
		return
	}

	// an existing conversation takes precedence over rule matching
	if conv := e.conversation(msg.Sender); conv != nil {
		menu, menuOK := e.menu(conv.MenuID)
		rule := e.ruleByID(conv.RuleID)
		valid := menuOK && menu.Active && (conv.RuleID == "" || (rule != nil && rule.Active))
		if valid {
			e.handleMenuInteraction(ctx, msg, conv, menu)
			return
		}
		// menu or trigger rule was deactivated: drop the stale session and
		// fall through to rule evaluation
		e.ClearConversation(msg.Sender)
	}

	if e.evaluateRules(ctx, msg, RuleMenu) {
		return
	}
	e.evaluateRules(ctx, msg, RuleSimple)
}

// evaluateRules scans rules of one kind in declared order; the first rule
// that matches and can be delivered wins. A malformed rule is skipped, never
// blocking the rest.
func (e *Engine) evaluateRules(ctx context.Context, msg session.InboundMessage, kind RuleKind) bool {
	e.mu.RLock()
	rules := e.rules
	e.mu.RUnlock()

	for _, r := range rules {
		if r.Kind != kind || !e.ruleMatches(r, msg) {
			continue
		}

		switch kind {
		case RuleMenu:
			menu, ok := e.menu(r.MenuID)
			if !ok || !menu.Active {
				e.log.Warn().Str("rule", r.ID).Str("menu", r.MenuID).Msg("menu rule references missing or inactive menu, skipping")
				continue
			}
			e.applyDelay(r)
			if err := e.reply(ctx, msg, &Response{Text: renderMenu(menu), Media: menu.Media}); err != nil {
				e.log.Warn().Err(err).Str("rule", r.ID).Msg("menu delivery failed")
				return true
			}
			e.setConversation(&Conversation{
				Contact:    msg.Sender,
				MenuID:     menu.ID,
				RuleID:     r.ID,
				Data:       map[string]string{},
				LastActive: e.now(),
			})
			return true
		default:
			if r.Response == nil {
				e.log.Warn().Str("rule", r.ID).Msg("simple rule has no response, skipping")
				continue
			}
			e.applyDelay(r)
			if err := e.reply(ctx, msg, r.Response); err != nil {
				e.log.Warn().Err(err).Str("rule", r.ID).Msg("rule reply failed")
			}
			return true
		}
	}
	return false
}

func (e *Engine) ruleMatches(r Rule, msg session.InboundMessage) bool {
	if !r.Active {
		return false
	}
	if !countryAllowed(r.CountryCodes, msg.SenderNumber) {
		return false
	}
	text := strings.ToLower(strings.TrimSpace(msg.Text))
	for _, kw := range r.Keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw == "" {
			continue
		}
		if r.Match == MatchExact {
			if text == kw {
				return true
			}
		} else if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

// countryAllowed does a digits-only prefix test of the sender's number
// against each configured code. An empty list allows everyone.
func countryAllowed(codes []string, number string) bool {
	if len(codes) == 0 {
		return true
	}
	digits := digitsOnly(number)
	for _, code := range codes {
		c := digitsOnly(code)
		if c != "" && strings.HasPrefix(digits, c) {
			return true
		}
	}
	return false
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func (e *Engine) applyDelay(r Rule) {
	if r.DelaySeconds > 0 {
		e.sleep(time.Duration(r.DelaySeconds) * time.Second)
	}
}

func (e *Engine) reply(ctx context.Context, msg session.InboundMessage, resp *Response) error {
	if err := e.limiter.Wait(ctx); err != nil {
		return err
	}
	target := msg.Chat
	if target == "" {
		target = msg.Sender
	}
	if err := e.replier.Reply(ctx, msg.OwnerID, target, resp); err != nil {
		return err
	}
	e.quota.RecordSent(msg.OwnerID, 1)
	return nil
}

// ---- conversation store ----

// conversation returns a snapshot of the contact's conversation, or nil. The
// caller mutates its copy freely and stores it back via setConversation; the
// live entry is only ever touched under the lock.
func (e *Engine) conversation(contact string) *Conversation {
	e.mu.RLock()
	defer e.mu.RUnlock()
	conv, ok := e.convos[contact]
	if !ok {
		return nil
	}
	snap := *conv
	snap.History = append([]string(nil), conv.History...)
	return &snap
}

func (e *Engine) setConversation(conv *Conversation) {
	e.mu.Lock()
	e.convos[conv.Contact] = conv
	e.mu.Unlock()
}

// ClearConversation drops a contact's conversation state.
func (e *Engine) ClearConversation(contact string) {
	e.mu.Lock()
	delete(e.convos, contact)
	e.mu.Unlock()
}

// ---- document access for the control surface ----

func (e *Engine) Rules() []Rule {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]Rule(nil), e.rules...)
}

func (e *Engine) Menus() []Menu {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]Menu, 0, len(e.menus))
	for _, m := range e.menus {
		out = append(out, m)
	}
	return out
}

func (e *Engine) Settings() Settings {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.settings
}

// ReplaceRules rewrites the whole rule document and reloads.
func (e *Engine) ReplaceRules(rules []Rule) error {
	if err := e.rulesDoc.Replace(rules); err != nil {
		return err
	}
	return e.Reload()
}

// ReplaceMenus rewrites the whole menu document and reloads.
func (e *Engine) ReplaceMenus(menus []Menu) error {
	if err := e.menusDoc.Replace(menus); err != nil {
		return err
	}
	return e.Reload()
}

// ReplaceSettings rewrites the settings document and reloads.
func (e *Engine) ReplaceSettings(s Settings) error {
	if err := e.settingsDoc.Replace(s); err != nil {
		return err
	}
	return e.Reload()
}

func (e *Engine) menu(id string) (Menu, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	m, ok := e.menus[id]
	return m, ok
}

func (e *Engine) ruleByID(id string) *Rule {
	if id == "" {
		return nil
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	for i := range e.rules {
		if e.rules[i].ID == id {
			return &e.rules[i]
		}
	}
	return nil
}
