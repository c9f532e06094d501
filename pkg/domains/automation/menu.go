package automation

import (
	"context"
	"fmt"
	"strings"

	"github.com/wabot/pkg/domains/session"
)

// handleMenuInteraction routes a message from a contact who is inside a menu
// conversation. Exactly one navigation outcome is applied per matched option.
func (e *Engine) handleMenuInteraction(ctx context.Context, msg session.InboundMessage, conv *Conversation, menu Menu) {
	opt := matchOption(menu, msg.Text)
	if opt == nil {
		// unknown input: resend the option list with an error notice,
		// conversation unchanged
		notice := e.errorNotice()
		e.replyText(ctx, msg, notice+"\n"+renderOptions(menu))
		return
	}

	if opt.Response != nil {
		if err := e.reply(ctx, msg, opt.Response); err != nil {
			e.log.Warn().Err(err).Str("contact", msg.Sender).Msg("option response failed")
		}
	}

	switch {
	case opt.End:
		e.ClearConversation(msg.Sender)

	case opt.Back:
		if len(conv.History) == 0 {
			e.replyText(ctx, msg, e.errorNotice()+"\n"+renderOptions(menu))
			return
		}
		prevID := conv.History[len(conv.History)-1]
		prev, ok := e.menu(prevID)
		if !ok || !prev.Active {
			e.replyText(ctx, msg, e.errorNotice()+"\n"+renderOptions(menu))
			return
		}
		conv.History = conv.History[:len(conv.History)-1]
		conv.MenuID = prev.ID
		conv.LastActive = e.now()
		e.setConversation(conv)
		e.replyMenu(ctx, msg, prev)

	case opt.NextMenuID != "":
		next, ok := e.menu(opt.NextMenuID)
		if !ok || !next.Active {
			// broken navigation target: fail closed by ending the
			// conversation rather than stranding the contact
			e.log.Warn().Str("menu", opt.NextMenuID).Msg("navigation target missing or inactive, clearing conversation")
			e.ClearConversation(msg.Sender)
			return
		}
		conv.History = append(conv.History, conv.MenuID)
		if len(conv.History) > historyLimit {
			conv.History = conv.History[len(conv.History)-historyLimit:]
		}
		conv.MenuID = next.ID
		conv.LastActive = e.now()
		e.setConversation(conv)
		e.replyMenu(ctx, msg, next)

	default:
		// no navigation: stay on the current menu
		conv.LastActive = e.now()
		e.setConversation(conv)
	}
}

func (e *Engine) replyMenu(ctx context.Context, msg session.InboundMessage, menu Menu) {
	if err := e.reply(ctx, msg, &Response{Text: renderMenu(menu), Media: menu.Media}); err != nil {
		e.log.Warn().Err(err).Str("menu", menu.ID).Msg("menu delivery failed")
	}
}

func (e *Engine) replyText(ctx context.Context, msg session.InboundMessage, text string) {
	if err := e.reply(ctx, msg, &Response{Text: text}); err != nil {
		e.log.Warn().Err(err).Str("contact", msg.Sender).Msg("reply failed")
	}
}

func (e *Engine) errorNotice() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.settings.ErrorNotice != "" {
		return e.settings.ErrorNotice
	}
	return defaultErrorNotice
}

// matchOption finds the first option whose trigger phrases match the text,
// by case-insensitive equality or substring.
func matchOption(menu Menu, text string) *Option {
	needle := strings.ToLower(strings.TrimSpace(text))
	for i := range menu.Options {
		for _, trigger := range menu.Options[i].Triggers {
			t := strings.ToLower(strings.TrimSpace(trigger))
			if t == "" {
				continue
			}
			if needle == t || strings.Contains(needle, t) {
				return &menu.Options[i]
			}
		}
	}
	return nil
}

func renderMenu(m Menu) string {
	var b strings.Builder
	b.WriteString(m.Body)
	if len(m.Options) > 0 {
		b.WriteString("\n")
		b.WriteString(renderOptions(m))
	}
	return b.String()
}

func renderOptions(m Menu) string {
	var b strings.Builder
	for i, opt := range m.Options {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(fmt.Sprintf("%d. %s", i+1, opt.Label))
	}
	return b.String()
}
