package automation

import "time"

type MatchMode string

const (
	MatchExact    MatchMode = "exact"
	MatchContains MatchMode = "contains"
)

type RuleKind string

const (
	RuleSimple RuleKind = "simple"
	RuleMenu   RuleKind = "menu"
)

// Rule is a keyword-triggered automated response. Simple rules carry an
// inline response; menu rules start an interactive menu conversation.
type Rule struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Keywords     []string  `json:"keywords"`
	Match        MatchMode `json:"match"`
	CountryCodes []string  `json:"country_codes,omitempty"`
	DelaySeconds int       `json:"delay_seconds"`
	Active       bool      `json:"active"`
	Kind         RuleKind  `json:"kind"`
	Response     *Response `json:"response,omitempty"`
	MenuID       string    `json:"menu_id,omitempty"`
}

type Response struct {
	Text  string     `json:"text"`
	Media []MediaRef `json:"media,omitempty"`
}

type MediaRef struct {
	Path     string `json:"path"`
	MimeType string `json:"mime_type"`
	Caption  string `json:"caption"`
}

// Menu is a named set of selectable options.
type Menu struct {
	ID      string     `json:"id"`
	Name    string     `json:"name"`
	Body    string     `json:"body"`
	Media   []MediaRef `json:"media,omitempty"`
	Active  bool       `json:"active"`
	Options []Option   `json:"options"`
}

// Option matches trigger phrases and applies at most one navigation
// directive: NextMenuID, Back or End.
type Option struct {
	Triggers   []string  `json:"triggers"`
	Label      string    `json:"label"`
	Response   *Response `json:"response,omitempty"`
	NextMenuID string    `json:"next_menu_id,omitempty"`
	Back       bool      `json:"back,omitempty"`
	End        bool      `json:"end,omitempty"`
}

// Settings is the automation configuration document.
type Settings struct {
	GroupAutomation     bool   `json:"group_automation"`
	SingleActiveSession bool   `json:"single_active_session"`
	ErrorNotice         string `json:"error_notice,omitempty"`
}

const defaultErrorNotice = "Sorry, that is not a valid option. Please choose one of:"

// historyLimit bounds a conversation's menu history stack.
const historyLimit = 20

// idleTimeout is how long a conversation survives without interaction.
const idleTimeout = 15 * time.Minute

// Conversation tracks which menu a remote contact is currently navigating.
type Conversation struct {
	Contact    string            `json:"contact"`
	MenuID     string            `json:"menu_id"`
	RuleID     string            `json:"rule_id,omitempty"`
	History    []string          `json:"history,omitempty"`
	Data       map[string]string `json:"data,omitempty"`
	LastActive time.Time         `json:"last_active"`
}
