package automation

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func navMenus() []Menu {
	return []Menu{
		{
			ID:     "main",
			Body:   "Welcome",
			Active: true,
			Options: []Option{
				{Triggers: []string{"1", "prices"}, Label: "Prices", NextMenuID: "prices"},
				{Triggers: []string{"2", "human"}, Label: "Talk to us", Response: &Response{Text: "an agent will reply shortly"}, End: true},
			},
		},
		{
			ID:     "prices",
			Body:   "Price list",
			Active: true,
			Options: []Option{
				{Triggers: []string{"1", "basic"}, Label: "Basic plan", Response: &Response{Text: "basic costs 10"}},
				{Triggers: []string{"back"}, Label: "Back", Back: true},
			},
		},
	}
}

func menuRig(t *testing.T) *testRig {
	t.Helper()
	rig := newTestRig(t)
	require.NoError(t, rig.engine.ReplaceMenus(navMenus()))
	require.NoError(t, rig.engine.ReplaceRules([]Rule{
		{ID: "entry", Keywords: []string{"menu"}, Match: MatchContains, Active: true, Kind: RuleMenu, MenuID: "main"},
	}))
	rig.engine.HandleIncoming(context.Background(), inbound("menu"))
	require.Equal(t, 1, rig.replier.count())
	return rig
}

func TestMatchOption(t *testing.T) {
	menu := navMenus()[0]

	opt := matchOption(menu, "  PRICES ")
	require.NotNil(t, opt)
	assert.Equal(t, "Prices", opt.Label)

	opt = matchOption(menu, "I want to see prices please")
	require.NotNil(t, opt)
	assert.Equal(t, "Prices", opt.Label)

	assert.Nil(t, matchOption(menu, "something else"))
}

func TestRenderMenuNumbersOptions(t *testing.T) {
	got := renderMenu(navMenus()[0])
	assert.Equal(t, "Welcome\n1. Prices\n2. Talk to us", got)
}

func TestMenuNavigationForward(t *testing.T) {
	rig := menuRig(t)

	rig.engine.HandleIncoming(context.Background(), inbound("1"))
	require.Equal(t, 2, rig.replier.count())
	assert.Contains(t, rig.replier.last(t).text, "Price list")

	conv := rig.engine.conversation(inbound("").Sender)
	require.NotNil(t, conv)
	assert.Equal(t, "prices", conv.MenuID)
	assert.Equal(t, []string{"main"}, conv.History)
}

func TestMenuNavigationBack(t *testing.T) {
	rig := menuRig(t)
	rig.engine.HandleIncoming(context.Background(), inbound("1"))

	rig.engine.HandleIncoming(context.Background(), inbound("back"))
	assert.Contains(t, rig.replier.last(t).text, "Welcome")

	conv := rig.engine.conversation(inbound("").Sender)
	require.NotNil(t, conv)
	assert.Equal(t, "main", conv.MenuID)
	assert.Empty(t, conv.History)
}

func TestMenuBackAtRootKeepsConversation(t *testing.T) {
	rig := newTestRig(t)
	menus := navMenus()
	menus[0].Options = append(menus[0].Options, Option{Triggers: []string{"back"}, Label: "Back", Back: true})
	require.NoError(t, rig.engine.ReplaceMenus(menus))
	require.NoError(t, rig.engine.ReplaceRules([]Rule{
		{ID: "entry", Keywords: []string{"menu"}, Match: MatchContains, Active: true, Kind: RuleMenu, MenuID: "main"},
	}))
	rig.engine.HandleIncoming(context.Background(), inbound("menu"))

	rig.engine.HandleIncoming(context.Background(), inbound("back"))
	assert.Contains(t, rig.replier.last(t).text, defaultErrorNotice)

	conv := rig.engine.conversation(inbound("").Sender)
	require.NotNil(t, conv)
	assert.Equal(t, "main", conv.MenuID)
}

func TestMenuOptionResponseThenStay(t *testing.T) {
	rig := menuRig(t)
	rig.engine.HandleIncoming(context.Background(), inbound("1"))

	// "basic" has a response and no navigation: reply and stay on the menu
	rig.engine.HandleIncoming(context.Background(), inbound("basic"))
	assert.Equal(t, "basic costs 10", rig.replier.last(t).text)

	conv := rig.engine.conversation(inbound("").Sender)
	require.NotNil(t, conv)
	assert.Equal(t, "prices", conv.MenuID)
}

func TestMenuEndOptionClosesConversation(t *testing.T) {
	rig := menuRig(t)

	rig.engine.HandleIncoming(context.Background(), inbound("2"))
	assert.Equal(t, "an agent will reply shortly", rig.replier.last(t).text)
	assert.Nil(t, rig.engine.conversation(inbound("").Sender))
}

func TestMenuUnknownInputResendsOptions(t *testing.T) {
	rig := menuRig(t)

	rig.engine.HandleIncoming(context.Background(), inbound("what?"))
	got := rig.replier.last(t).text
	assert.Contains(t, got, defaultErrorNotice)
	assert.Contains(t, got, "1. Prices")
	assert.Contains(t, got, "2. Talk to us")

	conv := rig.engine.conversation(inbound("").Sender)
	require.NotNil(t, conv)
	assert.Equal(t, "main", conv.MenuID)
}

func TestMenuCustomErrorNotice(t *testing.T) {
	rig := menuRig(t)
	require.NoError(t, rig.engine.ReplaceSettings(Settings{ErrorNotice: "Gecersiz secim."}))

	rig.engine.HandleIncoming(context.Background(), inbound("what?"))
	assert.Contains(t, rig.replier.last(t).text, "Gecersiz secim.")
}

func TestMenuBrokenNavigationTargetEndsConversation(t *testing.T) {
	rig := newTestRig(t)
	require.NoError(t, rig.engine.ReplaceMenus([]Menu{{
		ID:     "main",
		Body:   "Welcome",
		Active: true,
		Options: []Option{
			{Triggers: []string{"1"}, Label: "Gone", NextMenuID: "nowhere"},
		},
	}}))
	require.NoError(t, rig.engine.ReplaceRules([]Rule{
		{ID: "entry", Keywords: []string{"menu"}, Match: MatchContains, Active: true, Kind: RuleMenu, MenuID: "main"},
	}))
	rig.engine.HandleIncoming(context.Background(), inbound("menu"))

	rig.engine.HandleIncoming(context.Background(), inbound("1"))
	assert.Nil(t, rig.engine.conversation(inbound("").Sender))
}

func TestMenuNavigationConcurrentWithJanitor(t *testing.T) {
	rig := menuRig(t)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 100; i++ {
			rig.engine.expireIdle()
		}
	}()

	for i := 0; i < 50; i++ {
		rig.engine.HandleIncoming(context.Background(), inbound("1"))
		rig.engine.HandleIncoming(context.Background(), inbound("back"))
	}
	<-done

	conv := rig.engine.conversation(inbound("").Sender)
	require.NotNil(t, conv)
	assert.Equal(t, "main", conv.MenuID)
}

func TestMenuHistoryBounded(t *testing.T) {
	rig := menuRig(t)
	sender := inbound("").Sender

	conv := rig.engine.conversation(sender)
	require.NotNil(t, conv)
	for i := 0; i < historyLimit; i++ {
		conv.History = append(conv.History, fmt.Sprintf("m%d", i))
	}
	rig.engine.setConversation(conv)

	rig.engine.HandleIncoming(context.Background(), inbound("1"))
	conv = rig.engine.conversation(sender)
	require.NotNil(t, conv)
	assert.Len(t, conv.History, historyLimit)
	// the oldest entries fall off, the newest is the menu we came from
	assert.Equal(t, "main", conv.History[len(conv.History)-1])
}
