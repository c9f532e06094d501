package cmd

import (
	"context"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/wabot/pkg/config"
	"github.com/wabot/pkg/database"
	"github.com/wabot/pkg/docstore"
	"github.com/wabot/pkg/domains/account"
	"github.com/wabot/pkg/domains/automation"
	"github.com/wabot/pkg/domains/dispatch"
	"github.com/wabot/pkg/domains/scheduler"
	"github.com/wabot/pkg/domains/session"
	"github.com/wabot/pkg/notify"
	"github.com/wabot/pkg/server"
	"github.com/wabot/pkg/utils"
)

// sessionsAdapter resolves dispatch sends to the owner's first ready session.
type sessionsAdapter struct {
	registry *session.Registry
}

func (a sessionsAdapter) SenderFor(ownerID uint) (dispatch.Sender, error) {
	sup := a.registry.FirstReady(ownerID)
	if sup == nil {
		return nil, session.ErrNotConnected
	}
	return sup, nil
}

// autoReplier delivers automation responses through the dispatch service so
// they share delivery logging with manually sent messages.
type autoReplier struct {
	dispatcher *dispatch.Service
}

func (r autoReplier) Reply(ctx context.Context, ownerID uint, target string, resp *automation.Response) error {
	media := make([]dispatch.Media, 0, len(resp.Media))
	for _, ref := range resp.Media {
		data, err := os.ReadFile(ref.Path)
		if err != nil {
			log.Warn().Err(err).Str("path", ref.Path).Msg("skipping unreadable media attachment")
			continue
		}
		media = append(media, dispatch.Media{Data: data, MimeType: ref.MimeType, Caption: ref.Caption})
	}
	return r.dispatcher.Send(ctx, ownerID, target, resp.Text, media, "auto")
}

func StartApp() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	logger := log.Logger

	configs := config.InitConfig()
	utils.LoadEnv()
	database.InitDB(configs.Database)

	ctx := context.Background()
	bus := notify.NewBus()
	db := database.DBClient()

	registry := session.NewRegistry(configs.WhatsApp, session.WhatsmeowFactory, bus, db, logger)
	dispatcher := dispatch.NewService(
		sessionsAdapter{registry: registry},
		bus,
		dispatch.NewGormDeliveryLog(db, logger),
		configs.Bulk.PollInterval,
		logger,
	)
	sched := scheduler.NewService(dispatcher, bus, logger)

	if err := os.MkdirAll(configs.Automation.DocsDir, 0o755); err != nil {
		log.Fatal().Err(err).Msg("creating automation docs dir failed")
	}
	rulesDoc := docstore.New(filepath.Join(configs.Automation.DocsDir, "rules.json"))
	menusDoc := docstore.New(filepath.Join(configs.Automation.DocsDir, "menus.json"))
	settingsDoc := docstore.New(filepath.Join(configs.Automation.DocsDir, "settings.json"))

	quota := account.NewService(db, logger)
	engine, err := automation.NewEngine(
		rulesDoc, menusDoc, settingsDoc,
		quota,
		autoReplier{dispatcher: dispatcher},
		bus,
		configs.Automation.RepliesPerSecond,
		logger,
	)
	if err != nil {
		log.Fatal().Err(err).Msg("loading automation documents failed")
	}
	if _, err := os.Stat(settingsDoc.Path()); os.IsNotExist(err) {
		seed := automation.Settings{
			GroupAutomation:     configs.Automation.GroupAutomation,
			SingleActiveSession: configs.Automation.SingleActiveSession,
		}
		if err := engine.ReplaceSettings(seed); err != nil {
			log.Warn().Err(err).Msg("seeding automation settings failed")
		}
	}
	engine.StartJanitor(ctx)

	registry.SetInboundHandler(func(m session.InboundMessage) {
		engine.HandleIncoming(ctx, m)
	})

	// external edits to the documents take effect without a restart
	watchPaths := []string{rulesDoc.Path(), menusDoc.Path(), settingsDoc.Path()}
	if err := docstore.Watch(ctx, logger, watchPaths, func(path string) {
		if err := engine.Reload(); err != nil {
			log.Warn().Err(err).Str("path", path).Msg("automation reload failed")
		}
	}); err != nil {
		log.Warn().Err(err).Msg("document watcher unavailable, edits require restart")
	}

	// the single-active-session gate follows whichever session came up last
	go func() {
		events, _ := bus.Subscribe(16)
		for e := range events {
			if e.Type != notify.EventReady {
				continue
			}
			if sess, ok := e.Data.(session.Session); ok {
				engine.SetActiveSession(sess.ID)
			}
		}
	}()

	if err := registry.Restore(ctx); err != nil {
		log.Warn().Err(err).Msg("restoring sessions failed")
	}

	server.LaunchHttpServer(configs.App, server.Deps{
		Registry:   registry,
		Dispatcher: dispatcher,
		Scheduler:  sched,
		Automation: engine,
	})
}
