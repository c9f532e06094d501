package server

import (
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/Depado/ginprom"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"github.com/wabot/app/api/routes"
	"github.com/wabot/pkg/config"
	"github.com/wabot/pkg/database"
	"github.com/wabot/pkg/domains/auth"
	"github.com/wabot/pkg/domains/automation"
	"github.com/wabot/pkg/domains/dispatch"
	"github.com/wabot/pkg/domains/scheduler"
	"github.com/wabot/pkg/domains/session"
	"github.com/wabot/pkg/middleware"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

// Deps collects the engine components the HTTP layer exposes.
type Deps struct {
	Registry   *session.Registry
	Dispatcher *dispatch.Service
	Scheduler  *scheduler.Service
	Automation *automation.Engine
}

func LaunchHttpServer(appc config.App, deps Deps) {
	log.Info().Msg("starting HTTP server")
	gin.SetMode(gin.ReleaseMode)

	app := gin.New()
	app.Use(gin.LoggerWithFormatter(func(log gin.LogFormatterParams) string {
		return fmt.Sprintf("[%s] - %s \"%s %s %s %d %s\"\n",
			log.TimeStamp.Format("2006-01-02 15:04:05"),
			log.ClientIP,
			log.Method,
			log.Path,
			log.Request.Proto,
			log.StatusCode,
			log.Latency,
		)
	}))
	app.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	app.Use(gin.Recovery())
	app.Use(otelgin.Middleware(appc.Name))
	app.Use(middleware.ClaimIp())
	app.Use(cors.New(cors.Config{
		AllowMethods:     []string{http.MethodGet, http.MethodPut, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowHeaders:     []string{"Content-Type", "Authorization", "X-Requested-With", "Origin", "Accept"},
		AllowOrigins:     []string{"*"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))

	p := ginprom.New(
		ginprom.Engine(app),
		ginprom.Subsystem("gin"),
		ginprom.Path("/metrics"),
		ginprom.Ignore("/swagger/*any"),
	)
	app.Use(p.Instrument())

	db := database.DBClient()
	api := app.Group("/api/v1")

	// Auth Routes
	auth_repo := auth.NewRepo(db)
	auth_service := auth.NewService(auth_repo)
	routes.AuthRoutes(api.Group("/auth"), auth_service)

	// Engine control surface
	routes.SessionRoutes(api.Group("/sessions"), deps.Registry)
	routes.MessageRoutes(api.Group("/messages"), deps.Dispatcher)
	routes.SchedulerRoutes(api.Group("/schedule"), deps.Scheduler)
	routes.AutomationRoutes(api.Group("/automation"), deps.Automation)

	log.Info().Str("port", appc.Port).Msg("server is running")
	if err := app.Run(net.JoinHostPort(appc.Host, appc.Port)); err != nil {
		log.Fatal().Err(err).Msg("server failed")
	}
}
