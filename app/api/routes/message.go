package routes

import (
	"context"
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/wabot/pkg/constant"
	"github.com/wabot/pkg/database"
	"github.com/wabot/pkg/domains/dispatch"
	"github.com/wabot/pkg/domains/session"
	"github.com/wabot/pkg/dtos"
	"github.com/wabot/pkg/entities"
	"github.com/wabot/pkg/middleware"
	"github.com/wabot/pkg/state"
	"github.com/wabot/pkg/utils"
)

func MessageRoutes(r *gin.RouterGroup, d *dispatch.Service) {
	authGroup := r.Group("", middleware.CheckAuth())
	{
		authGroup.POST("/send", sendMessage(d))
		authGroup.POST("/send-bulk", sendBulk(d))
		authGroup.POST("/bulk/pause", pauseBulk(d))
		authGroup.POST("/bulk/resume", resumeBulk(d))
		authGroup.POST("/bulk/cancel", cancelBulk(d))
		authGroup.GET("/logs", messageLogs())
	}
}

func toMedia(in []dtos.MediaDTO) []dispatch.Media {
	out := make([]dispatch.Media, 0, len(in))
	for _, m := range in {
		out = append(out, dispatch.Media{Data: m.Data, MimeType: m.MimeType, Caption: m.Caption})
	}
	return out
}

func sendMessage(d *dispatch.Service) func(c *gin.Context) {
	return func(c *gin.Context) {
		var req dtos.SendMessageDTO
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(400, gin.H{"error": constant.INVALID_REQUEST})
			return
		}

		err := d.SendMessage(c.Request.Context(), state.CurrentUser(c), req.Target, req.Message, toMedia(req.Media))
		if err != nil {
			switch {
			case errors.Is(err, session.ErrNotAuthorized):
				c.JSON(403, gin.H{"error": constant.GROUP_NOT_AUTHORIZED})
			case errors.Is(err, session.ErrNotConnected):
				c.JSON(409, gin.H{"error": constant.SESSION_NOT_READY})
			default:
				c.JSON(500, gin.H{"error": err.Error()})
			}
			return
		}

		c.JSON(200, gin.H{"message": constant.MESSAGE_SENT})
	}
}

func sendBulk(d *dispatch.Service) func(c *gin.Context) {
	return func(c *gin.Context) {
		var req dtos.SendBulkDTO
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(400, gin.H{"error": constant.INVALID_REQUEST})
			return
		}

		ownerID := state.CurrentUser(c)
		if d.BulkActive(ownerID) {
			c.JSON(409, gin.H{"error": constant.BULK_ALREADY_RUNNING})
			return
		}

		contacts := make([]dispatch.Contact, 0, len(req.Contacts))
		for _, ct := range req.Contacts {
			contacts = append(contacts, dispatch.Contact{Phone: ct.Phone, Fields: ct.Fields})
		}
		opts := dispatch.BulkOptions{
			MaxDelaySeconds:  req.MaxDelaySeconds,
			BatchSize:        req.BatchSize,
			BatchWaitMinutes: req.BatchWaitMinutes,
		}

		// the run outlives the request; progress is observable on the bus
		go func() {
			if _, err := d.SendBulk(context.Background(), ownerID, contacts, req.Template, toMedia(req.Media), opts); err != nil {
				log.Warn().Err(err).Uint("owner", ownerID).Msg("bulk send failed to start")
			}
		}()

		c.JSON(202, gin.H{"message": constant.BULK_STARTED, "total": len(contacts)})
	}
}

func pauseBulk(d *dispatch.Service) func(c *gin.Context) {
	return func(c *gin.Context) {
		d.PauseBulk(state.CurrentUser(c))
		c.JSON(200, gin.H{"message": constant.BULK_PAUSED})
	}
}

func resumeBulk(d *dispatch.Service) func(c *gin.Context) {
	return func(c *gin.Context) {
		d.ResumeBulk(state.CurrentUser(c))
		c.JSON(200, gin.H{"message": constant.BULK_RESUMED})
	}
}

func cancelBulk(d *dispatch.Service) func(c *gin.Context) {
	return func(c *gin.Context) {
		d.CancelBulk(state.CurrentUser(c))
		c.JSON(200, gin.H{"message": constant.BULK_CANCELLED})
	}
}

func messageLogs() func(c *gin.Context) {
	return func(c *gin.Context) {
		page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))

		var logs []entities.MessageLog
		totalPages, err := utils.Pagination(&logs, page, database.DBClient(), c, "user_id = ?", state.CurrentUser(c))
		if err != nil {
			c.JSON(400, gin.H{"error": err.Error()})
			return
		}

		out := make([]dtos.MessageLogDTO, 0, len(logs))
		for _, l := range logs {
			out = append(out, dtos.MessageLogDTO{
				Target: l.Target,
				Kind:   l.Kind,
				Status: l.Status,
				Detail: l.Detail,
				SentAt: l.SentAt.Format("2006-01-02 15:04:05"),
			})
		}
		c.JSON(200, gin.H{"logs": out, "total_pages": totalPages})
	}
}
