package routes

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/wabot/pkg/constant"
	"github.com/wabot/pkg/domains/dispatch"
	"github.com/wabot/pkg/domains/scheduler"
	"github.com/wabot/pkg/dtos"
	"github.com/wabot/pkg/middleware"
	"github.com/wabot/pkg/state"
)

func SchedulerRoutes(r *gin.RouterGroup, s *scheduler.Service) {
	authGroup := r.Group("", middleware.CheckAuth())
	{
		authGroup.POST("/message", scheduleMessage(s))
		authGroup.POST("/bulk", scheduleBulk(s))
		authGroup.POST("/group", scheduleGroup(s))
		authGroup.GET("", listJobs(s))
		authGroup.PUT("/:id", rescheduleJob(s))
		authGroup.DELETE("/:id", cancelJob(s))
	}
}

func scheduleMessage(s *scheduler.Service) func(c *gin.Context) {
	return func(c *gin.Context) {
		var req dtos.ScheduleMessageDTO
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(400, gin.H{"error": constant.INVALID_REQUEST})
			return
		}

		id, err := s.ScheduleMessage(state.CurrentUser(c), req.Target, req.Message, toMedia(req.Media), req.FireAt)
		if err != nil {
			c.JSON(400, gin.H{"error": err.Error()})
			return
		}
		c.JSON(201, gin.H{"message": constant.JOB_SCHEDULED, "job_id": id})
	}
}

func scheduleBulk(s *scheduler.Service) func(c *gin.Context) {
	return func(c *gin.Context) {
		var req dtos.ScheduleBulkDTO
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(400, gin.H{"error": constant.INVALID_REQUEST})
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

		var (
			id  string
			err error
		)
		if req.CronSpec != "" {
			id, err = s.ScheduleRecurringBulk(state.CurrentUser(c), contacts, req.Template, toMedia(req.Media), opts, req.CronSpec)
		} else {
			id, err = s.ScheduleBulkMessages(state.CurrentUser(c), contacts, req.Template, toMedia(req.Media), opts, req.FireAt)
		}
		if err != nil {
			c.JSON(400, gin.H{"error": err.Error()})
			return
		}
		c.JSON(201, gin.H{"message": constant.JOB_SCHEDULED, "job_id": id})
	}
}

func scheduleGroup(s *scheduler.Service) func(c *gin.Context) {
	return func(c *gin.Context) {
		var req dtos.ScheduleGroupDTO
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(400, gin.H{"error": constant.INVALID_REQUEST})
			return
		}

		id, err := s.ScheduleGroupMessages(state.CurrentUser(c), req.Groups, req.Message, toMedia(req.Media), req.FireAt)
		if err != nil {
			c.JSON(400, gin.H{"error": err.Error()})
			return
		}
		c.JSON(201, gin.H{"message": constant.JOB_SCHEDULED, "job_id": id})
	}
}

func listJobs(s *scheduler.Service) func(c *gin.Context) {
	return func(c *gin.Context) {
		c.JSON(200, gin.H{"jobs": s.ListJobsByOwner(state.CurrentUser(c))})
	}
}

func rescheduleJob(s *scheduler.Service) func(c *gin.Context) {
	return func(c *gin.Context) {
		var req dtos.RescheduleDTO
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(400, gin.H{"error": constant.INVALID_REQUEST})
			return
		}

		err := s.RescheduleJob(c.Param("id"), req.FireAt, state.CurrentUser(c))
		if err != nil {
			if errors.Is(err, scheduler.ErrJobNotFound) {
				c.JSON(404, gin.H{"error": constant.JOB_NOT_FOUND})
				return
			}
			c.JSON(400, gin.H{"error": err.Error()})
			return
		}
		c.JSON(200, gin.H{"message": constant.JOB_RESCHEDULED})
	}
}

func cancelJob(s *scheduler.Service) func(c *gin.Context) {
	return func(c *gin.Context) {
		err := s.CancelJob(c.Param("id"), state.CurrentUser(c))
		if err != nil {
			if errors.Is(err, scheduler.ErrJobNotFound) {
				c.JSON(404, gin.H{"error": constant.JOB_NOT_FOUND})
				return
			}
			c.JSON(400, gin.H{"error": err.Error()})
			return
		}
		c.JSON(200, gin.H{"message": constant.JOB_CANCELLED})
	}
}
