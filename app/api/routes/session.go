package routes

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/wabot/pkg/constant"
	"github.com/wabot/pkg/domains/session"
	"github.com/wabot/pkg/dtos"
	"github.com/wabot/pkg/middleware"
	"github.com/wabot/pkg/state"
)

func SessionRoutes(r *gin.RouterGroup, registry *session.Registry) {
	authGroup := r.Group("", middleware.CheckAuth())
	{
		authGroup.POST("", createSession(registry))
		authGroup.GET("", listSessions(registry))
		authGroup.GET("/:id", getSession(registry))
		authGroup.POST("/:id/initialize", initializeSession(registry))
		authGroup.GET("/:id/qr", getQRCode(registry))
		authGroup.DELETE("/:id", destroySession(registry))
	}
}

func toSessionDTO(s session.Session) dtos.SessionDTO {
	return dtos.SessionDTO{
		ID:        s.ID,
		OwnerID:   s.OwnerID,
		Phone:     s.Phone,
		Status:    string(s.Status),
		CreatedAt: s.CreatedAt,
	}
}

// ownedSession loads the session and enforces that it belongs to the caller.
func ownedSession(c *gin.Context, registry *session.Registry) (session.Session, bool) {
	sess, ok := registry.Get(c.Param("id"))
	if !ok || sess.OwnerID != state.CurrentUser(c) {
		c.JSON(404, gin.H{"error": constant.SESSION_NOT_FOUND})
		return session.Session{}, false
	}
	return sess, true
}

func createSession(registry *session.Registry) func(c *gin.Context) {
	return func(c *gin.Context) {
		sess, err := registry.Create(state.CurrentUser(c))
		if err != nil {
			c.JSON(500, gin.H{"error": err.Error()})
			return
		}
		c.JSON(201, gin.H{
			"message": constant.SESSION_CREATED,
			"data":    toSessionDTO(sess),
		})
	}
}

func listSessions(registry *session.Registry) func(c *gin.Context) {
	return func(c *gin.Context) {
		sessions := registry.ListByOwner(state.CurrentUser(c))
		out := make([]dtos.SessionDTO, 0, len(sessions))
		for _, s := range sessions {
			out = append(out, toSessionDTO(s))
		}
		c.JSON(200, gin.H{"sessions": out})
	}
}

func getSession(registry *session.Registry) func(c *gin.Context) {
	return func(c *gin.Context) {
		sess, ok := ownedSession(c, registry)
		if !ok {
			return
		}
		c.JSON(200, toSessionDTO(sess))
	}
}

func initializeSession(registry *session.Registry) func(c *gin.Context) {
	return func(c *gin.Context) {
		sess, ok := ownedSession(c, registry)
		if !ok {
			return
		}
		if err := registry.Initialize(c.Request.Context(), sess.ID); err != nil {
			c.JSON(500, gin.H{"error": err.Error()})
			return
		}
		c.JSON(200, gin.H{"message": constant.SESSION_CONNECTED})
	}
}

func getQRCode(registry *session.Registry) func(c *gin.Context) {
	return func(c *gin.Context) {
		sess, ok := ownedSession(c, registry)
		if !ok {
			return
		}
		if sess.LastQR == "" {
			c.JSON(404, gin.H{"error": "No QR code pending for this session"})
			return
		}
		c.JSON(200, dtos.QRCodeDTO{
			SessionID: sess.ID,
			Code:      sess.LastQR,
			PNGBase64: session.QRPNGBase64(sess.LastQR),
		})
	}
}

func destroySession(registry *session.Registry) func(c *gin.Context) {
	return func(c *gin.Context) {
		sess, ok := ownedSession(c, registry)
		if !ok {
			return
		}
		if err := registry.Destroy(c.Request.Context(), sess.ID); err != nil {
			if errors.Is(err, session.ErrSessionNotFound) {
				c.JSON(404, gin.H{"error": constant.SESSION_NOT_FOUND})
				return
			}
			c.JSON(500, gin.H{"error": err.Error()})
			return
		}
		c.JSON(200, gin.H{"message": constant.SESSION_DESTROYED})
	}
}
