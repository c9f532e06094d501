package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/wabot/pkg/constant"
	"github.com/wabot/pkg/domains/automation"
	"github.com/wabot/pkg/middleware"
)

func AutomationRoutes(r *gin.RouterGroup, e *automation.Engine) {
	authGroup := r.Group("", middleware.CheckAuth())
	{
		authGroup.GET("/rules", getRules(e))
		authGroup.PUT("/rules", putRules(e))
		authGroup.GET("/menus", getMenus(e))
		authGroup.PUT("/menus", putMenus(e))
		authGroup.GET("/settings", getSettings(e))
		authGroup.PUT("/settings", putSettings(e))
		authGroup.DELETE("/conversations/:contact", clearConversation(e))
	}
}

func getRules(e *automation.Engine) func(c *gin.Context) {
	return func(c *gin.Context) {
		c.JSON(200, gin.H{"rules": e.Rules()})
	}
}

// putRules replaces the whole rule document; there are no partial updates.
func putRules(e *automation.Engine) func(c *gin.Context) {
	return func(c *gin.Context) {
		var rules []automation.Rule
		if err := c.ShouldBindJSON(&rules); err != nil {
			c.JSON(400, gin.H{"error": constant.INVALID_REQUEST})
			return
		}
		if err := e.ReplaceRules(rules); err != nil {
			c.JSON(500, gin.H{"error": err.Error()})
			return
		}
		c.JSON(200, gin.H{"message": constant.DOCUMENT_REPLACED})
	}
}

func getMenus(e *automation.Engine) func(c *gin.Context) {
	return func(c *gin.Context) {
		c.JSON(200, gin.H{"menus": e.Menus()})
	}
}

func putMenus(e *automation.Engine) func(c *gin.Context) {
	return func(c *gin.Context) {
		var menus []automation.Menu
		if err := c.ShouldBindJSON(&menus); err != nil {
			c.JSON(400, gin.H{"error": constant.INVALID_REQUEST})
			return
		}
		if err := e.ReplaceMenus(menus); err != nil {
			c.JSON(500, gin.H{"error": err.Error()})
			return
		}
		c.JSON(200, gin.H{"message": constant.DOCUMENT_REPLACED})
	}
}

func getSettings(e *automation.Engine) func(c *gin.Context) {
	return func(c *gin.Context) {
		c.JSON(200, e.Settings())
	}
}

func putSettings(e *automation.Engine) func(c *gin.Context) {
	return func(c *gin.Context) {
		var settings automation.Settings
		if err := c.ShouldBindJSON(&settings); err != nil {
			c.JSON(400, gin.H{"error": constant.INVALID_REQUEST})
			return
		}
		if err := e.ReplaceSettings(settings); err != nil {
			c.JSON(500, gin.H{"error": err.Error()})
			return
		}
		c.JSON(200, gin.H{"message": constant.DOCUMENT_REPLACED})
	}
}

func clearConversation(e *automation.Engine) func(c *gin.Context) {
	return func(c *gin.Context) {
		e.ClearConversation(c.Param("contact"))
		c.JSON(200, gin.H{"message": constant.CONVERSATION_RESET})
	}
}
