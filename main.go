package main

import (
	"github.com/wabot/app/cmd"
)

// @title WhatsApp Messaging Engine API
// @version 1.0
// @description Multi-account WhatsApp session, dispatch, scheduling and automation service.

// @host  localhost:8000
// @BasePath /api/v1

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cmd.StartApp()
}
