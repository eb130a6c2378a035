package handler

import (
	"chatty/internal/app/chat"
	"chatty/internal/configs"
	"chatty/internal/pkg/limiter"
)

// AppDeps holds everything the HTTP side-channel needs from the running chat server.
type AppDeps struct {
	Server      *chat.Server
	Metrics     *chat.Metrics
	Config      *configs.AppConfig
	Limiter     *limiter.IPRateLimiter
	BackendKind string
}
