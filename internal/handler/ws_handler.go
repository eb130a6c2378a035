/*
Package handler provides the HTTP side-channel of the Chatty server.

This file contains the HandleWebSocket function, which upgrades the HTTP connection to
WebSocket and hands it to the Registry exactly like a TCP client.
*/
package handler

import (
	"errors"
	"net/http"

	"github.com/gorilla/websocket"

	"chatty/internal/app/chat"
	"chatty/internal/pkg/logx"
)

// HandleWebSocket creates an HTTP HandlerFunc to process WebSocket connection requests.
// The session runs on the chat worker pool, so the handler returns right after the upgrade.
func HandleWebSocket(upgrader websocket.Upgrader, deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logx.Error(err, "Failed to upgrade connection to WebSocket")
			return
		}

		if err := deps.Server.Registry().Accept(chat.NewWebSocketConn(conn)); err != nil {
			if !errors.Is(err, chat.ErrShuttingDown) {
				logx.Error(err, "Failed to accept WebSocket connection")
			}
			return
		}

		logx.Info("WebSocket connection established", "remote_ip", logx.AnonymizeIP(r.RemoteAddr))
	}
}
