// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package cluster_buddy

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/AleutianAI/ClusterBuddy/services/cluster_buddy/agent"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

func sendJSON(ws *websocket.Conn, v interface{}) error {
	err := ws.WriteJSON(v)
	if err != nil {
		slog.Warn("Failed to write WebSocket JSON", "error", err)
	}
	return err
}

// HandleSessionStream handles GET /v1/triage/sessions/:id/stream.
//
// Description:
//
//	Upgrades to a websocket and streams one investigation's progress
//	events. The first message is always a snapshot of the session as it
//	stands, so late joiners see where the investigation is. Events then
//	follow as they happen, each carrying its own "type" field, until
//	the session finishes or the client disconnects. A session that is
//	already finished gets the snapshot and a normal close.
//
// Path Parameters:
//
//	id: Session ID or request ID (required)
//
// Response:
//
//	101 Switching Protocols on success
//	404 Not Found: Unknown session
//	500 Internal Server Error: Archive read failure
//
// Thread Safety: This method is safe for concurrent use.
func (h *Handlers) HandleSessionStream(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleSessionStream")

	sessionID := c.Param("id")
	view, err := h.svc.GetSession(c.Request.Context(), sessionID)
	if err != nil {
		if errors.Is(err, agent.ErrSessionNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{
				Error: err.Error(),
				Code:  "SESSION_NOT_FOUND",
			})
			return
		}

		logger.Error("Get session failed", "session_id", sessionID, "error", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: err.Error(),
			Code:  "GET_SESSION_FAILED",
		})
		return
	}

	// Subscribe before the snapshot: anything that happens from here on
	// is either in the refreshed snapshot or buffered on the channel.
	events, cancel := h.svc.Bus().Subscribe(view.ID)
	defer cancel()

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Error("Failed to upgrade the websocket", "error", err)
		return
	}
	defer ws.Close()
	logger.Info("Stream client connected", "session_id", view.ID)

	if fresh, err := h.svc.GetSession(c.Request.Context(), sessionID); err == nil {
		view = fresh
	}
	if err := sendJSON(ws, gin.H{"type": "snapshot", "session": view}); err != nil {
		return
	}

	if view.Source != "live" || agent.AgentState(view.Status).IsTerminal() {
		// Finished: nothing further will arrive.
		return
	}

	// Reader goroutine: its only job is noticing the client went away.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case event, ok := <-events:
			if !ok {
				// Bus closed: the service is shutting down.
				return
			}
			if err := sendJSON(ws, event); err != nil {
				return
			}
			if event.Type == agent.EventSessionFinished {
				logger.Info("Stream finished", "session_id", view.ID)
				return
			}
		case <-done:
			logger.Info("Stream client disconnected", "session_id", view.ID)
			return
		}
	}
}
