// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/AleutianAnswers/datatypes"
	"github.com/AleutianAI/AleutianAnswers/middleware"
	"github.com/AleutianAI/AleutianAnswers/services"
)

// HandleChat handles POST /chat: one full conversation turn. A turn already
// in flight for the caller yields 409; an upstream failure yields 502 with
// the same message the UI shows inline. A turn that answered but failed to
// persist still returns 200, with persisted=false in the body.
func HandleChat(chat *services.ChatService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := middleware.GetIdentity(c)

		var req datatypes.AskRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid data format"})
			return
		}
		if err := req.Validate(); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "prompt is required"})
			return
		}

		result, err := chat.Ask(c.Request.Context(), id.HashedID, req.Prompt)
		if err != nil {
			if errors.Is(err, services.ErrTurnInProgress) {
				c.JSON(http.StatusConflict, gin.H{"error": "a turn is already in progress"})
				return
			}
			slog.Error("chat turn failed", "error", err)
			c.JSON(http.StatusBadGateway, gin.H{"error": services.ErrorResultMessage})
			return
		}

		c.JSON(http.StatusOK, result)
	}
}

// GetChatState handles GET /chat/state: the caller's presentation state,
// hydrating the sidebar from storage on first contact.
func GetChatState(chat *services.ChatService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := middleware.GetIdentity(c)

		if err := chat.EnsureLoaded(c.Request.Context(), id.HashedID); err != nil {
			slog.Error("failed to load chat state", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load state"})
			return
		}

		c.JSON(http.StatusOK, chat.State(id.HashedID))
	}
}
