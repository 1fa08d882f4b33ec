// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package handlers contains the Gin HTTP handlers for the answer service.
// Handlers bind and validate requests, resolve the caller's identity, and
// delegate to the services package.
package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/AleutianAnswers/datatypes"
	"github.com/AleutianAI/AleutianAnswers/middleware"
	"github.com/AleutianAI/AleutianAnswers/services"
	"github.com/AleutianAI/AleutianAnswers/store"
)

// CreateHistory handles POST /history. The body is a StoreHistoryRequest;
// citations are normalized before storage.
func CreateHistory(h *services.HistoryService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := middleware.GetIdentity(c)

		var req datatypes.StoreHistoryRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid data format"})
			return
		}
		if err := req.Validate(); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid data format"})
			return
		}

		chunks := datatypes.NormalizeChunks(*req.GroundingChunks)
		item, err := h.CreateTurn(c.Request.Context(), id.HashedID, req.PromptText(), req.ResultText(), chunks)
		if err != nil {
			slog.Error("failed to store history item", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "failed to store the item"})
			return
		}

		c.JSON(http.StatusCreated, gin.H{"success": true, "data": item})
	}
}

// GetHistory handles GET /history. Without a query parameter it lists the
// caller's prompt summaries; with ?itemId= it returns one full turn.
func GetHistory(h *services.HistoryService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := middleware.GetIdentity(c)

		itemID := c.Query("itemId")
		if itemID == "" {
			summaries, err := h.ListSummaries(c.Request.Context(), id.HashedID)
			if err != nil {
				slog.Error("failed to list history", "error", err)
				c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch history"})
				return
			}
			c.JSON(http.StatusOK, summaries)
			return
		}

		item, err := h.GetItem(c.Request.Context(), id.HashedID, itemID)
		if err != nil {
			if store.IsNotFound(err) {
				c.JSON(http.StatusNotFound, gin.H{"error": "item not found"})
				return
			}
			slog.Error("failed to fetch history item", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch the item"})
			return
		}
		c.JSON(http.StatusOK, item)
	}
}

// DeleteHistory handles DELETE /history?itemId=. On success the chat
// service drops the entry from the caller's sidebar as well.
func DeleteHistory(h *services.HistoryService, chat *services.ChatService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := middleware.GetIdentity(c)

		itemID := c.Query("itemId")
		if itemID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "item ID is required"})
			return
		}

		if err := h.DeleteItem(c.Request.Context(), id.HashedID, itemID); err != nil {
			if store.IsNotFound(err) {
				c.JSON(http.StatusNotFound, gin.H{"message": "item not found in the database"})
				return
			}
			slog.Error("failed to delete history item", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete the item"})
			return
		}

		chat.Forget(id.HashedID, itemID)
		c.JSON(http.StatusOK, gin.H{"message": "item deleted successfully"})
	}
}

// ReplaceHistory handles PUT /history?id=. The body uses the legacy
// SearchResult shape; the stored document keeps the caller as owner and
// gets a fresh timestamp.
func ReplaceHistory(h *services.HistoryService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := middleware.GetIdentity(c)

		itemID := c.Query("id")
		if itemID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "item ID is required"})
			return
		}

		var sr datatypes.SearchResult
		if err := c.ShouldBindJSON(&sr); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid data format"})
			return
		}

		out, err := h.ReplaceFromSearchResult(c.Request.Context(), id.HashedID, itemID, sr)
		if err != nil {
			if store.IsNotFound(err) {
				c.JSON(http.StatusNotFound, gin.H{"error": "item not found"})
				return
			}
			slog.Error("failed to replace history item", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update the item"})
			return
		}
		c.JSON(http.StatusOK, out)
	}
}
