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
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/AleutianAnswers/datatypes"
	"github.com/AleutianAI/AleutianAnswers/middleware"
	"github.com/AleutianAI/AleutianAnswers/services"
	"github.com/AleutianAI/AleutianAnswers/store"
)

// The /search-results handlers serve older clients. They operate on the
// same documents as /history under an alternate wire shape, and they are
// scoped to the authenticated caller like everything else.

// ListSearchResults handles GET /search-results. Without a query parameter
// it returns every turn of the caller; with ?id= it returns one.
func ListSearchResults(h *services.HistoryService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := middleware.GetIdentity(c)

		itemID := c.Query("id")
		if itemID == "" {
			results, err := h.ListSearchResults(c.Request.Context(), id.HashedID)
			if err != nil {
				slog.Error("failed to list search results", "error", err)
				c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch results"})
				return
			}
			c.JSON(http.StatusOK, results)
			return
		}

		result, err := h.GetSearchResult(c.Request.Context(), id.HashedID, itemID)
		if err != nil {
			if store.IsNotFound(err) {
				c.JSON(http.StatusNotFound, gin.H{"error": "item not found"})
				return
			}
			slog.Error("failed to fetch search result", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch the item"})
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

// CreateSearchResult handles POST /search-results.
func CreateSearchResult(h *services.HistoryService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := middleware.GetIdentity(c)

		var sr datatypes.SearchResult
		if err := c.ShouldBindJSON(&sr); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid data format"})
			return
		}
		if sr.UserInput == "" || sr.SearchResult == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid data format"})
			return
		}

		out, err := h.CreateFromSearchResult(c.Request.Context(), id.HashedID, sr)
		if err != nil {
			slog.Error("failed to store search result", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store the item"})
			return
		}
		c.JSON(http.StatusCreated, out)
	}
}

// DeleteSearchResult handles DELETE /search-results?id=.
func DeleteSearchResult(h *services.HistoryService, chat *services.ChatService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := middleware.GetIdentity(c)

		itemID := c.Query("id")
		if itemID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "item ID is required"})
			return
		}

		if err := h.DeleteSearchResult(c.Request.Context(), id.HashedID, itemID); err != nil {
			if store.IsNotFound(err) {
				c.JSON(http.StatusNotFound, gin.H{"message": "item not found in the database"})
				return
			}
			slog.Error("failed to delete search result", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete the item"})
			return
		}

		chat.Forget(id.HashedID, itemID)
		c.JSON(http.StatusOK, gin.H{"message": "item deleted successfully"})
	}
}
