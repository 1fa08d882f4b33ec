// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/AleutianAI/AleutianAnswers/handlers"
	"github.com/AleutianAI/AleutianAnswers/middleware"
	"github.com/AleutianAI/AleutianAnswers/services"
)

func SetupRoutes(router *gin.Engine, provider middleware.SessionProvider,
	history *services.HistoryService, chat *services.ChatService, uiDir string) {

	router.GET("/health", handlers.HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.StaticFS("/ui", http.Dir(uiDir))

	// Everything below requires a resolved identity.
	authed := router.Group("/")
	authed.Use(middleware.AuthMiddleware(provider))
	{
		authed.POST("/chat", handlers.HandleChat(chat))
		authed.GET("/chat/state", handlers.GetChatState(chat))
		// Older clients submit prompts here.
		authed.POST("/search", handlers.HandleChat(chat))

		authed.POST("/history", handlers.CreateHistory(history))
		authed.GET("/history", handlers.GetHistory(history))
		authed.PUT("/history", handlers.ReplaceHistory(history))
		authed.DELETE("/history", handlers.DeleteHistory(history, chat))

		// Legacy surface over the same documents.
		authed.GET("/search-results", handlers.ListSearchResults(history))
		authed.POST("/search-results", handlers.CreateSearchResult(history))
		authed.DELETE("/search-results", handlers.DeleteSearchResult(history, chat))
	}
}
