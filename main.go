// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"google.golang.org/grpc/credentials/insecure"

	// --- OpenTelemetry imports ---
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"google.golang.org/grpc"

	"github.com/AleutianAI/AleutianAnswers/middleware"
	"github.com/AleutianAI/AleutianAnswers/observability"
	"github.com/AleutianAI/AleutianAnswers/routes"
	"github.com/AleutianAI/AleutianAnswers/services"
	"github.com/AleutianAI/AleutianAnswers/store"
	"github.com/AleutianAI/AleutianAnswers/vertex"
)

func initTracer() (func(context.Context), error) {
	ctx := context.Background()

	otelEndpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	if otelEndpoint == "" {
		otelEndpoint = "answers-otel-collector:4317"
	}
	conn, err := grpc.NewClient(otelEndpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, err
	}
	traceExporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, err
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String("answer-service")))
	if err != nil {
		return nil, err
	}
	bsp := sdktrace.NewBatchSpanProcessor(traceExporter)
	traceProvider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(bsp))
	otel.SetTracerProvider(traceProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.
		TraceContext{}, propagation.Baggage{}))

	return func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, time.Second*5)
		defer cancel()
		if err := traceExporter.Shutdown(ctx); err != nil {
			slog.Error("failed to shutdown OTLP exporter", "error", err)
		}
	}, nil
}

// sessionProvider picks the identity backend from AUTH_MODE. The local
// provider exists for development only and logs loudly when enabled.
func sessionProvider() middleware.SessionProvider {
	switch os.Getenv("AUTH_MODE") {
	case "local":
		slog.Warn("AUTH_MODE=local, all requests authenticate as the local user")
		return &middleware.LocalProvider{Email: os.Getenv("LOCAL_USER_EMAIL")}
	default:
		userinfoURL := os.Getenv("SESSION_USERINFO_URL")
		if userinfoURL == "" {
			userinfoURL = "https://openidconnect.googleapis.com/v1/userinfo"
		}
		return middleware.NewOIDCProvider(userinfoURL)
	}
}

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Info("no .env file found, using process environment")
	}

	port := os.Getenv("ANSWER_SERVICE_PORT")
	if port == "" {
		port = "8080"
	}
	uiDir := os.Getenv("ANSWER_UI_DIR")
	if uiDir == "" {
		uiDir = "/app/ui"
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// --- Init the tracer ---
	cleanup, err := initTracer()
	if err != nil {
		log.Fatalf("failed to setup the OTLP tracer: %v", err)
	}
	defer cleanup(context.Background())

	observability.InitMetrics()

	// Misconfiguration surfaces here, not on the first request.
	storeCfg, err := store.ConfigFromEnv()
	if err != nil {
		log.Fatalf("FATAL: %v", err)
	}
	storeClient, err := store.NewClient(storeCfg)
	if err != nil {
		log.Fatalf("FATAL: Could not create the document store client: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	container, err := storeClient.EnsureContainer(ctx, storeCfg.Database, storeCfg.Container)
	cancel()
	if err != nil {
		log.Fatalf("FATAL: Could not prepare the document store: %v", err)
	}

	vertexCfg, err := vertex.ConfigFromEnv()
	if err != nil {
		log.Fatalf("FATAL: %v", err)
	}
	answerClient, err := vertex.NewClient(context.Background(), vertexCfg)
	if err != nil {
		log.Fatalf("FATAL: Could not create the generative search client: %v", err)
	}

	historyService := services.NewHistoryService(container)
	chatService := services.NewChatService(answerClient, historyService)

	router := gin.Default()
	router.Use(otelgin.Middleware("answer-service"))

	routes.SetupRoutes(router, sessionProvider(), historyService, chatService, uiDir)

	log.Println("Starting the answer server on port ", port)
	if err := router.Run(":" + port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
