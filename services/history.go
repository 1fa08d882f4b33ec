// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package services contains the business logic of the answer service:
// conversation turn orchestration, history persistence, and answer
// formatting. Handlers stay thin and delegate here.
package services

import (
	"context"
	"encoding/json"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"

	"github.com/AleutianAI/AleutianAnswers/datatypes"
	"github.com/AleutianAI/AleutianAnswers/observability"
	"github.com/AleutianAI/AleutianAnswers/store"
)

var tracer = otel.Tracer("github.com/AleutianAI/AleutianAnswers/services")

// summaryQuery projects just the fields the sidebar needs, newest first.
// The user id is always bound, never interpolated.
const summaryQuery = "SELECT c.id, c.prompt FROM c WHERE c.userId = @userId ORDER BY c.timestamp DESC"

// fullQuery returns complete documents for the legacy listing surface.
const fullQuery = "SELECT * FROM c WHERE c.userId = @userId"

// Container is the slice of the document store the history service needs.
// *store.Handle satisfies it.
type Container interface {
	CreateItem(ctx context.Context, pk string, item any) ([]byte, error)
	ReadItem(ctx context.Context, pk, id string) ([]byte, error)
	ReplaceItem(ctx context.Context, pk, id string, item any) ([]byte, error)
	DeleteItem(ctx context.Context, pk, id string) error
	QueryItems(ctx context.Context, pk, query string, params []store.QueryParam) ([][]byte, error)
}

// HistoryService persists and retrieves conversation turns. Every operation
// takes the caller's hashed user id and scopes the store access to that
// partition, so one user can never observe another user's documents.
type HistoryService struct {
	container Container
}

// NewHistoryService creates a history service over the given container.
func NewHistoryService(container Container) *HistoryService {
	return &HistoryService{container: container}
}

// CreateTurn stores one conversation turn and returns the persisted item
// with its generated id and timestamp.
//
// # Inputs
//
//	ctx    - request context.
//	userID - the caller's hashed identity.
//	prompt - the prompt text.
//	result - the formatted answer text.
//	chunks - normalized citations; nil is stored as an empty array.
//
// # Outputs
//
//	*datatypes.HistoryItem - the stored item.
//	error                  - a *store.StoreError on persistence failure.
func (s *HistoryService) CreateTurn(ctx context.Context, userID, prompt, result string, chunks []datatypes.GroundingChunk) (*datatypes.HistoryItem, error) {
	ctx, span := tracer.Start(ctx, "history.CreateTurn")
	defer span.End()

	item := datatypes.NewHistoryItem(userID, prompt, result, chunks)
	_, err := s.container.CreateItem(ctx, userID, item)
	observability.DefaultMetrics.RecordStoreOp("create", err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "create failed")
		return nil, err
	}
	return &item, nil
}

// ListSummaries returns the caller's history as sidebar summaries, newest
// first. A user with no history gets an empty, non-nil slice.
func (s *HistoryService) ListSummaries(ctx context.Context, userID string) ([]datatypes.RecentPromptSummary, error) {
	ctx, span := tracer.Start(ctx, "history.ListSummaries")
	defer span.End()

	params := []store.QueryParam{{Name: "@userId", Value: userID}}
	raw, err := s.container.QueryItems(ctx, userID, summaryQuery, params)
	observability.DefaultMetrics.RecordStoreOp("query", err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "query failed")
		return nil, err
	}

	summaries := make([]datatypes.RecentPromptSummary, 0, len(raw))
	for _, doc := range raw {
		var sum datatypes.RecentPromptSummary
		if err := json.Unmarshal(doc, &sum); err != nil {
			return nil, fmt.Errorf("services: decoding summary: %w", err)
		}
		summaries = append(summaries, sum)
	}
	return summaries, nil
}

// GetItem fetches one turn by id. A document owned by another user is
// reported as missing, not forbidden.
func (s *HistoryService) GetItem(ctx context.Context, userID, itemID string) (*datatypes.HistoryItem, error) {
	ctx, span := tracer.Start(ctx, "history.GetItem")
	defer span.End()

	raw, err := s.container.ReadItem(ctx, userID, itemID)
	observability.DefaultMetrics.RecordStoreOp("read", err)
	if err != nil {
		if !store.IsNotFound(err) {
			span.RecordError(err)
			span.SetStatus(codes.Error, "read failed")
		}
		return nil, err
	}
	var item datatypes.HistoryItem
	if err := json.Unmarshal(raw, &item); err != nil {
		return nil, fmt.Errorf("services: decoding item: %w", err)
	}
	return &item, nil
}

// DeleteItem removes one turn from the caller's history.
func (s *HistoryService) DeleteItem(ctx context.Context, userID, itemID string) error {
	ctx, span := tracer.Start(ctx, "history.DeleteItem")
	defer span.End()

	err := s.container.DeleteItem(ctx, userID, itemID)
	observability.DefaultMetrics.RecordStoreOp("delete", err)
	if err != nil && !store.IsNotFound(err) {
		span.RecordError(err)
		span.SetStatus(codes.Error, "delete failed")
	}
	return err
}

// ===== Legacy Surface =====
//
// The /search-results surface predates /history. It reads and writes the
// same documents under an alternate wire shape; the translation lives here
// so handlers and the store never see two schemas.

// CreateFromSearchResult stores a turn submitted in the legacy shape.
// The caller's identity always wins over whatever ids the payload carries.
func (s *HistoryService) CreateFromSearchResult(ctx context.Context, userID string, sr datatypes.SearchResult) (*datatypes.SearchResult, error) {
	item, err := s.CreateTurn(ctx, userID, sr.UserInput, sr.SearchResult, sr.GroundingChunks)
	if err != nil {
		return nil, err
	}
	out := toSearchResult(*item)
	return &out, nil
}

// GetSearchResult fetches one turn in the legacy shape.
func (s *HistoryService) GetSearchResult(ctx context.Context, userID, itemID string) (*datatypes.SearchResult, error) {
	item, err := s.GetItem(ctx, userID, itemID)
	if err != nil {
		return nil, err
	}
	out := toSearchResult(*item)
	return &out, nil
}

// ListSearchResults returns every turn of the caller in the legacy shape.
func (s *HistoryService) ListSearchResults(ctx context.Context, userID string) ([]datatypes.SearchResult, error) {
	ctx, span := tracer.Start(ctx, "history.ListSearchResults")
	defer span.End()

	params := []store.QueryParam{{Name: "@userId", Value: userID}}
	raw, err := s.container.QueryItems(ctx, userID, fullQuery, params)
	observability.DefaultMetrics.RecordStoreOp("query", err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "query failed")
		return nil, err
	}

	results := make([]datatypes.SearchResult, 0, len(raw))
	for _, doc := range raw {
		var item datatypes.HistoryItem
		if err := json.Unmarshal(doc, &item); err != nil {
			return nil, fmt.Errorf("services: decoding item: %w", err)
		}
		results = append(results, toSearchResult(item))
	}
	return results, nil
}

// ReplaceFromSearchResult overwrites an existing turn with a legacy-shaped
// payload. The stored document gets a fresh timestamp; id and owner come
// from the call, never from the payload.
func (s *HistoryService) ReplaceFromSearchResult(ctx context.Context, userID, itemID string, sr datatypes.SearchResult) (*datatypes.SearchResult, error) {
	ctx, span := tracer.Start(ctx, "history.ReplaceFromSearchResult")
	defer span.End()

	item := datatypes.NewHistoryItem(userID, sr.UserInput, sr.SearchResult, sr.GroundingChunks)
	item.ID = itemID
	_, err := s.container.ReplaceItem(ctx, userID, itemID, item)
	observability.DefaultMetrics.RecordStoreOp("replace", err)
	if err != nil {
		if !store.IsNotFound(err) {
			span.RecordError(err)
			span.SetStatus(codes.Error, "replace failed")
		}
		return nil, err
	}
	out := toSearchResult(item)
	return &out, nil
}

// DeleteSearchResult removes one turn addressed through the legacy surface.
func (s *HistoryService) DeleteSearchResult(ctx context.Context, userID, itemID string) error {
	return s.DeleteItem(ctx, userID, itemID)
}

func toSearchResult(item datatypes.HistoryItem) datatypes.SearchResult {
	chunks := item.GroundingChunks
	if chunks == nil {
		chunks = []datatypes.GroundingChunk{}
	}
	return datatypes.SearchResult{
		PartitionKey:    item.UserID,
		ID:              item.ID,
		UserID:          item.UserID,
		UserInput:       item.Prompt,
		SearchResult:    item.Result,
		GroundingChunks: chunks,
	}
}
