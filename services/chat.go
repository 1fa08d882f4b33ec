// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package services

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/AleutianAI/AleutianAnswers/datatypes"
	"github.com/AleutianAI/AleutianAnswers/observability"
)

// ErrorResultMessage is shown in place of an answer when the generative
// search call fails. It is rendered inline where the answer would appear.
const ErrorResultMessage = "An error occurred while searching the content. Please try again."

// storeErrMessage is the short notice shown alongside a successful answer
// that could not be persisted.
const storeErrMessage = "failed to store the conversation turn"

// ErrTurnInProgress is returned by Ask when the caller already has a turn
// in flight. One turn per user at a time.
var ErrTurnInProgress = errors.New("a turn is already in progress")

// =============================================================================
// Dependencies
// =============================================================================

// AnswerClient produces a grounded answer for a prompt. *vertex.Client
// satisfies it.
type AnswerClient interface {
	Ask(ctx context.Context, prompt string) (*datatypes.Answer, error)
}

// HistoryWriter is the slice of the history service the chat service needs.
type HistoryWriter interface {
	CreateTurn(ctx context.Context, userID, prompt, result string, chunks []datatypes.GroundingChunk) (*datatypes.HistoryItem, error)
	ListSummaries(ctx context.Context, userID string) ([]datatypes.RecentPromptSummary, error)
}

// =============================================================================
// Turn State
// =============================================================================

// TurnState is the per-user view the UI renders: the in-flight or most
// recent turn plus the history sidebar. All fields describe presentation;
// the history service owns durable state.
type TurnState struct {
	// Busy is true while a turn is in flight for this user.
	Busy bool `json:"busy"`

	// ShowResult is true once the current turn has settled, successfully
	// or not.
	ShowResult bool `json:"showResult"`

	// RecentPrompt is the prompt of the current turn.
	RecentPrompt string `json:"recentPrompt"`

	// Result is the formatted answer, or ErrorResultMessage after a model
	// failure.
	Result string `json:"result"`

	// GroundingChunks are the citations of the current answer.
	GroundingChunks []datatypes.GroundingChunk `json:"groundingChunks"`

	// ErrMessage is a short notice about a non-fatal problem, such as a
	// failed persist. Empty when everything worked.
	ErrMessage string `json:"errMessage,omitempty"`

	// RecentPrompts is the history sidebar, newest first.
	RecentPrompts []datatypes.RecentPromptSummary `json:"recentPrompts"`

	// loaded records whether RecentPrompts was hydrated from storage.
	loaded bool
}

// TurnResult is the response body of a completed turn.
type TurnResult struct {
	ID              string                     `json:"id,omitempty"`
	Prompt          string                     `json:"prompt"`
	Result          string                     `json:"result"`
	GroundingChunks []datatypes.GroundingChunk `json:"groundingChunks"`
	Persisted       bool                       `json:"persisted"`
	ErrMessage      string                     `json:"error,omitempty"`
}

// =============================================================================
// Chat Service
// =============================================================================

// ChatService orchestrates conversation turns: it gates concurrent turns
// per user, calls the generative search client, formats the answer, persists
// the turn, and maintains the per-user presentation state.
//
// # Thread Safety
//
// All methods are safe for concurrent use. The per-user busy gate ensures
// at most one upstream call per user at a time; different users proceed
// independently.
type ChatService struct {
	answers AnswerClient
	history HistoryWriter

	mu     sync.Mutex
	states map[string]*TurnState
}

// NewChatService creates a chat service over the given dependencies.
func NewChatService(answers AnswerClient, history HistoryWriter) *ChatService {
	return &ChatService{
		answers: answers,
		history: history,
		states:  make(map[string]*TurnState),
	}
}

// state returns the caller's state, creating it on first use.
// Callers must hold mu.
func (s *ChatService) state(userID string) *TurnState {
	st, ok := s.states[userID]
	if !ok {
		st = &TurnState{
			GroundingChunks: []datatypes.GroundingChunk{},
			RecentPrompts:   []datatypes.RecentPromptSummary{},
		}
		s.states[userID] = st
	}
	return st
}

// Ask runs one conversation turn for the user.
//
// # Description
//
//	The turn proceeds submit -> model call -> format -> persist. A second
//	Ask for the same user while one is in flight returns ErrTurnInProgress
//	without touching the upstream. A model failure settles the state with
//	ErrorResultMessage in place of the answer and returns the error. A
//	persist failure does not discard the answer: the result stays visible,
//	ErrMessage carries a short notice, and the returned TurnResult has
//	Persisted false with a nil error.
//
// # Inputs
//
//	ctx    - request context.
//	userID - the caller's hashed identity.
//	prompt - the prompt text, already validated non-empty.
//
// # Outputs
//
//	*TurnResult - the settled turn, nil only when the model call failed.
//	error       - ErrTurnInProgress, or the upstream error.
func (s *ChatService) Ask(ctx context.Context, userID, prompt string) (*TurnResult, error) {
	ctx, span := tracer.Start(ctx, "chat.Ask")
	defer span.End()
	span.SetAttributes(attribute.Int("prompt.length", len(prompt)))

	s.mu.Lock()
	st := s.state(userID)
	if st.Busy {
		s.mu.Unlock()
		span.SetStatus(codes.Error, "turn in progress")
		return nil, ErrTurnInProgress
	}
	st.Busy = true
	st.ShowResult = false
	st.RecentPrompt = prompt
	st.Result = ""
	st.ErrMessage = ""
	st.GroundingChunks = []datatypes.GroundingChunk{}
	s.mu.Unlock()

	start := time.Now()
	answer, err := s.answers.Ask(ctx, prompt)
	observability.DefaultMetrics.ObserveUpstreamLatency(time.Since(start).Seconds())
	if err != nil {
		slog.Error("generative search failed", "user", userID, "error", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "model call failed")
		observability.DefaultMetrics.RecordTurn(observability.TurnModelError)

		s.mu.Lock()
		st.Busy = false
		st.ShowResult = true
		st.Result = ErrorResultMessage
		s.mu.Unlock()
		return nil, err
	}

	formatted := FormatAnswer(answer.Text)
	chunks := answer.GroundingChunks
	if chunks == nil {
		chunks = []datatypes.GroundingChunk{}
	}

	item, err := s.history.CreateTurn(ctx, userID, prompt, formatted, chunks)
	if err != nil {
		// The answer already cost an upstream call; losing the write must
		// not lose the answer.
		slog.Error("failed to persist turn", "user", userID, "error", err)
		span.RecordError(err)
		observability.DefaultMetrics.RecordTurn(observability.TurnStoreError)

		s.mu.Lock()
		st.Busy = false
		st.ShowResult = true
		st.Result = formatted
		st.GroundingChunks = chunks
		st.ErrMessage = storeErrMessage
		s.mu.Unlock()

		return &TurnResult{
			Prompt:          prompt,
			Result:          formatted,
			GroundingChunks: chunks,
			Persisted:       false,
			ErrMessage:      storeErrMessage,
		}, nil
	}

	observability.DefaultMetrics.RecordTurn(observability.TurnSuccess)

	s.mu.Lock()
	st.Busy = false
	st.ShowResult = true
	st.Result = formatted
	st.GroundingChunks = chunks
	st.RecentPrompts = append([]datatypes.RecentPromptSummary{
		{ID: item.ID, Prompt: item.Prompt},
	}, st.RecentPrompts...)
	s.mu.Unlock()

	return &TurnResult{
		ID:              item.ID,
		Prompt:          prompt,
		Result:          formatted,
		GroundingChunks: chunks,
		Persisted:       true,
	}, nil
}

// EnsureLoaded hydrates the user's sidebar from storage on first contact.
// Subsequent calls are no-ops; use Refresh to force a reload.
func (s *ChatService) EnsureLoaded(ctx context.Context, userID string) error {
	s.mu.Lock()
	loaded := s.state(userID).loaded
	s.mu.Unlock()
	if loaded {
		return nil
	}
	return s.Refresh(ctx, userID)
}

// Refresh reloads the user's sidebar from storage.
func (s *ChatService) Refresh(ctx context.Context, userID string) error {
	summaries, err := s.history.ListSummaries(ctx, userID)
	if err != nil {
		return err
	}
	s.mu.Lock()
	st := s.state(userID)
	st.RecentPrompts = summaries
	st.loaded = true
	s.mu.Unlock()
	return nil
}

// Forget drops a deleted item from the user's sidebar. Storage deletion is
// the history service's job; this only reconciles the in-memory view.
func (s *ChatService) Forget(userID, itemID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.state(userID)
	kept := st.RecentPrompts[:0]
	for _, p := range st.RecentPrompts {
		if p.ID != itemID {
			kept = append(kept, p)
		}
	}
	st.RecentPrompts = kept
}

// State returns a snapshot of the user's presentation state. The snapshot
// is detached: mutating it does not affect the service.
func (s *ChatService) State(userID string) TurnState {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.state(userID)

	snap := *st
	snap.GroundingChunks = make([]datatypes.GroundingChunk, len(st.GroundingChunks))
	copy(snap.GroundingChunks, st.GroundingChunks)
	snap.RecentPrompts = make([]datatypes.RecentPromptSummary, len(st.RecentPrompts))
	copy(snap.RecentPrompts, st.RecentPrompts)
	return snap
}
