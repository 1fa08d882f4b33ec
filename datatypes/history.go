// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datatypes

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

var validate *validator.Validate

func init() {
	validate = validator.New(validator.WithRequiredStructEnabled())
	validate.RegisterStructValidation(storeHistoryRequestValidation, StoreHistoryRequest{})
}

// ===== Stored Documents =====

// HistoryItem is the unit of persistence: one conversation turn owned by
// one user. Timestamp is RFC 3339 in UTC.
type HistoryItem struct {
	ID              string           `json:"id"`
	UserID          string           `json:"userId"`
	Prompt          string           `json:"prompt"`
	Result          string           `json:"result"`
	GroundingChunks []GroundingChunk `json:"groundingChunks"`
	Timestamp       string           `json:"timestamp"`
}

// NewHistoryItem builds a fully populated history item with a fresh
// identifier and the current UTC timestamp. A nil chunk slice is stored
// as an empty array.
func NewHistoryItem(userID, prompt, result string, chunks []GroundingChunk) HistoryItem {
	if chunks == nil {
		chunks = []GroundingChunk{}
	}
	return HistoryItem{
		ID:              uuid.New().String(),
		UserID:          userID,
		Prompt:          prompt,
		Result:          result,
		GroundingChunks: chunks,
		Timestamp:       time.Now().UTC().Format(time.RFC3339),
	}
}

// RecentPromptSummary is the projection returned by history listings:
// just enough to render a sidebar entry.
type RecentPromptSummary struct {
	ID     string `json:"id"`
	Prompt string `json:"prompt"`
}

// ===== Request Payloads =====

// StoreHistoryRequest is the body accepted by POST /history. Older clients
// spell the prompt field "input" and the result field "formattedResult";
// both spellings remain accepted, with the newer one winning when both are
// present. GroundingChunks is a pointer so "absent" and "empty" are
// distinguishable: absent is rejected, empty is stored as [].
type StoreHistoryRequest struct {
	Prompt          string           `json:"prompt"`
	Input           string           `json:"input"`
	Result          string           `json:"result"`
	FormattedResult string           `json:"formattedResult"`
	GroundingChunks *[]IncomingChunk `json:"groundingChunks"`
}

func storeHistoryRequestValidation(sl validator.StructLevel) {
	req := sl.Current().Interface().(StoreHistoryRequest)
	if req.PromptText() == "" {
		sl.ReportError(req.Prompt, "Prompt", "prompt", "required", "")
	}
	if req.ResultText() == "" {
		sl.ReportError(req.Result, "Result", "result", "required", "")
	}
	if req.GroundingChunks == nil {
		sl.ReportError(req.GroundingChunks, "GroundingChunks", "groundingChunks", "required", "")
	}
}

// PromptText returns the prompt under whichever spelling the client used.
func (r StoreHistoryRequest) PromptText() string {
	if r.Prompt != "" {
		return r.Prompt
	}
	return r.Input
}

// ResultText returns the result under whichever spelling the client used.
func (r StoreHistoryRequest) ResultText() string {
	if r.Result != "" {
		return r.Result
	}
	return r.FormattedResult
}

// Validate checks the request against its field constraints.
func (r StoreHistoryRequest) Validate() error {
	return validate.Struct(r)
}

// AskRequest is the body accepted by POST /chat.
type AskRequest struct {
	Prompt string `json:"prompt" validate:"required"`
}

// Validate checks the request against its field constraints.
func (r AskRequest) Validate() error {
	return validate.Struct(r)
}

// ===== Legacy Wire Shapes =====

// SearchResult is the wire shape used by the legacy /search-results
// surface. It is an alternate rendering of HistoryItem, not a separate
// stored record: the partition key and userId always carry the caller's
// hashed identity, and userInput/searchResult map to prompt/result.
type SearchResult struct {
	PartitionKey    string           `json:"partitionKey"`
	ID              string           `json:"id"`
	UserID          string           `json:"userId"`
	UserInput       string           `json:"userInput"`
	SearchResult    string           `json:"searchResult"`
	GroundingChunks []GroundingChunk `json:"groundingChunks"`
}

// ===== Model Responses =====

// Answer is the aggregated output of one generative search call.
type Answer struct {
	Text            string           `json:"text"`
	GroundingChunks []GroundingChunk `json:"groundingChunks"`
}
