// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package datatypes provides data structures for the answer service.
//
// This file contains the grounding citation types. The generative model API
// has shipped citations under two different shapes over time; everything past
// the ingestion boundary works with the canonical GroundingChunk only.
package datatypes

// RetrievedContext is the canonical citation payload: the source locator,
// a display title, and the supporting excerpt.
type RetrievedContext struct {
	URI   string `json:"uri"`
	Title string `json:"title"`
	Text  string `json:"text"`
}

// GroundingChunk is the canonical citation shape stored with every history
// item and returned to the UI.
type GroundingChunk struct {
	RetrievedContext RetrievedContext `json:"retrievedContext"`
}

// IncomingContext mirrors RetrievedContext on the wire; fields may be absent.
type IncomingContext struct {
	URI   string `json:"uri,omitempty"`
	Title string `json:"title,omitempty"`
	Text  string `json:"text,omitempty"`
}

// IncomingMetadata is the older citation variant that carries the source
// locator under metadata.source.
type IncomingMetadata struct {
	Source string `json:"source,omitempty"`
}

// IncomingChunk is the union of citation shapes the model API produces.
// It must not escape the ingestion boundary: callers normalize immediately
// via NormalizeChunk or NormalizeChunks.
type IncomingChunk struct {
	RetrievedContext *IncomingContext  `json:"retrievedContext,omitempty"`
	Metadata         *IncomingMetadata `json:"metadata,omitempty"`
	Content          string            `json:"content,omitempty"`
}

// NormalizeChunk collapses an incoming citation variant into the canonical
// shape. The mapping is total: a missing field resolves to the alternate
// spelling when present, and to the empty string otherwise. It never
// produces a nil or partially populated result.
func NormalizeChunk(in IncomingChunk) GroundingChunk {
	var out GroundingChunk
	if in.RetrievedContext != nil {
		out.RetrievedContext.URI = in.RetrievedContext.URI
		out.RetrievedContext.Title = in.RetrievedContext.Title
		out.RetrievedContext.Text = in.RetrievedContext.Text
	}
	if out.RetrievedContext.URI == "" && in.Metadata != nil {
		out.RetrievedContext.URI = in.Metadata.Source
	}
	if out.RetrievedContext.Text == "" {
		out.RetrievedContext.Text = in.Content
	}
	return out
}

// NormalizeChunks normalizes a sequence of incoming citations, preserving
// order. A nil input yields an empty, non-nil slice so the result always
// serializes as a JSON array.
func NormalizeChunks(in []IncomingChunk) []GroundingChunk {
	out := make([]GroundingChunk, 0, len(in))
	for _, c := range in {
		out = append(out, NormalizeChunk(c))
	}
	return out
}
