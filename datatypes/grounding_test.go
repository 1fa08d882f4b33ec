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
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeChunk_ModernShape(t *testing.T) {
	got := NormalizeChunk(IncomingChunk{
		RetrievedContext: &IncomingContext{URI: "http://docs/a", Title: "A", Text: "excerpt"},
	})
	assert.Equal(t, GroundingChunk{RetrievedContext: RetrievedContext{
		URI: "http://docs/a", Title: "A", Text: "excerpt",
	}}, got)
}

// TestNormalizeChunk_LegacyShape verifies the older variant, where the
// locator lives under metadata.source and the excerpt under content.
func TestNormalizeChunk_LegacyShape(t *testing.T) {
	got := NormalizeChunk(IncomingChunk{
		Metadata: &IncomingMetadata{Source: "http://x"},
		Content:  "excerpt",
	})
	assert.Equal(t, GroundingChunk{RetrievedContext: RetrievedContext{
		URI: "http://x", Title: "", Text: "excerpt",
	}}, got)
}

func TestNormalizeChunk_ModernURIWinsOverMetadata(t *testing.T) {
	got := NormalizeChunk(IncomingChunk{
		RetrievedContext: &IncomingContext{URI: "http://new"},
		Metadata:         &IncomingMetadata{Source: "http://old"},
	})
	assert.Equal(t, "http://new", got.RetrievedContext.URI)
}

func TestNormalizeChunk_ContentFillsMissingText(t *testing.T) {
	got := NormalizeChunk(IncomingChunk{
		RetrievedContext: &IncomingContext{URI: "http://docs/a"},
		Content:          "fallback excerpt",
	})
	assert.Equal(t, "fallback excerpt", got.RetrievedContext.Text)
}

// TestNormalizeChunk_Empty verifies the mapping is total: an empty variant
// still yields a fully populated canonical chunk.
func TestNormalizeChunk_Empty(t *testing.T) {
	got := NormalizeChunk(IncomingChunk{})
	assert.Equal(t, GroundingChunk{}, got)

	body, err := json.Marshal(got)
	require.NoError(t, err)
	assert.JSONEq(t, `{"retrievedContext":{"uri":"","title":"","text":""}}`, string(body))
}

func TestNormalizeChunks_NilYieldsEmptySlice(t *testing.T) {
	got := NormalizeChunks(nil)
	require.NotNil(t, got)
	assert.Empty(t, got)
}

func TestNormalizeChunks_PreservesOrder(t *testing.T) {
	got := NormalizeChunks([]IncomingChunk{
		{RetrievedContext: &IncomingContext{URI: "http://1"}},
		{RetrievedContext: &IncomingContext{URI: "http://2"}},
	})
	require.Len(t, got, 2)
	assert.Equal(t, "http://1", got[0].RetrievedContext.URI)
	assert.Equal(t, "http://2", got[1].RetrievedContext.URI)
}
