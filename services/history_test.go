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
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianAnswers/datatypes"
	"github.com/AleutianAI/AleutianAnswers/store"
)

// =============================================================================
// Test Setup
// =============================================================================

// fakeContainer implements Container over an in-memory partition map.
// It enforces partition scoping the same way the real store does: an id
// that exists in another partition reads as not found.
type fakeContainer struct {
	// partitions maps pk -> ordered document ids.
	order      map[string][]string
	docs       map[string]map[string][]byte
	failWith   error
	lastQuery  string
	lastParams []store.QueryParam
}

func newFakeContainer() *fakeContainer {
	return &fakeContainer{
		order: make(map[string][]string),
		docs:  make(map[string]map[string][]byte),
	}
}

func (f *fakeContainer) CreateItem(_ context.Context, pk string, item any) ([]byte, error) {
	if f.failWith != nil {
		return nil, f.failWith
	}
	body, err := json.Marshal(item)
	if err != nil {
		return nil, err
	}
	var probe struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &probe); err != nil {
		return nil, err
	}
	if f.docs[pk] == nil {
		f.docs[pk] = make(map[string][]byte)
	}
	f.docs[pk][probe.ID] = body
	f.order[pk] = append(f.order[pk], probe.ID)
	return body, nil
}

func (f *fakeContainer) ReadItem(_ context.Context, pk, id string) ([]byte, error) {
	if f.failWith != nil {
		return nil, f.failWith
	}
	doc, ok := f.docs[pk][id]
	if !ok {
		return nil, fmt.Errorf("read item: %w", store.ErrNotFound)
	}
	return doc, nil
}

func (f *fakeContainer) ReplaceItem(_ context.Context, pk, id string, item any) ([]byte, error) {
	if f.failWith != nil {
		return nil, f.failWith
	}
	if _, ok := f.docs[pk][id]; !ok {
		return nil, fmt.Errorf("replace item: %w", store.ErrNotFound)
	}
	body, err := json.Marshal(item)
	if err != nil {
		return nil, err
	}
	f.docs[pk][id] = body
	return body, nil
}

func (f *fakeContainer) DeleteItem(_ context.Context, pk, id string) error {
	if f.failWith != nil {
		return f.failWith
	}
	if _, ok := f.docs[pk][id]; !ok {
		return fmt.Errorf("delete item: %w", store.ErrNotFound)
	}
	delete(f.docs[pk], id)
	kept := f.order[pk][:0]
	for _, existing := range f.order[pk] {
		if existing != id {
			kept = append(kept, existing)
		}
	}
	f.order[pk] = kept
	return nil
}

func (f *fakeContainer) QueryItems(_ context.Context, pk, query string, params []store.QueryParam) ([][]byte, error) {
	if f.failWith != nil {
		return nil, f.failWith
	}
	f.lastQuery = query
	f.lastParams = params

	ids := f.order[pk]
	var out [][]byte
	newestFirst := strings.Contains(query, "ORDER BY")
	for i := range ids {
		id := ids[i]
		if newestFirst {
			id = ids[len(ids)-1-i]
		}
		doc := f.docs[pk][id]
		if strings.Contains(query, "SELECT c.id, c.prompt") {
			var item datatypes.HistoryItem
			if err := json.Unmarshal(doc, &item); err != nil {
				return nil, err
			}
			proj, _ := json.Marshal(datatypes.RecentPromptSummary{ID: item.ID, Prompt: item.Prompt})
			out = append(out, proj)
			continue
		}
		out = append(out, doc)
	}
	return out, nil
}

var testChunks = []datatypes.GroundingChunk{
	{RetrievedContext: datatypes.RetrievedContext{URI: "http://docs/a", Title: "A", Text: "excerpt"}},
}

// =============================================================================
// CreateTurn Tests
// =============================================================================

func TestCreateTurn_AssignsIDAndTimestamp(t *testing.T) {
	svc := NewHistoryService(newFakeContainer())

	item, err := svc.CreateTurn(context.Background(), "user-a", "why is the sky blue", "<b>because</b>", testChunks)
	require.NoError(t, err)

	assert.NotEmpty(t, item.ID)
	assert.NotEmpty(t, item.Timestamp)
	assert.Equal(t, "user-a", item.UserID)
	assert.Equal(t, "why is the sky blue", item.Prompt)
	assert.Equal(t, testChunks, item.GroundingChunks)
}

func TestCreateTurn_NilChunksStoredAsEmpty(t *testing.T) {
	svc := NewHistoryService(newFakeContainer())

	item, err := svc.CreateTurn(context.Background(), "user-a", "p", "r", nil)
	require.NoError(t, err)
	assert.NotNil(t, item.GroundingChunks)
	assert.Empty(t, item.GroundingChunks)
}

func TestCreateTurn_PropagatesStoreError(t *testing.T) {
	fake := newFakeContainer()
	fake.failWith = &store.StoreError{Operation: "create item", StatusCode: 503, Message: "unavailable"}
	svc := NewHistoryService(fake)

	_, err := svc.CreateTurn(context.Background(), "user-a", "p", "r", nil)
	require.Error(t, err)
	var se *store.StoreError
	assert.True(t, errors.As(err, &se))
}

// =============================================================================
// ListSummaries Tests
// =============================================================================

func TestListSummaries_BindsUserParameter(t *testing.T) {
	fake := newFakeContainer()
	svc := NewHistoryService(fake)

	_, err := svc.ListSummaries(context.Background(), "user-a")
	require.NoError(t, err)

	assert.Contains(t, fake.lastQuery, "@userId")
	assert.NotContains(t, fake.lastQuery, "user-a")
	require.Len(t, fake.lastParams, 1)
	assert.Equal(t, "@userId", fake.lastParams[0].Name)
	assert.Equal(t, "user-a", fake.lastParams[0].Value)
}

func TestListSummaries_NewestFirst(t *testing.T) {
	fake := newFakeContainer()
	svc := NewHistoryService(fake)

	first, err := svc.CreateTurn(context.Background(), "user-a", "first prompt", "r1", nil)
	require.NoError(t, err)
	second, err := svc.CreateTurn(context.Background(), "user-a", "second prompt", "r2", nil)
	require.NoError(t, err)

	summaries, err := svc.ListSummaries(context.Background(), "user-a")
	require.NoError(t, err)
	require.Len(t, summaries, 2)
	assert.Equal(t, second.ID, summaries[0].ID)
	assert.Equal(t, first.ID, summaries[1].ID)
	assert.Equal(t, "second prompt", summaries[0].Prompt)
}

func TestListSummaries_EmptyHistory(t *testing.T) {
	svc := NewHistoryService(newFakeContainer())

	summaries, err := svc.ListSummaries(context.Background(), "user-a")
	require.NoError(t, err)
	assert.NotNil(t, summaries)
	assert.Empty(t, summaries)
}

// =============================================================================
// GetItem / DeleteItem Tests
// =============================================================================

func TestGetItem_RoundTrip(t *testing.T) {
	svc := NewHistoryService(newFakeContainer())

	created, err := svc.CreateTurn(context.Background(), "user-a", "p", "r", testChunks)
	require.NoError(t, err)

	got, err := svc.GetItem(context.Background(), "user-a", created.ID)
	require.NoError(t, err)
	assert.Equal(t, created, got)
}

func TestGetItem_OtherUsersItemIsNotFound(t *testing.T) {
	svc := NewHistoryService(newFakeContainer())

	created, err := svc.CreateTurn(context.Background(), "user-a", "p", "r", nil)
	require.NoError(t, err)

	_, err = svc.GetItem(context.Background(), "user-b", created.ID)
	assert.True(t, store.IsNotFound(err))
}

func TestDeleteItem_SecondDeleteIsNotFound(t *testing.T) {
	svc := NewHistoryService(newFakeContainer())

	created, err := svc.CreateTurn(context.Background(), "user-a", "p", "r", nil)
	require.NoError(t, err)

	require.NoError(t, svc.DeleteItem(context.Background(), "user-a", created.ID))
	err = svc.DeleteItem(context.Background(), "user-a", created.ID)
	assert.True(t, store.IsNotFound(err))
}

// =============================================================================
// Legacy Surface Tests
// =============================================================================

func TestCreateFromSearchResult_CallerIdentityWins(t *testing.T) {
	svc := NewHistoryService(newFakeContainer())

	out, err := svc.CreateFromSearchResult(context.Background(), "user-a", datatypes.SearchResult{
		PartitionKey: "spoofed",
		UserID:       "spoofed",
		UserInput:    "question",
		SearchResult: "answer",
	})
	require.NoError(t, err)

	assert.Equal(t, "user-a", out.UserID)
	assert.Equal(t, "user-a", out.PartitionKey)
	assert.Equal(t, "question", out.UserInput)
	assert.Equal(t, "answer", out.SearchResult)
	assert.NotEmpty(t, out.ID)
	assert.NotNil(t, out.GroundingChunks)
}

func TestGetSearchResult_MapsFields(t *testing.T) {
	svc := NewHistoryService(newFakeContainer())

	created, err := svc.CreateTurn(context.Background(), "user-a", "question", "answer", testChunks)
	require.NoError(t, err)

	out, err := svc.GetSearchResult(context.Background(), "user-a", created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, out.ID)
	assert.Equal(t, "question", out.UserInput)
	assert.Equal(t, "answer", out.SearchResult)
	assert.Equal(t, testChunks, out.GroundingChunks)
}

func TestListSearchResults_OnlyCallersItems(t *testing.T) {
	svc := NewHistoryService(newFakeContainer())

	_, err := svc.CreateTurn(context.Background(), "user-a", "mine", "r", nil)
	require.NoError(t, err)
	_, err = svc.CreateTurn(context.Background(), "user-b", "theirs", "r", nil)
	require.NoError(t, err)

	results, err := svc.ListSearchResults(context.Background(), "user-a")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "mine", results[0].UserInput)
}

func TestReplaceFromSearchResult_KeepsIDAndOwner(t *testing.T) {
	svc := NewHistoryService(newFakeContainer())

	created, err := svc.CreateTurn(context.Background(), "user-a", "old", "old answer", nil)
	require.NoError(t, err)

	out, err := svc.ReplaceFromSearchResult(context.Background(), "user-a", created.ID, datatypes.SearchResult{
		ID:           "ignored",
		UserID:       "ignored",
		UserInput:    "new",
		SearchResult: "new answer",
	})
	require.NoError(t, err)
	assert.Equal(t, created.ID, out.ID)
	assert.Equal(t, "user-a", out.UserID)

	got, err := svc.GetItem(context.Background(), "user-a", created.ID)
	require.NoError(t, err)
	assert.Equal(t, "new", got.Prompt)
	assert.Equal(t, "new answer", got.Result)
}

func TestReplaceFromSearchResult_MissingItem(t *testing.T) {
	svc := NewHistoryService(newFakeContainer())

	_, err := svc.ReplaceFromSearchResult(context.Background(), "user-a", "nope", datatypes.SearchResult{
		UserInput:    "new",
		SearchResult: "new answer",
	})
	assert.True(t, store.IsNotFound(err))
}
