// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package store

import (
	"errors"
	"testing"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Error Classification Tests
// =============================================================================

func TestClassify_Nil(t *testing.T) {
	assert.NoError(t, classify("read item", nil))
}

func TestClassify_404BecomesNotFound(t *testing.T) {
	err := classify("read item", &azcore.ResponseError{StatusCode: 404, ErrorCode: "NotFound"})
	assert.True(t, IsNotFound(err))
}

func TestClassify_OtherStatusBecomesStoreError(t *testing.T) {
	err := classify("create item", &azcore.ResponseError{StatusCode: 429, ErrorCode: "TooManyRequests"})

	var se *StoreError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, 429, se.StatusCode)
	assert.Equal(t, "create item", se.Operation)
	assert.False(t, IsNotFound(err))
}

func TestClassify_TransportError(t *testing.T) {
	cause := errors.New("connection refused")
	err := classify("query items", cause)

	var se *StoreError
	require.True(t, errors.As(err, &se))
	assert.Zero(t, se.StatusCode)
	assert.ErrorIs(t, err, cause)
}

func TestIsConflict(t *testing.T) {
	assert.True(t, isConflict(&azcore.ResponseError{StatusCode: 409}))
	assert.False(t, isConflict(&azcore.ResponseError{StatusCode: 404}))
	assert.False(t, isConflict(errors.New("boom")))
}

// =============================================================================
// Configuration Tests
// =============================================================================

func TestConfigFromEnv_Defaults(t *testing.T) {
	t.Setenv("COSMOSDB_ENDPOINT", "https://acct.documents.example.com:443/")
	t.Setenv("COSMOSDB_KEY", "c2VjcmV0")
	t.Setenv("COSMOSDB_DATABASE_ID", "")
	t.Setenv("COSMOSDB_CONTAINER_ID", "")

	cfg, err := ConfigFromEnv()
	require.NoError(t, err)
	assert.Equal(t, "chat", cfg.Database)
	assert.Equal(t, "history", cfg.Container)
}

func TestConfigFromEnv_Explicit(t *testing.T) {
	t.Setenv("COSMOSDB_ENDPOINT", "https://acct.documents.example.com:443/")
	t.Setenv("COSMOSDB_KEY", "c2VjcmV0")
	t.Setenv("COSMOSDB_DATABASE_ID", "mydb")
	t.Setenv("COSMOSDB_CONTAINER_ID", "mycontainer")

	cfg, err := ConfigFromEnv()
	require.NoError(t, err)
	assert.Equal(t, "mydb", cfg.Database)
	assert.Equal(t, "mycontainer", cfg.Container)
}

func TestConfigFromEnv_MissingEndpoint(t *testing.T) {
	t.Setenv("COSMOSDB_ENDPOINT", "")
	t.Setenv("COSMOSDB_KEY", "c2VjcmV0")

	_, err := ConfigFromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "COSMOSDB_ENDPOINT")
}

func TestConfigFromEnv_MissingKey(t *testing.T) {
	t.Setenv("COSMOSDB_ENDPOINT", "https://acct.documents.example.com:443/")
	t.Setenv("COSMOSDB_KEY", "")

	_, err := ConfigFromEnv()
	assert.Error(t, err)
}
