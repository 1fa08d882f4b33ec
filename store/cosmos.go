// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package store wraps the Azure Cosmos DB SDK behind a small document store
// client. Every operation is partition scoped: the partition key is the
// hashed user identity, so a caller can only ever touch its own documents.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/data/azcosmos"
)

// partitionKeyPath is the document field every container is partitioned on.
const partitionKeyPath = "/userId"

// ===== Configuration =====

// Config holds the connection settings for the document store.
type Config struct {
	Endpoint  string
	Key       string
	Database  string
	Container string
}

// ConfigFromEnv reads the store configuration from the environment.
//
// # Description
//
//	COSMOSDB_ENDPOINT and COSMOSDB_KEY are required; the service refuses to
//	start without them rather than failing on the first request.
//	COSMOSDB_DATABASE_ID and COSMOSDB_CONTAINER_ID default to "chat" and
//	"history".
//
// # Outputs
//
//	Config - the populated configuration.
//	error  - when a required variable is missing.
func ConfigFromEnv() (Config, error) {
	cfg := Config{
		Endpoint:  os.Getenv("COSMOSDB_ENDPOINT"),
		Key:       os.Getenv("COSMOSDB_KEY"),
		Database:  os.Getenv("COSMOSDB_DATABASE_ID"),
		Container: os.Getenv("COSMOSDB_CONTAINER_ID"),
	}
	if cfg.Endpoint == "" || cfg.Key == "" {
		return Config{}, errors.New("Azure Cosmos DB is not configured. Set the COSMOSDB_ENDPOINT and COSMOSDB_KEY environment variables")
	}
	if cfg.Database == "" {
		slog.Warn("COSMOSDB_DATABASE_ID not set, using default", "default", "chat")
		cfg.Database = "chat"
	}
	if cfg.Container == "" {
		slog.Warn("COSMOSDB_CONTAINER_ID not set, using default", "default", "history")
		cfg.Container = "history"
	}
	return cfg, nil
}

// ===== Client =====

// Client is a document store client bound to one Cosmos DB account.
type Client struct {
	inner *azcosmos.Client
}

// NewClient creates a document store client from the given configuration.
func NewClient(cfg Config) (*Client, error) {
	cred, err := azcosmos.NewKeyCredential(cfg.Key)
	if err != nil {
		return nil, fmt.Errorf("store: invalid credential: %w", err)
	}
	inner, err := azcosmos.NewClientWithKey(cfg.Endpoint, cred, nil)
	if err != nil {
		return nil, fmt.Errorf("store: creating client: %w", err)
	}
	return &Client{inner: inner}, nil
}

// EnsureContainer creates the database and container when they do not exist
// yet and returns a handle to the container. Creation is idempotent: a 409
// from the service means another instance got there first.
func (c *Client) EnsureContainer(ctx context.Context, database, container string) (*Handle, error) {
	_, err := c.inner.CreateDatabase(ctx, azcosmos.DatabaseProperties{ID: database}, nil)
	if err != nil && !isConflict(err) {
		return nil, classify("create database", err)
	}
	db, err := c.inner.NewDatabase(database)
	if err != nil {
		return nil, classify("open database", err)
	}
	props := azcosmos.ContainerProperties{
		ID: container,
		PartitionKeyDefinition: azcosmos.PartitionKeyDefinition{
			Paths: []string{partitionKeyPath},
		},
	}
	_, err = db.CreateContainer(ctx, props, nil)
	if err != nil && !isConflict(err) {
		return nil, classify("create container", err)
	}
	cc, err := db.NewContainer(container)
	if err != nil {
		return nil, classify("open container", err)
	}
	slog.Info("document store ready", "database", database, "container", container)
	return &Handle{container: cc}, nil
}

func isConflict(err error) bool {
	var respErr *azcore.ResponseError
	return errors.As(err, &respErr) && respErr.StatusCode == 409
}

// ===== Container Handle =====

// QueryParam is a bound query parameter. Queries never interpolate caller
// input into the query text.
type QueryParam struct {
	Name  string
	Value any
}

// Handle exposes partition scoped document operations on one container.
type Handle struct {
	container *azcosmos.ContainerClient
}

// CreateItem stores item in the pk partition and returns the raw document
// as the service persisted it.
func (h *Handle) CreateItem(ctx context.Context, pk string, item any) ([]byte, error) {
	body, err := json.Marshal(item)
	if err != nil {
		return nil, &StoreError{Operation: "create item", Message: err.Error(), Err: err}
	}
	opts := &azcosmos.ItemOptions{EnableContentResponseOnWrite: true}
	resp, err := h.container.CreateItem(ctx, azcosmos.NewPartitionKeyString(pk), body, opts)
	if err != nil {
		return nil, classify("create item", err)
	}
	return resp.Value, nil
}

// ReadItem fetches a single document by id from the pk partition.
// A document owned by another user is indistinguishable from a missing
// one: both return ErrNotFound.
func (h *Handle) ReadItem(ctx context.Context, pk, id string) ([]byte, error) {
	resp, err := h.container.ReadItem(ctx, azcosmos.NewPartitionKeyString(pk), id, nil)
	if err != nil {
		return nil, classify("read item", err)
	}
	return resp.Value, nil
}

// ReplaceItem overwrites the document with the given id in the pk partition.
func (h *Handle) ReplaceItem(ctx context.Context, pk, id string, item any) ([]byte, error) {
	body, err := json.Marshal(item)
	if err != nil {
		return nil, &StoreError{Operation: "replace item", Message: err.Error(), Err: err}
	}
	opts := &azcosmos.ItemOptions{EnableContentResponseOnWrite: true}
	resp, err := h.container.ReplaceItem(ctx, azcosmos.NewPartitionKeyString(pk), id, body, opts)
	if err != nil {
		return nil, classify("replace item", err)
	}
	return resp.Value, nil
}

// DeleteItem removes the document with the given id from the pk partition.
func (h *Handle) DeleteItem(ctx context.Context, pk, id string) error {
	_, err := h.container.DeleteItem(ctx, azcosmos.NewPartitionKeyString(pk), id, nil)
	return classify("delete item", err)
}

// QueryItems runs a parameterized query against the pk partition and
// returns every matching document as raw JSON, draining all result pages.
func (h *Handle) QueryItems(ctx context.Context, pk, query string, params []QueryParam) ([][]byte, error) {
	opts := &azcosmos.QueryOptions{}
	for _, p := range params {
		opts.QueryParameters = append(opts.QueryParameters, azcosmos.QueryParameter{Name: p.Name, Value: p.Value})
	}
	pager := h.container.NewQueryItemsPager(query, azcosmos.NewPartitionKeyString(pk), opts)
	var items [][]byte
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, classify("query items", err)
		}
		items = append(items, page.Items...)
	}
	return items, nil
}
