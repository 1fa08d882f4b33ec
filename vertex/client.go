// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package vertex implements the generative search client.
//
// # Description
//
// The client calls the Vertex AI generateContent API with retrieval
// grounding: every request pins the model to a Vertex AI Search datastore so
// answers come with citations into the indexed corpus. The streaming REST
// endpoint returns a JSON array of partial responses; the client aggregates
// them into a single Answer before returning.
//
// # Thread Safety
//
// Client is safe for concurrent use. The underlying http.Client handles
// token refresh internally.
package vertex

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/AleutianAI/AleutianAnswers/datatypes"
)

var tracer = otel.Tracer("github.com/AleutianAI/AleutianAnswers/vertex")

// askTimeout bounds a single generative search call.
const askTimeout = 60 * time.Second

// ===== Configuration =====

// Config holds the generative search settings.
type Config struct {
	ProjectID       string
	Location        string
	Model           string
	Datastore       string
	CredentialsFile string

	// Endpoint overrides the regional API base URL. Used in tests.
	Endpoint string
}

// ConfigFromEnv reads the generative search configuration from the
// environment. GOOGLE_PROJECT_ID and DATASTORE_ID are required; the service
// refuses to start without them rather than failing on the first prompt.
func ConfigFromEnv() (Config, error) {
	cfg := Config{
		ProjectID:       os.Getenv("GOOGLE_PROJECT_ID"),
		Location:        os.Getenv("VERTEX_LOCATION"),
		Model:           os.Getenv("VERTEX_MODEL"),
		Datastore:       os.Getenv("DATASTORE_ID"),
		CredentialsFile: os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"),
		Endpoint:        os.Getenv("VERTEX_ENDPOINT"),
	}
	if cfg.ProjectID == "" {
		return Config{}, errors.New("generative search is not configured. Set the GOOGLE_PROJECT_ID environment variable")
	}
	if cfg.Datastore == "" {
		return Config{}, errors.New("generative search is not configured. Set the DATASTORE_ID environment variable")
	}
	if cfg.Location == "" {
		slog.Warn("VERTEX_LOCATION not set, using default", "default", "europe-west8")
		cfg.Location = "europe-west8"
	}
	if cfg.Model == "" {
		slog.Warn("VERTEX_MODEL not set, using default", "default", "gemini-1.5-pro")
		cfg.Model = "gemini-1.5-pro"
	}
	return cfg, nil
}

// datastorePath returns the fully qualified resource name of the search
// datastore the model is grounded on.
func (c Config) datastorePath() string {
	return fmt.Sprintf("projects/%s/locations/global/collections/default_collection/dataStores/%s",
		c.ProjectID, c.Datastore)
}

func (c Config) baseURL() string {
	if c.Endpoint != "" {
		return c.Endpoint
	}
	return fmt.Sprintf("https://%s-aiplatform.googleapis.com", c.Location)
}

// ===== Errors =====

// UpstreamError wraps a failed generative search call.
type UpstreamError struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *UpstreamError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("vertex: request failed with status %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("vertex: request failed: %s", e.Message)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// IsUpstreamError reports whether err originated in the generative search
// upstream.
func IsUpstreamError(err error) bool {
	var ue *UpstreamError
	return errors.As(err, &ue)
}

// ===== Client =====

// Client calls the generative search API.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

// NewClient creates a generative search client.
//
// # Description
//
//	Builds an authenticated HTTP client from the service account key file
//	named in cfg.CredentialsFile, falling back to Application Default
//	Credentials when no file is configured. Token refresh is handled by the
//	oauth2 transport.
//
// # Inputs
//
//	ctx - context for the credential lookup.
//	cfg - validated configuration, typically from ConfigFromEnv.
//
// # Outputs
//
//	*Client - the ready client.
//	error   - when credentials cannot be resolved.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	var creds *google.Credentials
	var err error
	if cfg.CredentialsFile != "" {
		var data []byte
		data, err = os.ReadFile(cfg.CredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("vertex: reading credentials file: %w", err)
		}
		creds, err = google.CredentialsFromJSON(ctx, data, "https://www.googleapis.com/auth/cloud-platform")
	} else {
		creds, err = google.FindDefaultCredentials(ctx, "https://www.googleapis.com/auth/cloud-platform")
	}
	if err != nil {
		return nil, fmt.Errorf("vertex: resolving credentials: %w", err)
	}
	return newClient(cfg, oauth2.NewClient(ctx, creds.TokenSource)), nil
}

// newClient wires an explicit HTTP client. Tests use it to point the client
// at a local server without credentials.
func newClient(cfg Config, httpClient *http.Client) *Client {
	return &Client{cfg: cfg, httpClient: httpClient}
}

// ===== Wire Types =====

type generateRequest struct {
	Contents         []content        `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
	SafetySettings   []safetySetting  `json:"safetySettings"`
	Tools            []tool           `json:"tools"`
}

type content struct {
	Role  string `json:"role"`
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generationConfig struct {
	MaxOutputTokens int     `json:"maxOutputTokens"`
	Temperature     float64 `json:"temperature"`
	TopP            float64 `json:"topP"`
}

type safetySetting struct {
	Category  string `json:"category"`
	Threshold string `json:"threshold"`
}

type tool struct {
	Retrieval retrieval `json:"retrieval"`
}

type retrieval struct {
	VertexAISearch vertexAISearch `json:"vertexAiSearch"`
}

type vertexAISearch struct {
	Datastore string `json:"datastore"`
}

type generateResponse struct {
	Candidates []candidate `json:"candidates"`
}

type candidate struct {
	Content           content            `json:"content"`
	GroundingMetadata *groundingMetadata `json:"groundingMetadata"`
}

type groundingMetadata struct {
	GroundingChunks []datatypes.IncomingChunk `json:"groundingChunks"`
}

var safetySettings = []safetySetting{
	{Category: "HARM_CATEGORY_HATE_SPEECH", Threshold: "BLOCK_NONE"},
	{Category: "HARM_CATEGORY_DANGEROUS_CONTENT", Threshold: "BLOCK_NONE"},
	{Category: "HARM_CATEGORY_SEXUALLY_EXPLICIT", Threshold: "BLOCK_NONE"},
	{Category: "HARM_CATEGORY_HARASSMENT", Threshold: "BLOCK_NONE"},
}

// ===== Operations =====

// Ask submits a prompt to the grounded model and returns the aggregated
// answer.
//
// # Description
//
//	Sends the prompt to streamGenerateContent and drains the response array.
//	Text parts from the first candidate of every element are concatenated in
//	order; the grounding chunks of the last element that carries any are
//	normalized into the canonical citation shape. The call is bounded by a
//	60 second timeout regardless of the caller's context.
//
// # Inputs
//
//	ctx    - request context; cancellation aborts the call.
//	prompt - the user's prompt text.
//
// # Outputs
//
//	*datatypes.Answer - aggregated text plus normalized citations.
//	error             - an *UpstreamError on transport or API failure.
func (c *Client) Ask(ctx context.Context, prompt string) (*datatypes.Answer, error) {
	ctx, span := tracer.Start(ctx, "vertex.Ask")
	defer span.End()
	span.SetAttributes(attribute.Int("prompt.length", len(prompt)))

	ctx, cancel := context.WithTimeout(ctx, askTimeout)
	defer cancel()

	reqBody := generateRequest{
		Contents: []content{{
			Role:  "user",
			Parts: []part{{Text: prompt}},
		}},
		GenerationConfig: generationConfig{
			MaxOutputTokens: 8192,
			Temperature:     1,
			TopP:            0.95,
		},
		SafetySettings: safetySettings,
		Tools: []tool{{
			Retrieval: retrieval{
				VertexAISearch: vertexAISearch{Datastore: c.cfg.datastorePath()},
			},
		}},
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "marshal request")
		return nil, &UpstreamError{Message: err.Error(), Err: err}
	}

	url := fmt.Sprintf("%s/v1/projects/%s/locations/%s/publishers/google/models/%s:streamGenerateContent",
		c.cfg.baseURL(), c.cfg.ProjectID, c.cfg.Location, c.cfg.Model)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "build request")
		return nil, &UpstreamError{Message: err.Error(), Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		slog.Error("generative search call failed", "error", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "upstream unreachable")
		return nil, &UpstreamError{Message: err.Error(), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		slog.Error("generative search returned non-200",
			"status", resp.StatusCode,
			"body", string(body))
		err := &UpstreamError{StatusCode: resp.StatusCode, Message: string(body)}
		span.RecordError(err)
		span.SetStatus(codes.Error, "upstream error")
		return nil, err
	}

	var chunks []generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&chunks); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "decode response")
		return nil, &UpstreamError{Message: "malformed upstream response: " + err.Error(), Err: err}
	}

	answer := aggregate(chunks)
	span.SetAttributes(
		attribute.Int("answer.length", len(answer.Text)),
		attribute.Int("answer.citations", len(answer.GroundingChunks)),
	)
	return answer, nil
}

// aggregate folds the partial responses into one answer. The last element
// carrying grounding metadata wins; earlier partials repeat a prefix of the
// same citation set.
func aggregate(chunks []generateResponse) *datatypes.Answer {
	var text strings.Builder
	var raw []datatypes.IncomingChunk
	for _, chunk := range chunks {
		if len(chunk.Candidates) == 0 {
			continue
		}
		cand := chunk.Candidates[0]
		for _, p := range cand.Content.Parts {
			text.WriteString(p.Text)
		}
		if cand.GroundingMetadata != nil && len(cand.GroundingMetadata.GroundingChunks) > 0 {
			raw = cand.GroundingMetadata.GroundingChunks
		}
	}
	return &datatypes.Answer{
		Text:            text.String(),
		GroundingChunks: datatypes.NormalizeChunks(raw),
	}
}
