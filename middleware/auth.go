// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package middleware provides HTTP middleware for the answer service.
//
// # Authentication Flow
//
// The auth middleware extracts a bearer token from the Authorization header,
// resolves it to an Identity using the configured SessionProvider, and stores
// the Identity in the Gin context for downstream handlers.
//
//	Request
//	   │
//	   ▼
//	AuthMiddleware
//	   │
//	   ├─► Extract token from "Authorization: Bearer <token>"
//	   │
//	   ├─► provider.Validate(ctx, token)
//	   │
//	   └─► Store Identity in context
//	           │
//	           ▼
//	       Handler (retrieves via GetIdentity)
//
// Handlers never see the raw email. Every storage and state operation keys
// on Identity.HashedID, the hex SHA-256 digest of the email.
package middleware

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// =============================================================================
// Identity
// =============================================================================

// ErrUnauthorized indicates the session token is missing, expired, or
// otherwise not resolvable to a user.
var ErrUnauthorized = errors.New("unauthorized")

// Identity is the authenticated caller.
type Identity struct {
	Name    string
	Email   string
	Picture string

	// HashedID is the hex SHA-256 digest of Email. It is the only user
	// identifier that leaves this package.
	HashedID string
}

// HashValue returns the lowercase hex SHA-256 digest of v.
func HashValue(v string) string {
	sum := sha256.Sum256([]byte(v))
	return hex.EncodeToString(sum[:])
}

// SessionProvider resolves a bearer token to an authenticated identity.
type SessionProvider interface {
	// Validate returns the identity behind the token, or ErrUnauthorized
	// when the token does not correspond to a live session.
	Validate(ctx context.Context, token string) (*Identity, error)
}

// =============================================================================
// Providers
// =============================================================================

// OIDCProvider validates sessions against an OpenID Connect userinfo
// endpoint. Any token the endpoint accepts yields an identity; a 401 or 403
// from the endpoint maps to ErrUnauthorized.
type OIDCProvider struct {
	UserinfoURL string
	HTTPClient  *http.Client
}

// NewOIDCProvider creates a provider for the given userinfo endpoint.
func NewOIDCProvider(userinfoURL string) *OIDCProvider {
	return &OIDCProvider{
		UserinfoURL: userinfoURL,
		HTTPClient:  http.DefaultClient,
	}
}

type userinfoResponse struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Picture string `json:"picture"`
}

// Validate resolves the token via the userinfo endpoint.
func (p *OIDCProvider) Validate(ctx context.Context, token string) (*Identity, error) {
	if token == "" {
		return nil, ErrUnauthorized
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.UserinfoURL, nil)
	if err != nil {
		return nil, fmt.Errorf("middleware: building userinfo request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := p.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("middleware: userinfo request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, ErrUnauthorized
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("middleware: userinfo endpoint returned status %d", resp.StatusCode)
	}

	var info userinfoResponse
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("middleware: decoding userinfo response: %w", err)
	}
	// An identity without an email cannot be keyed in storage.
	if info.Email == "" {
		return nil, ErrUnauthorized
	}
	return &Identity{
		Name:     info.Name,
		Email:    info.Email,
		Picture:  info.Picture,
		HashedID: HashValue(info.Email),
	}, nil
}

// LocalProvider authenticates every request as a fixed local user. It exists
// for development and tests; never enable it in a deployed environment.
type LocalProvider struct {
	Email string
}

// Validate returns the fixed local identity regardless of token.
func (p *LocalProvider) Validate(_ context.Context, _ string) (*Identity, error) {
	email := p.Email
	if email == "" {
		email = "local-user@localhost"
	}
	return &Identity{
		Name:     "Local User",
		Email:    email,
		HashedID: HashValue(email),
	}, nil
}

// =============================================================================
// Context Helpers
// =============================================================================

// identityKey is the context key for storing the Identity.
// Using a dedicated key prevents collisions with other context values.
const identityKey = "answers_identity"

// SetIdentity stores the authenticated identity in the Gin context.
// Called by AuthMiddleware after successful authentication.
func SetIdentity(c *gin.Context, id *Identity) {
	c.Set(identityKey, id)
}

// GetIdentity retrieves the authenticated identity from the Gin context.
// Returns nil if the request did not pass AuthMiddleware.
func GetIdentity(c *gin.Context) *Identity {
	if v, exists := c.Get(identityKey); exists {
		if id, ok := v.(*Identity); ok {
			return id
		}
	}
	return nil
}

// =============================================================================
// Auth Middleware
// =============================================================================

// AuthMiddleware creates a Gin middleware that authenticates requests.
//
// # Description
//
// Extracts the bearer token from the Authorization header, resolves it with
// the provided SessionProvider, and stores the resulting Identity in the
// context for downstream handlers. Requests that fail resolution are aborted
// with 401 before any handler runs.
//
// # Inputs
//
//   - provider: SessionProvider to resolve tokens. Must not be nil.
//
// # Outputs
//
//   - gin.HandlerFunc: Middleware function ready for use with Gin
//
// # Thread Safety
//
// Thread-safe. The returned middleware can be used concurrently.
func AuthMiddleware(provider SessionProvider) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractBearerToken(c)

		id, err := provider.Validate(c.Request.Context(), token)
		if err != nil {
			if errors.Is(err, ErrUnauthorized) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
					"error": "unauthorized",
				})
				return
			}
			// Provider failures, network issues, etc.
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "authentication failed",
			})
			return
		}

		SetIdentity(c, id)
		c.Next()
	}
}

// =============================================================================
// Helper Functions
// =============================================================================

// extractBearerToken extracts the token from the Authorization header.
// Returns empty string if the header is missing or malformed. The "Bearer"
// prefix is case-insensitive per RFC 7235.
func extractBearerToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return ""
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}

	return strings.TrimSpace(parts[1])
}
