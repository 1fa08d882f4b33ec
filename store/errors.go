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
	"fmt"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
)

// ErrNotFound is returned when a point read, replace, or delete targets a
// document that does not exist in the caller's partition. Callers match it
// with errors.Is.
var ErrNotFound = errors.New("item not found")

// StoreError wraps a failed document store operation with the upstream
// status code when one is available.
type StoreError struct {
	Operation  string
	StatusCode int
	Message    string
	Err        error
}

func (e *StoreError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("store: %s failed with status %d: %s", e.Operation, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("store: %s failed: %s", e.Operation, e.Message)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// IsNotFound reports whether err represents a missing document.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// classify converts an SDK error into the package's error vocabulary.
// A 404 from the service becomes ErrNotFound so callers can branch on it
// without knowing the backing SDK.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) {
		if respErr.StatusCode == 404 {
			return fmt.Errorf("store: %s: %w", op, ErrNotFound)
		}
		return &StoreError{
			Operation:  op,
			StatusCode: respErr.StatusCode,
			Message:    respErr.ErrorCode,
			Err:        err,
		}
	}
	return &StoreError{Operation: op, Message: err.Error(), Err: err}
}
