// Package faults defines the error taxonomy shared by the client sync path
// and the server ingest/processing path.
//
// Sentinels classify how an error should be handled: validation errors are
// surfaced immediately and never retried, transient errors are retried by the
// natural drain loop or an explicit user action, and permanent errors mark an
// asset failed until someone asks for a retry.
package faults

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrValidation marks requests missing required fields. Never retried.
	ErrValidation = errors.New("validation error")
	// ErrTransient marks network or storage unavailability worth retrying.
	ErrTransient = errors.New("transient io error")
	// ErrPermanent marks unrecoverable input reported by a processing worker.
	ErrPermanent = errors.New("permanent processing error")
	// ErrNotFound marks lookups for records that do not exist.
	ErrNotFound = errors.New("not found")
	// ErrNotFailed rejects a retry request for an asset that is not failed.
	ErrNotFailed = errors.New("asset is not failed")
)

// Wrap builds an error message that includes component context while tagging
// it with the provided marker for later classification. The marker should be
// one of the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
