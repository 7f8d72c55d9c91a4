// Package extract implements the per-source extraction pipelines. Each
// pipeline walks its source's page shape (listing, detail, and sub-resource
// pages for HTML; self-contained pages for the API mirror), assembles
// profile records across fetch round-trips, and emits them once complete.
package extract

import (
	"context"

	"github.com/prodexio/prodex/internal/profile"
)

// EmitFunc receives each completed record. Returning an error stops the
// pipeline; persistence failures are the caller's to count.
type EmitFunc func(profile.Profile) error

// Pipeline is the contract workers drive. A pipeline instance is owned by
// exactly one worker and is not safe for concurrent use.
type Pipeline interface {
	// Run walks the source until the quota is exhausted or no data remains.
	Run(ctx context.Context, emit EmitFunc) error
	// Extracted reports how many items were followed.
	Extracted() int
	// Total reports the source-declared listing total, or 0 when the source
	// never reported one. It is recorded from the first page that declares
	// it and never overwritten.
	Total() int
	// Errors reports page-level upstream failures (not per-field misses,
	// which degrade silently).
	Errors() int
}
