package synthetic

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/vincemic/ai-fhir-pit/internal/platform/fhir"
)

// DefaultBatchSize is the entry limit per uploaded bundle.
const DefaultBatchSize = 20

// BundlePoster sends a batch or transaction bundle to the FHIR server.
// *fhirclient.Client satisfies it.
type BundlePoster interface {
	Batch(ctx context.Context, bundle *fhir.Bundle) (*fhir.Bundle, error)
}

// ProgressFunc receives completion percentages from 0 to 100.
type ProgressFunc func(percent int)

// Result summarizes a generate-and-upload run.
type Result struct {
	Success        bool            `json:"success"`
	GeneratedCount int             `json:"generatedCount"`
	Resources      []fhir.Document `json:"resources"`
	Errors         []string        `json:"errors,omitempty"`
	GenerationTime int64           `json:"generationTime"`
}

// Uploader posts generated groups as transaction bundles.
type Uploader struct {
	poster    BundlePoster
	batchSize int
	logger    zerolog.Logger
	now       func() time.Time
}

func NewUploader(poster BundlePoster, batchSize int, logger zerolog.Logger) *Uploader {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Uploader{
		poster:    poster,
		batchSize: batchSize,
		logger:    logger.With().Str("component", "synthetic").Logger(),
		now:       time.Now,
	}
}

// Run generates the requested data and uploads it. Generation accounts for
// the first half of the reported progress. A generation failure is reported
// in the result rather than returned.
func (u *Uploader) Run(ctx context.Context, gen *Generator, req Request, progress ProgressFunc) *Result {
	start := u.now()
	report(progress, 0)

	groups, err := gen.Generate(req)
	if err != nil {
		return &Result{
			Resources:      []fhir.Document{},
			Errors:         []string{err.Error()},
			GenerationTime: u.now().Sub(start).Milliseconds(),
		}
	}
	report(progress, 50)

	result := u.upload(ctx, groups, func(done, total int) {
		report(progress, 50+done*50/total)
	})
	result.GenerationTime = u.now().Sub(start).Milliseconds()
	report(progress, 100)
	return result
}

// Upload posts groups in bundles of at most the batch size. A group larger
// than the batch size is sent alone. Failed batches are recorded and the
// remaining batches are still attempted.
func (u *Uploader) Upload(ctx context.Context, groups []Group, progress ProgressFunc) *Result {
	start := u.now()
	result := u.upload(ctx, groups, func(done, total int) {
		report(progress, done*100/total)
	})
	result.GenerationTime = u.now().Sub(start).Milliseconds()
	return result
}

func (u *Uploader) upload(ctx context.Context, groups []Group, step func(done, total int)) *Result {
	result := &Result{Resources: []fhir.Document{}}
	batches := Batches(groups, u.batchSize)

	total := 0
	for _, b := range batches {
		total += len(b)
	}

	done := 0
	for i, batch := range batches {
		if err := ctx.Err(); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("Batch %d failed: %v", i+1, err))
			continue
		}
		if err := u.send(ctx, batch); err != nil {
			u.logger.Warn().Err(err).Int("batch", i+1).Int("entries", len(batch)).Msg("synthetic batch upload failed")
			result.Errors = append(result.Errors, fmt.Sprintf("Batch %d failed: %v", i+1, err))
		} else {
			for _, e := range batch {
				result.Resources = append(result.Resources, e.Resource)
			}
			result.GeneratedCount += len(batch)
		}
		done += len(batch)
		step(done, total)
	}

	result.Success = len(result.Errors) == 0
	u.logger.Info().
		Int("batches", len(batches)).
		Int("uploaded", result.GeneratedCount).
		Int("failed_batches", len(result.Errors)).
		Msg("synthetic upload finished")
	return result
}

func (u *Uploader) send(ctx context.Context, entries []Entry) error {
	bundle := fhir.NewTransactionBundle(u.now())
	for _, e := range entries {
		if err := bundle.AddCreate(e.FullURL, e.Resource); err != nil {
			return err
		}
	}
	_, err := u.poster.Batch(ctx, bundle)
	return err
}

// Batches packs groups into batches of at most size entries without
// splitting a group.
func Batches(groups []Group, size int) [][]Entry {
	if size <= 0 {
		size = DefaultBatchSize
	}
	var (
		batches [][]Entry
		current []Entry
	)
	for _, g := range groups {
		entries := g.Entries()
		if len(current) > 0 && len(current)+len(entries) > size {
			batches = append(batches, current)
			current = nil
		}
		current = append(current, entries...)
	}
	if len(current) > 0 {
		batches = append(batches, current)
	}
	return batches
}

func report(progress ProgressFunc, percent int) {
	if progress != nil {
		progress(percent)
	}
}
