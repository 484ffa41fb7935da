// Package dedupe resolves redundant recordings of the same transmission down
// to one canonical call record. Several towers hear the same traffic; each
// uploads its own recording, and every upload re-runs resolution, so the
// outcome must be identical regardless of arrival order.
package dedupe

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"git.mci.dev/mse/sre/phoenix/golang/relay/internal/call"
	"git.mci.dev/mse/sre/phoenix/golang/relay/internal/logging"
	prometheusRelay "git.mci.dev/mse/sre/phoenix/golang/relay/internal/prometheus"
	"git.mci.dev/mse/sre/phoenix/golang/relay/internal/runall"
	"go.uber.org/zap"
)

var ErrLoserDisposal = errors.New("failed to dispose superseded records")

// Store is the slice of the call repository the resolver needs.
type Store interface {
	WindowByStart(ctx context.Context, channel string, from, to float64) ([]call.CallRecord, error)
	Delete(ctx context.Context, record *call.CallRecord) error
	UpdateTranscript(ctx context.Context, record *call.CallRecord, transcript string) error
	ClaimPage(ctx context.Context, record *call.CallRecord) (bool, error)
	MarkPageSent(ctx context.Context, record *call.CallRecord) error
}

// BlobStore deletes the audio behind a superseded record.
type BlobStore interface {
	Remove(ctx context.Context, objectKey string) error
}

// RedirectWriter records superseded-key -> canonical-key mappings for
// in-flight transcription jobs.
type RedirectWriter interface {
	Put(ctx context.Context, oldKey, newKey string) error
}

// Outcome tells the caller what its freshly ingested record turned out to be.
// When Kept is false the current event's flow ends here; the canonical
// record's own ingest event already drove (or will drive) the pipeline.
type Outcome struct {
	Canonical         *call.CallRecord
	Kept              bool
	NeedTranscription bool
	NeedPage          bool
}

type Resolver struct {
	Store     Store
	Blobs     BlobStore
	Redirects RedirectWriter

	// SelectionBuffer bounds the candidate query on start_time (seconds);
	// TightBuffer pads the in-memory interval overlap check.
	SelectionBuffer float64
	TightBuffer     float64
}

func NewResolver(
	store Store,
	blobs BlobStore,
	redirects RedirectWriter,
	selectionBuffer, tightBuffer float64,
) *Resolver {
	return &Resolver{
		Store:           store,
		Blobs:           blobs,
		Redirects:       redirects,
		SelectionBuffer: selectionBuffer,
		TightBuffer:     tightBuffer,
	}
}

// Resolve runs duplicate resolution for a just-persisted record. On
// single-receiver channels there is nothing to resolve and the record is
// canonical by definition; page and transcription decisions still apply.
func (r *Resolver) Resolve(
	ctx context.Context,
	record *call.CallRecord,
	channel *call.Channel,
) (*Outcome, error) {
	canonical := record

	var losers []call.CallRecord

	if channel != nil && channel.MultiReceiver {
		duplicates, err := r.collectDuplicates(ctx, record)
		if err != nil {
			return nil, err
		}

		if len(duplicates) > 1 {
			sortForSelection(duplicates)
			canonical = &duplicates[len(duplicates)-1]
			losers = duplicates[:len(duplicates)-1]
		}
	}

	pagedAlready, inherited := surveyLosers(losers)

	err := r.disposeLosers(ctx, canonical, losers)
	if err != nil {
		return nil, err
	}

	if inherited != "" && canonical.TranscriptText() == "" {
		err = r.Store.UpdateTranscript(ctx, canonical, inherited)
		if err != nil {
			return nil, err
		}
	}

	if pagedAlready && !canonical.HasPageSent() {
		err = r.Store.MarkPageSent(ctx, canonical)
		if err != nil {
			return nil, err
		}
	}

	outcome := &Outcome{
		Canonical: canonical,
		Kept:      canonical.ObjectKey == record.ObjectKey,
	}

	if !outcome.Kept {
		logging.Logger.Info("record superseded by a better duplicate",
			zap.String("channel", record.Channel),
			zap.String("object_key", record.ObjectKey),
			zap.String("canonical_key", canonical.ObjectKey),
		)

		return outcome, nil
	}

	if channel.PageWanted(record) && !canonical.HasPageSent() {
		claimed, err := r.Store.ClaimPage(ctx, canonical)
		if err != nil {
			return nil, err
		}

		outcome.NeedPage = claimed
	}

	if channel.TranscriptWanted(record) && canonical.TranscriptText() == "" {
		outcome.NeedTranscription = true
	}

	return outcome, nil
}

func (r *Resolver) collectDuplicates(
	ctx context.Context,
	record *call.CallRecord,
) ([]call.CallRecord, error) {
	candidates, err := r.Store.WindowByStart(
		ctx,
		record.Channel,
		record.StartTime-r.SelectionBuffer,
		record.StartTime+r.SelectionBuffer,
	)
	if err != nil {
		return nil, err
	}

	duplicates := make([]call.CallRecord, 0, len(candidates))
	seen := false

	for _, candidate := range candidates {
		if candidate.ObjectKey == record.ObjectKey {
			seen = true
			duplicates = append(duplicates, *record)

			continue
		}

		if Overlaps(record, &candidate, r.TightBuffer) {
			duplicates = append(duplicates, candidate)
		}
	}

	// The window query can miss our own row under read-after-write lag.
	if !seen {
		duplicates = append(duplicates, *record)
	}

	return duplicates, nil
}

// Overlaps reports whether two recordings cover the same transmission: one
// starts inside the other's padded interval, ends inside it, or fully covers
// it.
func Overlaps(a, b *call.CallRecord, buffer float64) bool {
	low := a.StartTime - buffer
	high := a.EndTime + buffer

	startsInside := b.StartTime >= low && b.StartTime <= high
	endsInside := b.EndTime >= low && b.EndTime <= high
	covers := b.StartTime <= low && b.EndTime >= high

	return startsInside || endsInside || covers
}

// sortForSelection orders duplicates so the last element is canonical: the
// longest recording wins, and among equal lengths the most recently inserted
// one wins.
func sortForSelection(records []call.CallRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		if records[i].DurationSeconds != records[j].DurationSeconds {
			return records[i].DurationSeconds < records[j].DurationSeconds
		}

		return records[i].InsertedAt < records[j].InsertedAt
	})
}

// surveyLosers extracts what must outlive the losers: whether any of them
// already paged, and the longest transcript among them.
func surveyLosers(losers []call.CallRecord) (pagedAlready bool, longestTranscript string) {
	for i := range losers {
		if losers[i].HasPageSent() {
			pagedAlready = true
		}

		transcript := losers[i].TranscriptText()
		if len(transcript) > len(longestTranscript) {
			longestTranscript = transcript
		}
	}

	return pagedAlready, longestTranscript
}

// disposeLosers deletes every superseded record and its blob, and leaves a
// redirect from each superseded key to the canonical key. All sub-operations
// run concurrently and are individually idempotent; any failure fails the
// whole event so the queue retries it.
func (r *Resolver) disposeLosers(
	ctx context.Context,
	canonical *call.CallRecord,
	losers []call.CallRecord,
) error {
	if len(losers) == 0 {
		return nil
	}

	tasks := make(map[string]runall.Task, len(losers)*3)

	for i := range losers {
		loser := losers[i]

		tasks["record:"+loser.ObjectKey] = func(ctx context.Context) error {
			return r.Store.Delete(ctx, &loser)
		}
		tasks["blob:"+loser.ObjectKey] = func(ctx context.Context) error {
			return r.Blobs.Remove(ctx, loser.ObjectKey)
		}
		tasks["redirect:"+loser.ObjectKey] = func(ctx context.Context) error {
			return r.Redirects.Put(ctx, loser.ObjectKey, canonical.ObjectKey)
		}
	}

	allOk, failures := runall.Run(ctx, tasks)
	if !allOk {
		for name, err := range failures {
			logging.Logger.Error("loser disposal sub-operation failed",
				zap.String("task", name),
				zap.String("canonical_key", canonical.ObjectKey),
				zap.String("error", err.Error()),
			)
		}

		return fmt.Errorf("%w: %d of %d sub-operations failed",
			ErrLoserDisposal, len(failures), len(tasks))
	}

	prometheusRelay.DuplicatesResolved.Add(float64(len(losers)))

	logging.Logger.Info("duplicates resolved",
		zap.String("channel", canonical.Channel),
		zap.String("canonical_key", canonical.ObjectKey),
		zap.Int("losers", len(losers)),
	)

	return nil
}
