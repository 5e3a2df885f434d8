// Package pipeline wires the stages of a subtitle job together: normalize
// the recognizer words, segment them, optionally rewrite or translate the
// segment texts through the model orchestrator, and align the result back
// onto the original timeline.
//
// Stage errors follow the job-level taxonomy: malformed input aborts,
// cancellation aborts with [subtitle.ErrJobCancelled] and no partial output,
// and everything else degrades per segment instead of failing the job.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/subforge/subforge/internal/align"
	"github.com/subforge/subforge/internal/normalize"
	"github.com/subforge/subforge/internal/observe"
	"github.com/subforge/subforge/internal/optimize"
	"github.com/subforge/subforge/internal/segment"
	"github.com/subforge/subforge/pkg/subtitle"
)

// Config assembles a [Runner].
type Config struct {
	// Normalize parameterizes input cleanup.
	Normalize normalize.Options

	// Segment parameterizes the segmentation engine.
	Segment segment.Config

	// Align parameterizes the alignment engine.
	Align align.Config

	// Orchestrator optionally runs the model pass. When nil the pipeline
	// emits the original segment texts unchanged.
	Orchestrator *optimize.Orchestrator

	// Metrics receives stage durations and flag counts. Nil uses the
	// global set.
	Metrics *observe.Metrics
}

// Result is the output of one pipeline job.
type Result struct {
	// JobID identifies the run in logs and traces.
	JobID string

	// Words is the cleaned word sequence the segments were built from.
	Words []subtitle.WordUnit

	// Segments is the segmentation output with original text.
	Segments []subtitle.Segment

	// Aligned is the final output: one entry per segment, timestamps
	// copied verbatim.
	Aligned []subtitle.AlignedSegment
}

// Runner executes jobs. It is immutable after construction and safe for
// concurrent use; each Run is an independent job.
type Runner struct {
	cfg       Config
	segmenter *segment.Engine
	aligner   *align.Engine
	metrics   *observe.Metrics
}

// New builds a [Runner] from cfg.
func New(cfg Config) *Runner {
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	return &Runner{
		cfg:       cfg,
		segmenter: segment.New(cfg.Segment),
		aligner:   align.New(cfg.Align),
		metrics:   metrics,
	}
}

// Run executes one job over raw recognizer words. On cancellation it
// returns [subtitle.ErrJobCancelled] and no result, regardless of how far
// the job had progressed.
func (r *Runner) Run(ctx context.Context, words []subtitle.WordUnit) (*Result, error) {
	jobID := uuid.NewString()
	ctx, span := observe.StartSpan(ctx, "pipeline.run")
	defer span.End()
	log := observe.Logger(ctx).With("job_id", jobID)

	cleaned, err := stage(r, ctx, "normalize", func() ([]subtitle.WordUnit, error) {
		return normalize.Clean(words, r.cfg.Normalize)
	})
	if err != nil {
		return nil, r.jobErr(err)
	}
	log.Info("input normalized", "words_in", len(words), "words_kept", len(cleaned))

	segments, err := stage(r, ctx, "segment", func() ([]subtitle.Segment, error) {
		return r.segmenter.Segment(ctx, cleaned)
	})
	if err != nil {
		return nil, r.jobErr(err)
	}
	log.Info("segmentation done", "segments", len(segments))

	var spans []subtitle.RewrittenSpan
	if r.cfg.Orchestrator != nil {
		spans, err = stage(r, ctx, "optimize", func() ([]subtitle.RewrittenSpan, error) {
			return r.cfg.Orchestrator.Run(ctx, segments)
		})
		if err != nil {
			return nil, r.jobErr(err)
		}
	} else {
		spans = identitySpans(segments)
	}

	if err := ctx.Err(); err != nil {
		return nil, r.jobErr(err)
	}

	aligned, _ := stage(r, ctx, "align", func() ([]subtitle.AlignedSegment, error) {
		return r.aligner.Align(segments, spans), nil
	})
	for _, a := range aligned {
		r.metrics.RecordFlag(ctx, a.Flag.String())
	}
	log.Info("alignment done", "segments", len(aligned))

	return &Result{
		JobID:    jobID,
		Words:    cleaned,
		Segments: segments,
		Aligned:  aligned,
	}, nil
}

// stage runs fn under a span and records its duration.
func stage[T any](r *Runner, ctx context.Context, name string, fn func() (T, error)) (T, error) {
	ctx, span := observe.StartSpan(ctx, "pipeline."+name)
	defer span.End()

	start := time.Now()
	out, err := fn()
	r.metrics.RecordStage(ctx, name, time.Since(start).Seconds())
	return out, err
}

// jobErr maps cancellation onto the job-level sentinel; all other errors
// pass through.
func (r *Runner) jobErr(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", subtitle.ErrJobCancelled, err)
	}
	return err
}

// identitySpans wraps each segment's own text in an ordered span so the
// aligner emits it unchanged when no model pass runs.
func identitySpans(segments []subtitle.Segment) []subtitle.RewrittenSpan {
	if len(segments) == 0 {
		return nil
	}
	items := make([]string, len(segments))
	for i, s := range segments {
		items[i] = s.Text
	}
	return []subtitle.RewrittenSpan{{
		Lo:      0,
		Hi:      len(segments),
		Items:   items,
		Ordered: true,
	}}
}
