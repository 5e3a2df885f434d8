//go:build cgo

// Package whisper adapts the whisper.cpp CGO bindings as a word-unit source
// for the pipeline. The whisper.cpp static library (libwhisper.a) and
// headers (whisper.h) must be available at link time via LIBRARY_PATH and
// C_INCLUDE_PATH environment variables.
//
// The pipeline itself is recognizer-agnostic; anything that produces timed
// word units can feed it. This adapter exists for fully local operation.
package whisper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/subforge/subforge/pkg/subtitle"
)

const defaultLanguage = "en"

// SampleRate is the PCM sample rate whisper.cpp expects.
const SampleRate = 16000

// Option is a functional option for configuring a [Recognizer].
type Option func(*Recognizer)

// WithLanguage sets the BCP-47 language code for transcription (e.g. "en",
// "de", "ja"). Defaults to "en".
func WithLanguage(lang string) Option {
	return func(r *Recognizer) { r.language = lang }
}

// Recognizer transcribes PCM audio into timed word units. The model is
// loaded once and shared; each Transcribe call creates its own whisper
// context, so concurrent calls are safe.
type Recognizer struct {
	model    whisperlib.Model
	language string
}

// New loads the whisper.cpp model from modelPath. The caller must call
// Close when the recognizer is no longer needed.
func New(modelPath string, opts ...Option) (*Recognizer, error) {
	if modelPath == "" {
		return nil, errors.New("whisper: modelPath must not be empty")
	}
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("whisper: load model %q: %w", modelPath, err)
	}

	r := &Recognizer{model: model, language: defaultLanguage}
	for _, o := range opts {
		o(r)
	}
	return r, nil
}

// Close releases the whisper model.
func (r *Recognizer) Close() error {
	if r.model != nil {
		return r.model.Close()
	}
	return nil
}

// Transcribe runs inference over 16 kHz mono float32 samples and returns
// one [subtitle.WordUnit] per recognized token, with token-level timestamps
// and the model's per-token probability as confidence.
func (r *Recognizer) Transcribe(ctx context.Context, samples []float32) ([]subtitle.WordUnit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Each context is NOT thread-safe, but the model can be shared across
	// goroutines.
	wctx, err := r.model.NewContext()
	if err != nil {
		return nil, fmt.Errorf("whisper: create context: %w", err)
	}
	if err := wctx.SetLanguage(r.language); err != nil {
		slog.Warn("whisper: failed to set language, using default", "language", r.language, "error", err)
	}
	wctx.SetTokenTimestamps(true)

	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return nil, fmt.Errorf("whisper: process audio: %w", err)
	}

	var words []subtitle.WordUnit
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("whisper: read segment: %w", err)
		}
		for _, tok := range segment.Tokens {
			text := strings.TrimSpace(tok.Text)
			// Marker tokens like [_BEG_] carry no speech.
			if text == "" || strings.HasPrefix(text, "[_") {
				continue
			}
			words = append(words, subtitle.WordUnit{
				Text:       text,
				Start:      tok.Start,
				End:        tok.End,
				Confidence: float64(tok.P),
			})
		}
	}
	return words, nil
}
