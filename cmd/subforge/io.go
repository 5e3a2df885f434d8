package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/subforge/subforge/pkg/subtitle"
)

// wordRecord is the wire form of one recognizer word.
type wordRecord struct {
	Text       string  `json:"text"`
	StartMS    int64   `json:"start_ms"`
	EndMS      int64   `json:"end_ms"`
	Confidence float64 `json:"confidence,omitempty"`
}

// alignedRecord is the wire form of one output subtitle line.
type alignedRecord struct {
	Index   int    `json:"index"`
	StartMS int64  `json:"start_ms"`
	EndMS   int64  `json:"end_ms"`
	Text    string `json:"text"`
	Flag    string `json:"flag"`
}

// readWords reads a JSON array of word records from path, or from stdin when
// path is empty or "-".
func readWords(path string) ([]subtitle.WordUnit, error) {
	var r io.Reader = os.Stdin
	if path != "" && path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open input: %w", err)
		}
		defer f.Close()
		r = f
	}

	var recs []wordRecord
	if err := json.NewDecoder(r).Decode(&recs); err != nil {
		return nil, fmt.Errorf("decode input: %w", err)
	}

	words := make([]subtitle.WordUnit, len(recs))
	for i, rec := range recs {
		words[i] = subtitle.WordUnit{
			Text:       rec.Text,
			Start:      time.Duration(rec.StartMS) * time.Millisecond,
			End:        time.Duration(rec.EndMS) * time.Millisecond,
			Confidence: rec.Confidence,
		}
	}
	return words, nil
}

// writeAligned writes segs as a JSON array to path (stdout when empty or
// "-"). Rendering into subtitle file formats is left to downstream tooling.
func writeAligned(path string, segs []subtitle.AlignedSegment) error {
	var w io.Writer = os.Stdout
	if path != "" && path != "-" {
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("create output: %w", err)
		}
		defer f.Close()
		w = f
	}
	return writeJSON(w, segs)
}

func writeJSON(w io.Writer, segs []subtitle.AlignedSegment) error {
	recs := make([]alignedRecord, len(segs))
	for i, s := range segs {
		recs[i] = alignedRecord{
			Index:   s.ID,
			StartMS: s.Start.Milliseconds(),
			EndMS:   s.End.Milliseconds(),
			Text:    s.Text,
			Flag:    s.Flag.String(),
		}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(recs)
}
