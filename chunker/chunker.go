// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


// Package chunker splits document text into overlapping word windows.
//
// Output is a pure function of the input text and Options, which is what
// makes chunk identities stable across re-ingestion.
package chunker

import (
	"errors"
	"fmt"
	"strings"
)

const (
	DefaultWindowWords   = 250
	DefaultOverlapWords  = 50
	DefaultMinChunkChars = 50
)

// ErrInvalidOptions indicates a window/overlap combination that cannot advance.
var ErrInvalidOptions = errors.New("invalid chunker options")

// Options controls window size and filtering.
type Options struct {
	// WindowWords is the number of words per chunk.
	WindowWords int
	// OverlapWords is how many trailing words of a chunk are repeated at the
	// start of the next one. Must be smaller than WindowWords.
	OverlapWords int
	// MinChunkChars drops chunks whose trimmed length is at or below it.
	MinChunkChars int
}

// DefaultOptions returns the standard 250/50 word window.
func DefaultOptions() Options {
	return Options{
		WindowWords:   DefaultWindowWords,
		OverlapWords:  DefaultOverlapWords,
		MinChunkChars: DefaultMinChunkChars,
	}
}

// Validate checks that the window advances on every step.
func (o Options) Validate() error {
	if o.WindowWords <= 0 {
		return fmt.Errorf("%w: window must be positive, got %d", ErrInvalidOptions, o.WindowWords)
	}
	if o.OverlapWords < 0 {
		return fmt.Errorf("%w: overlap must not be negative, got %d", ErrInvalidOptions, o.OverlapWords)
	}
	if o.OverlapWords >= o.WindowWords {
		return fmt.Errorf("%w: overlap %d must be smaller than window %d",
			ErrInvalidOptions, o.OverlapWords, o.WindowWords)
	}
	if o.MinChunkChars < 0 {
		return fmt.Errorf("%w: min chunk chars must not be negative, got %d", ErrInvalidOptions, o.MinChunkChars)
	}
	return nil
}

// Split breaks text into windows of opts.WindowWords words, advancing by
// WindowWords-OverlapWords each step. Words are joined with single spaces.
// The walk stops once a window reaches the last word, so the final chunk
// may be shorter than the window. Chunks whose trimmed length is at most
// MinChunkChars are dropped. Empty text yields an empty slice.
func Split(text string, opts Options) ([]string, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	words := strings.Fields(text)
	if len(words) == 0 {
		return []string{}, nil
	}

	step := opts.WindowWords - opts.OverlapWords
	chunks := make([]string, 0, len(words)/step+1)
	for start := 0; start < len(words); start += step {
		end := min(start+opts.WindowWords, len(words))
		chunk := strings.Join(words[start:end], " ")
		if len(strings.TrimSpace(chunk)) > opts.MinChunkChars {
			chunks = append(chunks, chunk)
		}
		if end == len(words) {
			break
		}
	}
	return chunks, nil
}
