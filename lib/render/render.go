// Package render draws challenge images. Rendering is a pure function
// of the challenge text and a Style; the store never cares how the
// bytes were produced.
package render

import (
	"context"
	"errors"
	"fmt"
	"runtime"
)

// ErrOutOfRange is returned when a style parameter falls outside its
// allowed range. Out-of-range values are rejected, never clamped.
var ErrOutOfRange = errors.New("render: style parameter out of range")

// Style is the rendering configuration for one challenge.
type Style struct {
	// Scale multiplies the base canvas size, 1 to 4.
	Scale int `yaml:"scale" json:"scale"`

	// Lines is the number of strike-through lines, 1 to 32.
	Lines int `yaml:"lines" json:"lines"`

	// LineWidth is the stroke width of each line in pixels, at least 1.
	LineWidth int `yaml:"line_width" json:"lineWidth"`

	// Noise is the fraction of the canvas covered by noise specks,
	// 0.01 to 1.0.
	Noise float64 `yaml:"noise" json:"noise"`

	// RandomizeBackground picks a random background color instead of
	// white.
	RandomizeBackground bool `yaml:"randomize_bg_color" json:"randomizeBgColor"`

	// RandomizeTextColor picks a random text color instead of black.
	RandomizeTextColor bool `yaml:"randomize_text_color" json:"randomizeTextColor"`
}

// Valid checks every parameter against its allowed range.
func (s Style) Valid() error {
	if s.Scale < 1 || s.Scale > 4 {
		return fmt.Errorf("%w: scale must be between 1 and 4, got %d", ErrOutOfRange, s.Scale)
	}

	if s.Lines < 1 || s.Lines > 32 {
		return fmt.Errorf("%w: lines must be between 1 and 32, got %d", ErrOutOfRange, s.Lines)
	}

	if s.LineWidth < 1 {
		return fmt.Errorf("%w: line_width must be at least 1, got %d", ErrOutOfRange, s.LineWidth)
	}

	if s.Noise < 0.01 || s.Noise > 1 {
		return fmt.Errorf("%w: noise must be between 0.01 and 1, got %g", ErrOutOfRange, s.Noise)
	}

	return nil
}

// Renderer produces image bytes for a challenge text. Implementations
// must be safe for concurrent use; every call stands alone.
type Renderer interface {
	Render(text string, style Style) ([]byte, error)
}

// Pool wraps a Renderer with a concurrency limit so CPU-bound drawing
// can't stall request acceptance.
type Pool struct {
	r   Renderer
	sem chan struct{}
}

// NewPool limits r to workers concurrent renders. A non-positive
// workers defaults to GOMAXPROCS.
func NewPool(r Renderer, workers int) *Pool {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	return &Pool{
		r:   r,
		sem: make(chan struct{}, workers),
	}
}

// Render waits for a worker slot, honoring ctx while queued.
func (p *Pool) Render(ctx context.Context, text string, style Style) ([]byte, error) {
	select {
	case p.sem <- struct{}{}:
		defer func() { <-p.sem }()
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	return p.r.Render(text, style)
}
