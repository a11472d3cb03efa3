package render

import (
	"bytes"
	"context"
	"errors"
	"image/jpeg"
	"testing"
	"time"

	"github.com/capgate/capgate"
)

func TestStyleValid(t *testing.T) {
	base := Style{Scale: 1, Lines: 12, LineWidth: 1, Noise: 0.25}

	for _, tt := range []struct {
		name    string
		mutate  func(*Style)
		wantErr bool
	}{
		{name: "reference defaults", mutate: func(s *Style) {}},
		{name: "max everything", mutate: func(s *Style) { s.Scale = 4; s.Lines = 32; s.Noise = 1 }},
		{name: "scale too small", mutate: func(s *Style) { s.Scale = 0 }, wantErr: true},
		{name: "scale too big", mutate: func(s *Style) { s.Scale = 5 }, wantErr: true},
		{name: "no lines", mutate: func(s *Style) { s.Lines = 0 }, wantErr: true},
		{name: "too many lines", mutate: func(s *Style) { s.Lines = 33 }, wantErr: true},
		{name: "zero line width", mutate: func(s *Style) { s.LineWidth = 0 }, wantErr: true},
		{name: "noise below floor", mutate: func(s *Style) { s.Noise = 0.005 }, wantErr: true},
		{name: "noise above ceiling", mutate: func(s *Style) { s.Noise = 1.5 }, wantErr: true},
	} {
		t.Run(tt.name, func(t *testing.T) {
			style := base
			tt.mutate(&style)

			err := style.Valid()
			if tt.wantErr && !errors.Is(err, ErrOutOfRange) {
				t.Errorf("wanted ErrOutOfRange, got %v", err)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("wanted valid style, got %v", err)
			}
		})
	}
}

func TestDrawnRender(t *testing.T) {
	d, err := NewDrawn()
	if err != nil {
		t.Fatal(err)
	}

	for _, tt := range []struct {
		name  string
		style Style
	}{
		{name: "base scale", style: Style{Scale: 1, Lines: 12, LineWidth: 1, Noise: 0.25, RandomizeBackground: true}},
		{name: "scaled up", style: Style{Scale: 3, Lines: 4, LineWidth: 2, Noise: 0.05, RandomizeTextColor: true}},
	} {
		t.Run(tt.name, func(t *testing.T) {
			data, err := d.Render("123456", tt.style)
			if err != nil {
				t.Fatal(err)
			}

			img, err := jpeg.Decode(bytes.NewReader(data))
			if err != nil {
				t.Fatalf("renderer output is not a jpeg: %v", err)
			}

			bounds := img.Bounds()
			wantW := capgate.BaseImageWidth * tt.style.Scale
			wantH := capgate.BaseImageHeight * tt.style.Scale
			if bounds.Dx() != wantW || bounds.Dy() != wantH {
				t.Errorf("wanted %dx%d canvas, got %dx%d", wantW, wantH, bounds.Dx(), bounds.Dy())
			}
		})
	}
}

func TestDrawnRenderRejectsBadStyle(t *testing.T) {
	d, err := NewDrawn()
	if err != nil {
		t.Fatal(err)
	}

	if _, err := d.Render("123456", Style{Scale: 9, Lines: 1, LineWidth: 1, Noise: 0.5}); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("wanted ErrOutOfRange, got %v", err)
	}
}

type blockingRenderer struct {
	started chan struct{}
	release chan struct{}
}

func (b *blockingRenderer) Render(text string, style Style) ([]byte, error) {
	b.started <- struct{}{}
	<-b.release
	return []byte(text), nil
}

func TestPoolHonorsContextWhileQueued(t *testing.T) {
	br := &blockingRenderer{
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	p := NewPool(br, 1)

	done := make(chan struct{})
	go func() {
		defer close(done)
		if _, err := p.Render(context.Background(), "123456", Style{Scale: 1, Lines: 1, LineWidth: 1, Noise: 0.5}); err != nil {
			t.Error(err)
		}
	}()
	<-br.started // the single worker slot is now held

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	if _, err := p.Render(ctx, "654321", Style{Scale: 1, Lines: 1, LineWidth: 1, Noise: 0.5}); !errors.Is(err, context.Canceled) {
		t.Errorf("wanted context.Canceled while queued, got %v", err)
	}

	close(br.release)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("background render never finished")
	}
}
