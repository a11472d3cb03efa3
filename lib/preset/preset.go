// Package preset maps named difficulty classes to rendering styles.
// Presets are the {type} segment of the challenge creation route.
package preset

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/capgate/capgate/data"
	"github.com/capgate/capgate/lib/render"
)

var ErrNoPresets = errors.New("preset: document defines no presets")

// Map is the set of named styles a server offers.
type Map map[string]render.Style

// Get looks up a preset by name.
func (m Map) Get(name string) (render.Style, bool) {
	style, ok := m[name]
	return style, ok
}

type document struct {
	Presets map[string]render.Style `yaml:"presets"`
}

// Parse reads a preset document and validates every style in it. fname
// is used in error messages only.
func Parse(fin io.Reader, fname string) (Map, error) {
	dec := yaml.NewDecoder(fin)
	dec.KnownFields(true)

	var doc document
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("preset: can't parse %s: %w", fname, err)
	}

	if len(doc.Presets) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoPresets, fname)
	}

	var validationErrs []error
	for name, style := range doc.Presets {
		if err := style.Valid(); err != nil {
			validationErrs = append(validationErrs, fmt.Errorf("preset %q: %w", name, err))
		}
	}

	if len(validationErrs) != 0 {
		return nil, fmt.Errorf("preset: can't validate %s: %w", fname, errors.Join(validationErrs...))
	}

	return Map(doc.Presets), nil
}

// LoadOrDefault reads presets from fname, or from the embedded default
// document when fname is empty.
func LoadOrDefault(fname string) (Map, error) {
	var fin io.ReadCloser
	var err error

	if fname != "" {
		fin, err = os.Open(fname)
		if err != nil {
			return nil, fmt.Errorf("preset: can't open %s: %w", fname, err)
		}
	} else {
		fname = "(data)/presets.yaml"
		fin, err = data.Presets.Open("presets.yaml")
		if err != nil {
			return nil, fmt.Errorf("[unexpected] preset: can't open builtin %s: %w", fname, err)
		}
	}

	defer func(fin io.ReadCloser) {
		if err := fin.Close(); err != nil {
			slog.Error("failed to close preset file", "file", fname, "err", err)
		}
	}(fin)

	return Parse(fin, fname)
}
