package preset

import (
	"errors"
	"strings"
	"testing"

	"github.com/capgate/capgate/lib/render"
)

func TestLoadOrDefaultBuiltin(t *testing.T) {
	presets, err := LoadOrDefault("")
	if err != nil {
		t.Fatal(err)
	}

	for _, name := range []string{"easy", "default", "hard"} {
		if _, ok := presets.Get(name); !ok {
			t.Errorf("builtin document is missing preset %q", name)
		}
	}

	// The default preset carries the reference rendering parameters.
	style, _ := presets.Get("default")
	want := render.Style{Scale: 1, Lines: 12, LineWidth: 1, Noise: 0.25, RandomizeBackground: true}
	if style != want {
		t.Errorf("default preset drifted: want %+v, got %+v", want, style)
	}
}

func TestParse(t *testing.T) {
	for _, tt := range []struct {
		name  string
		input string
		err   error
	}{
		{
			name: "valid document",
			input: `
presets:
  plain:
    scale: 1
    lines: 1
    line_width: 1
    noise: 0.5
`,
		},
		{
			name:  "empty document",
			input: `presets: {}`,
			err:   ErrNoPresets,
		},
		{
			name: "out of range style",
			input: `
presets:
  broken:
    scale: 9
    lines: 1
    line_width: 1
    noise: 0.5
`,
			err: render.ErrOutOfRange,
		},
	} {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(tt.input), tt.name)
			if !errors.Is(err, tt.err) {
				t.Logf("want: %v", tt.err)
				t.Logf("got:  %v", err)
				t.Error("wrong error")
			}
		})
	}
}

func TestParseRejectsUnknownFields(t *testing.T) {
	input := `
presets:
  typo:
    scale: 1
    lines: 1
    line_width: 1
    noise: 0.5
    nosie_level: 0.5
`
	if _, err := Parse(strings.NewReader(input), t.Name()); err == nil {
		t.Error("a document with an unknown field parsed cleanly")
	}
}

func TestLoadOrDefaultMissingFile(t *testing.T) {
	if _, err := LoadOrDefault("/does/not/exist.yaml"); err == nil {
		t.Error("a missing preset file loaded cleanly")
	}
}
