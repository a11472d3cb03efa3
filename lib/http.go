package lib

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/capgate/capgate/internal"
	"github.com/capgate/capgate/lib/render"
	"github.com/capgate/capgate/lib/store"
)

type challengeResponse struct {
	ID              string `json:"id"`
	VerificationKey string `json:"verificationKey"`
	Type            string `json:"type"`
	ImageURL        string `json:"imageUrl"`
	VerifyURL       string `json:"verifyUrl"`
	ExpiresIn       int    `json:"expiresIn"`
}

type verifyResponse struct {
	Success bool   `json:"success"`
	Type    string `json:"type,omitempty"`
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("can't encode response", "err", err)
	}
}

// styleFor resolves the preset named in the path, then applies any
// query-parameter overrides. The merged style is re-validated so an
// override can't smuggle an out-of-range value past a valid preset.
func (s *Server) styleFor(r *http.Request) (render.Style, error) {
	name := r.PathValue("preset")
	style, ok := s.opts.Presets.Get(name)
	if !ok {
		return render.Style{}, fmt.Errorf("%w: %q", errUnknownPreset, name)
	}

	if err := applyOverrides(&style, r.URL.Query()); err != nil {
		return render.Style{}, err
	}

	if err := style.Valid(); err != nil {
		return render.Style{}, err
	}

	return style, nil
}

var errUnknownPreset = errors.New("lib: unknown preset")

func applyOverrides(style *render.Style, q url.Values) error {
	if v := q.Get("scale"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: scale: %q is not an integer", render.ErrOutOfRange, v)
		}
		style.Scale = n
	}

	if v := q.Get("lines"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: lines: %q is not an integer", render.ErrOutOfRange, v)
		}
		style.Lines = n
	}

	if v := q.Get("line_width"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: line_width: %q is not an integer", render.ErrOutOfRange, v)
		}
		style.LineWidth = n
	}

	if v := q.Get("noise"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("%w: noise: %q is not a number", render.ErrOutOfRange, v)
		}
		style.Noise = f
	}

	if v := q.Get("randomize_bg_color"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%w: randomize_bg_color: %q is not a boolean", render.ErrOutOfRange, v)
		}
		style.RandomizeBackground = b
	}

	if v := q.Get("randomize_text_color"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%w: randomize_text_color: %q is not a boolean", render.ErrOutOfRange, v)
		}
		style.RandomizeTextColor = b
	}

	return nil
}

func (s *Server) makeChallenge(w http.ResponseWriter, r *http.Request) {
	lg := internal.RequestLogger(r).With("handler", "makeChallenge")

	presetName := r.PathValue("preset")
	style, err := s.styleFor(r)
	switch {
	case errors.Is(err, errUnknownPreset):
		http.Error(w, fmt.Sprintf("unknown challenge type %q", presetName), http.StatusNotFound)
		return
	case errors.Is(err, render.ErrOutOfRange):
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	case err != nil:
		lg.Error("can't resolve style", "err", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	solution, err := s.opts.NewSolution()
	if err != nil {
		lg.Error("can't mint solution", "err", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	img, err := s.opts.Renderer.Render(r.Context(), solution, style)
	if err != nil {
		// Nothing has been stored yet, a failed render leaves no
		// half-created challenge behind.
		lg.Error("renderer failed", "preset", presetName, "err", err)
		http.Error(w, "can't render challenge image", http.StatusInternalServerError)
		return
	}

	id, key, err := s.opts.Store.Create(solution, presetName, img)
	if err != nil {
		lg.Error("can't create challenge", "preset", presetName, "err", err)
		http.Error(w, "can't create challenge", http.StatusInternalServerError)
		return
	}

	lg.Debug("challenge issued", "id", id, "preset", presetName)

	s.respondJSON(w, http.StatusOK, challengeResponse{
		ID:              id,
		VerificationKey: key,
		Type:            presetName,
		ImageURL:        fmt.Sprintf("%s/image/%s", s.opts.BaseURL, id),
		VerifyURL:       fmt.Sprintf("%s/verify/%s", s.opts.BaseURL, key),
		ExpiresIn:       int(s.opts.UnsolvedTTL.Seconds()),
	})
}

func (s *Server) serveImage(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	img, err := s.opts.Store.Image(id)
	if err != nil {
		http.Error(w, "no such challenge", http.StatusNotFound)
		return
	}

	etag := `"` + internal.FastHashBytes(img) + `"`
	if r.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", "challenge-"+id+".jpg"))
	w.Header().Set("ETag", etag)
	w.Header().Set("Content-Length", strconv.Itoa(len(img)))
	w.WriteHeader(http.StatusOK)
	w.Write(img)
}

func (s *Server) verify(w http.ResponseWriter, r *http.Request) {
	lg := internal.RequestLogger(r).With("handler", "verify")

	key := r.PathValue("key")
	text := r.PathValue("text")

	outcome, presetName := s.opts.Store.Verify(key, text)
	switch outcome {
	case store.OutcomeSuccess:
		lg.Debug("challenge solved", "preset", presetName)
		s.respondJSON(w, http.StatusOK, verifyResponse{Success: true, Type: presetName})
	case store.OutcomeIncorrect:
		s.respondJSON(w, http.StatusForbidden, verifyResponse{Success: false})
	default:
		http.Error(w, "no such challenge", http.StatusNotFound)
	}
}
