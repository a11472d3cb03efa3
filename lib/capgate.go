// Package lib wires the challenge store, the renderer, and the style
// presets into the capgate HTTP service.
package lib

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/capgate/capgate"
	"github.com/capgate/capgate/lib/preset"
	"github.com/capgate/capgate/lib/render"
	"github.com/capgate/capgate/lib/store"
)

type Options struct {
	Store    *store.Store
	Renderer *render.Pool
	Presets  preset.Map

	// BaseURL is used to build the absolute image and verify links in
	// challenge creation responses.
	BaseURL string

	// UnsolvedTTL is reported to clients as expiresIn. It must match
	// the TTL the store was built with.
	UnsolvedTTL time.Duration

	// NewSolution overrides solution text generation, for tests.
	NewSolution func() (string, error)
}

type Server struct {
	mux  *http.ServeMux
	opts Options
}

func New(opts Options) (*Server, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("lib: Options.Store is required")
	}

	if opts.Renderer == nil {
		return nil, fmt.Errorf("lib: Options.Renderer is required")
	}

	if len(opts.Presets) == 0 {
		return nil, fmt.Errorf("lib: Options.Presets must define at least one preset")
	}

	opts.BaseURL = strings.TrimSuffix(opts.BaseURL, "/")

	if opts.UnsolvedTTL <= 0 {
		opts.UnsolvedTTL = capgate.DefaultUnsolvedTTL
	}

	if opts.NewSolution == nil {
		opts.NewSolution = mintSolution
	}

	result := &Server{
		mux:  http.NewServeMux(),
		opts: opts,
	}

	result.mux.HandleFunc("GET /challenge/{preset}", result.makeChallenge)
	result.mux.HandleFunc("GET /image/{id}", result.serveImage)
	result.mux.HandleFunc("GET /verify/{key}/{text}", result.verify)
	result.mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "OK")
	})

	return result, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// mintSolution draws the challenge solution digits from the system
// CSPRNG. rand.Int instead of a modulo so no digit is more likely than
// another.
func mintSolution() (string, error) {
	digits := make([]byte, capgate.SolutionLength)
	for i := range digits {
		n, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", fmt.Errorf("lib: can't read random digit: %w", err)
		}
		digits[i] = byte('0' + n.Int64())
	}

	return string(digits), nil
}
