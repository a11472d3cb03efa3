// Package store implements the ephemeral challenge store: the
// authoritative, concurrency-safe mapping from challenge identifiers to
// challenge state, plus the reclamation sweeper that bounds its memory.
package store

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/capgate/capgate"
)

var (
	// ErrNotFound is returned when an identifier does not resolve to a
	// live challenge.
	ErrNotFound = errors.New("store: no live challenge for identifier")

	// ErrExhausted is returned when the store cannot mint a unique
	// identifier after the maximum number of redraws.
	ErrExhausted = errors.New("store: identifier space exhausted")
)

// maxMintAttempts bounds the collision redraw loop in Create. With
// 128-bit identifiers a single redraw is already astronomically
// unlikely.
const maxMintAttempts = 32

// State is the lifecycle state of a challenge. Transitions are
// monotonic: Pending -> Solved, then eviction. Expiry of a Pending
// challenge is eviction directly, there is no intermediate state to
// observe.
type State int

const (
	StatePending State = iota
	StateSolved
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateSolved:
		return "solved"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Outcome is the result of a Verify call.
type Outcome int

const (
	OutcomeNotFound Outcome = iota
	OutcomeIncorrect
	OutcomeSuccess
)

func (o Outcome) String() string {
	switch o {
	case OutcomeNotFound:
		return "not_found"
	case OutcomeIncorrect:
		return "incorrect"
	case OutcomeSuccess:
		return "success"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

// Challenge is one issued captcha instance. Once created, only State
// and SolvedAt ever change, and only under the store lock.
type Challenge struct {
	ID        string
	VerifyKey string
	Solution  string
	Image     []byte
	Preset    string
	CreatedAt time.Time
	State     State
	SolvedAt  time.Time
}

// Store owns both identifier indices. All cross-index updates happen
// inside one critical section so an id can never resolve while its
// verification key does not, or vice versa. Callers never see the maps.
type Store struct {
	mu    sync.Mutex
	byID  map[string]*Challenge
	byKey map[string]string // verification key -> challenge id

	// evictNext holds ids whose solve was observed, queued for eager
	// reclamation on the next sweep instead of waiting out a full TTL.
	evictNext []string

	unsolvedTTL time.Duration
	settleTTL   time.Duration
	now         func() time.Time
}

type Option func(*Store)

// WithTTLs overrides how long unsolved challenges live and how long
// solved challenges linger before reclamation.
func WithTTLs(unsolved, settle time.Duration) Option {
	return func(s *Store) {
		s.unsolvedTTL = unsolved
		s.settleTTL = settle
	}
}

// WithClock overrides the time source, mostly so tests don't sleep.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

func New(opts ...Option) *Store {
	result := &Store{
		byID:        map[string]*Challenge{},
		byKey:       map[string]string{},
		unsolvedTTL: capgate.DefaultUnsolvedTTL,
		settleTTL:   capgate.DefaultSettleTTL,
		now:         time.Now,
	}

	for _, opt := range opts {
		opt(result)
	}

	return result
}

// mintToken returns 128 bits from the system CSPRNG, hex encoded.
func mintToken() (string, error) {
	var buf [16]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", fmt.Errorf("store: can't read random bytes: %w", err)
	}
	return hex.EncodeToString(buf[:]), nil
}

// live reports whether token collides with any live identifier in
// either index. Identifiers and verification keys share one value
// space check so the two never overlap. Callers must hold s.mu.
func (s *Store) live(token string) bool {
	if _, ok := s.byID[token]; ok {
		return true
	}
	_, ok := s.byKey[token]
	return ok
}

// Create inserts a new Pending challenge and returns its public id and
// secret verification key. The two tokens are minted independently; a
// collision with any live identifier triggers a redraw.
func (s *Store) Create(solution, preset string, img []byte) (id, key string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for attempt := 0; ; attempt++ {
		if attempt >= maxMintAttempts {
			return "", "", fmt.Errorf("%w after %d attempts", ErrExhausted, maxMintAttempts)
		}

		id, err = mintToken()
		if err != nil {
			return "", "", err
		}
		key, err = mintToken()
		if err != nil {
			return "", "", err
		}

		if id == key || s.live(id) || s.live(key) {
			continue
		}

		break
	}

	s.byID[id] = &Challenge{
		ID:        id,
		VerifyKey: key,
		Solution:  solution,
		Image:     img,
		Preset:    preset,
		CreatedAt: s.now(),
		State:     StatePending,
	}
	s.byKey[key] = id

	challengesIssued.WithLabelValues(preset).Inc()
	liveChallenges.Set(float64(len(s.byID)))

	return id, key, nil
}

// Image returns the rendered bytes for id. It works for Pending and
// Solved challenges alike; a solved challenge stays fetchable until the
// settle window lapses and the sweeper removes it.
func (s *Store) Image(id string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch, ok := s.byID[id]
	if !ok || ch == nil {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, id)
	}

	return ch.Image, nil
}

// Verify submits text against the challenge that key resolves to. The
// check-then-set is one atomic unit: of two racing correct submissions
// exactly one observes OutcomeSuccess. A challenge that has already
// been solved answers OutcomeNotFound, a solve consumes it even before
// the sweeper physically removes the entry.
//
// The returned preset is the style class the challenge was issued
// under, set only on success.
func (s *Store) Verify(key, text string) (Outcome, string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byKey[key]
	if !ok {
		verifyOutcomes.WithLabelValues(OutcomeNotFound.String()).Inc()
		return OutcomeNotFound, ""
	}

	ch, ok := s.byID[id]
	if !ok || ch == nil {
		// Dangling key index entries can only come from a bug, but a
		// torn lookup must never look like a solvable challenge.
		verifyOutcomes.WithLabelValues(OutcomeNotFound.String()).Inc()
		return OutcomeNotFound, ""
	}

	if ch.State == StateSolved {
		verifyOutcomes.WithLabelValues(OutcomeNotFound.String()).Inc()
		return OutcomeNotFound, ""
	}

	if subtle.ConstantTimeCompare([]byte(text), []byte(ch.Solution)) != 1 {
		verifyOutcomes.WithLabelValues(OutcomeIncorrect.String()).Inc()
		return OutcomeIncorrect, ""
	}

	ch.State = StateSolved
	ch.SolvedAt = s.now()
	s.evictNext = append(s.evictNext, id)

	verifyOutcomes.WithLabelValues(OutcomeSuccess.String()).Inc()
	return OutcomeSuccess, ch.Preset
}

// Evict removes the challenge and both of its index entries as one
// atomic unit. It reports whether anything was removed.
func (s *Store) Evict(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.evictLocked(id)
}

func (s *Store) evictLocked(id string) bool {
	ch, ok := s.byID[id]
	if !ok {
		return false
	}

	if ch != nil {
		delete(s.byKey, ch.VerifyKey)
	}
	delete(s.byID, id)

	liveChallenges.Set(float64(len(s.byID)))
	return true
}

// Len returns the number of live challenges.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.byID)
}
