// Package capgate contains the shared constants for capgate, the
// ephemeral visual challenge (captcha) service.
package capgate

import "time"

// Version is the version of capgate compiled into the binary. This is
// set at build time with -ldflags.
var Version = "devel"

const (
	// DefaultUnsolvedTTL is how long an unsolved challenge lives before
	// the sweeper reclaims it.
	DefaultUnsolvedTTL = 5 * time.Minute

	// DefaultSettleTTL is the grace period after a successful solve
	// during which the challenge image remains fetchable.
	DefaultSettleTTL = 30 * time.Second

	// DefaultSweepInterval is how often the reclamation sweeper runs.
	DefaultSweepInterval = 10 * time.Second

	// SolutionLength is the number of digits in a challenge solution.
	SolutionLength = 6

	// BaseImageWidth and BaseImageHeight are the unscaled challenge
	// image dimensions in pixels.
	BaseImageWidth  = 120
	BaseImageHeight = 60
)
