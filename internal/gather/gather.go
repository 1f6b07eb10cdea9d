package gather

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"
)

// Options bounds how long a gathering round may take.
type Options struct {
	// QuietPeriod resolves the round when no candidate arrived for this long.
	QuietPeriod time.Duration
	// Ceiling resolves the round unconditionally.
	Ceiling time.Duration
}

func DefaultOptions() Options {
	return Options{
		QuietPeriod: 2 * time.Second,
		Ceiling:     10 * time.Second,
	}
}

type Reason string

const (
	ReasonCompleted Reason = "completed"
	ReasonQuiet     Reason = "quiet"
	ReasonCeiling   Reason = "ceiling"
	ReasonCancelled Reason = "cancelled"
)

type Result struct {
	Candidates []webrtc.ICECandidateInit
	Reason     Reason
	Elapsed    time.Duration
}

// Gatherer collects local candidates for one negotiation round and decides
// when enough of them have been found.
type Gatherer struct {
	options Options
	logger  *slog.Logger

	mu         sync.Mutex
	candidates []webrtc.ICECandidateInit
	frozen     bool
	dropped    int

	arrived      chan struct{}
	completed    chan struct{}
	completeOnce sync.Once
}

func New(options Options, logger *slog.Logger) *Gatherer {
	defaults := DefaultOptions()
	if options.QuietPeriod <= 0 {
		options.QuietPeriod = defaults.QuietPeriod
	}
	if options.Ceiling <= 0 {
		options.Ceiling = defaults.Ceiling
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Gatherer{
		options:   options,
		logger:    logger,
		arrived:   make(chan struct{}, 1),
		completed: make(chan struct{}),
	}
}

// Add records a discovered candidate. It returns false when the round is
// already frozen and the candidate was dropped.
func (g *Gatherer) Add(candidate webrtc.ICECandidateInit) bool {
	g.mu.Lock()
	if g.frozen {
		g.dropped++
		dropped := g.dropped
		g.mu.Unlock()

		g.logger.Debug("late candidate dropped", "candidate", candidate.Candidate, "dropped", dropped)
		return false
	}
	g.candidates = append(g.candidates, candidate)
	g.mu.Unlock()

	select {
	case g.arrived <- struct{}{}:
	default:
	}

	return true
}

// Complete signals that discovery finished. Calling it more than once is a no-op.
func (g *Gatherer) Complete() {
	g.completeOnce.Do(func() {
		close(g.completed)
	})
}

// Dropped returns how many candidates arrived after the round froze.
func (g *Gatherer) Dropped() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.dropped
}

// Wait blocks until the round resolves and returns the frozen candidates.
// Whichever of completion, quiet period, ceiling or ctx comes first wins and
// the remaining timers are stopped.
func (g *Gatherer) Wait(ctx context.Context) Result {
	start := time.Now()

	quiet := time.NewTimer(g.options.QuietPeriod)
	defer quiet.Stop()

	ceiling := time.NewTimer(g.options.Ceiling)
	defer ceiling.Stop()

	var reason Reason

loop:
	for {
		select {
		case <-g.completed:
			reason = ReasonCompleted
			break loop
		case <-ceiling.C:
			reason = ReasonCeiling
			break loop
		case <-quiet.C:
			reason = ReasonQuiet
			break loop
		case <-ctx.Done():
			reason = ReasonCancelled
			break loop
		case <-g.arrived:
			quiet.Reset(g.options.QuietPeriod)
		}
	}

	result := Result{
		Candidates: g.freeze(),
		Reason:     reason,
		Elapsed:    time.Since(start),
	}

	g.logger.Debug("candidate gathering resolved",
		"reason", result.Reason,
		"candidates", len(result.Candidates),
		"elapsed", result.Elapsed,
	)

	return result
}

func (g *Gatherer) freeze() []webrtc.ICECandidateInit {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.frozen = true

	out := make([]webrtc.ICECandidateInit, len(g.candidates))
	copy(out, g.candidates)

	return out
}
