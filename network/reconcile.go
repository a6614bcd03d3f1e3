package network

import (
	"github.com/automoto/ticksync/shared/sim"
	"go.uber.org/zap"
)

// Outcome says what a reconciliation did with an Authority snapshot.
type Outcome int

const (
	// OutcomeIgnored: older than a snapshot already reconciled, or a spawn
	// pose arriving after prediction started.
	OutcomeIgnored Outcome = iota
	// OutcomeAdopted: no usable local entry for the tick; the Authority
	// state became the live state without replay.
	OutcomeAdopted
	// OutcomeMatched: the local prediction agreed with the Authority.
	OutcomeMatched
	// OutcomeCorrected: the live state was snapped and later ticks replayed.
	OutcomeCorrected
)

func (o Outcome) String() string {
	switch o {
	case OutcomeIgnored:
		return "ignored"
	case OutcomeAdopted:
		return "adopted"
	case OutcomeMatched:
		return "matched"
	case OutcomeCorrected:
		return "corrected"
	default:
		return "unknown"
	}
}

// Result describes one call to OnAuthoritative.
type Result struct {
	Outcome  Outcome
	Tick     uint32
	Replayed int     // ticks re-simulated after a correction
	Error    float64 // pose distance between prediction and Authority
}

// ReconcileStats are running totals kept by a Reconciler.
type ReconcileStats struct {
	Adopted   int
	Matched   int
	Corrected int
	Ignored   int
	Replayed  int
	MaxError  float64
}

// Reconciler compares Authority snapshots against the Predictor's history and
// corrects the live state when they disagree. It must run on the goroutine
// that drives the Predictor.
type Reconciler struct {
	predictor *Predictor
	tolerance float64
	logger    *zap.Logger

	newest uint32
	seen   bool
	stats  ReconcileStats
}

// NewReconciler attaches a reconciler to p. Poses closer than tolerance
// count as equal; a tolerance of zero or less demands exact equality.
func NewReconciler(p *Predictor, tolerance float64, logger *zap.Logger) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{predictor: p, tolerance: tolerance, logger: logger}
}

// OnAuthoritative reconciles one Authority snapshot for the local entity.
func (r *Reconciler) OnAuthoritative(auth sim.Snapshot) Result {
	p := r.predictor
	res := Result{Tick: auth.Tick}

	if !auth.HasConverged {
		// Spawn pose. Only a baseline before the first predicted tick.
		if p.Started() {
			return r.finish(res, OutcomeIgnored)
		}
		p.state = auth.State
		return r.finish(res, OutcomeAdopted)
	}

	if r.seen && auth.Tick < r.newest {
		return r.finish(res, OutcomeIgnored)
	}
	r.seen = true
	r.newest = auth.Tick

	local, ok := p.history.Snapshot(auth.Tick)
	if !ok {
		p.state = auth.State
		if auth.Tick >= p.tick {
			p.tick = auth.Tick + 1
		}
		r.logger.Debug("adopted authority state",
			zap.Uint32("tick", auth.Tick),
			zap.Uint32("current", p.tick))
		return r.finish(res, OutcomeAdopted)
	}

	res.Error = sim.PoseDistance(local.State, auth.State)
	if sim.PoseEqual(local.State, auth.State, r.tolerance) {
		return r.finish(res, OutcomeMatched)
	}

	p.state = auth.State
	p.history.PutSnapshot(sim.Snapshot{Tick: auth.Tick, State: auth.State, HasConverged: true})
	for t := auth.Tick + 1; t < p.tick; t++ {
		in, ok := p.history.Input(t)
		if !ok {
			continue
		}
		p.state = p.step(p.state, in)
		p.history.PutSnapshot(sim.Snapshot{Tick: t, State: p.state, HasConverged: true})
		res.Replayed++
	}

	r.logger.Debug("corrected prediction",
		zap.Uint32("tick", auth.Tick),
		zap.Float64("error", res.Error),
		zap.Int("replayed", res.Replayed))
	return r.finish(res, OutcomeCorrected)
}

func (r *Reconciler) finish(res Result, o Outcome) Result {
	res.Outcome = o
	switch o {
	case OutcomeIgnored:
		r.stats.Ignored++
	case OutcomeAdopted:
		r.stats.Adopted++
	case OutcomeMatched:
		r.stats.Matched++
	case OutcomeCorrected:
		r.stats.Corrected++
		r.stats.Replayed += res.Replayed
	}
	if res.Error > r.stats.MaxError {
		r.stats.MaxError = res.Error
	}
	return res
}

func (r *Reconciler) Stats() ReconcileStats {
	return r.stats
}

// Reset forgets the newest reconciled tick, for a fresh session.
func (r *Reconciler) Reset() {
	r.newest = 0
	r.seen = false
	r.stats = ReconcileStats{}
}
