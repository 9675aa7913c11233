// Package service coordinates player actions: validate against the store, apply the expected
// outcome optimistically, submit the transaction and reconcile with the result.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/and161185/villagekeeper/internal/chain"
	"github.com/and161185/villagekeeper/internal/errs"
	"github.com/and161185/villagekeeper/internal/model"
	"github.com/and161185/villagekeeper/internal/store"
)

// State is a stage of one action run.
type State uint8

const (
	Idle State = iota
	Validating
	OptimisticallyApplied
	Submitting
	Confirmed
	RolledBack
)

var stateNames = [...]string{"Idle", "Validating", "OptimisticallyApplied", "Submitting", "Confirmed", "RolledBack"}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "Unknown"
}

// Action is one player intent.
type Action interface {
	// Name identifies the action in logs, spans and errors.
	Name() string
	// Prepare checks preconditions against tx, stages the expected outcome and returns the
	// calls to submit. Failures must be *errs.ValidationError and leave tx untouched.
	Prepare(tx *store.Tx, now int64) ([]chain.Call, error)
}

// reverter is implemented by actions that also keep state outside the store.
type reverter interface {
	Revert()
}

// recoverer is implemented by actions that treat some submission failures as success.
type recoverer interface {
	Recoverable(err error) bool
}

// Refresher pulls authoritative state after a delay.
type Refresher interface {
	ScheduleRefresh(owner string, delay time.Duration, kinds ...model.Kind)
}

// Result describes a finished run.
type Result struct {
	ID      uuid.UUID
	State   State
	Receipt chain.Receipt
}

// DefaultSafetyNet is the delay of the confirming refresh after a successful submission.
const DefaultSafetyNet = 5 * time.Second

// Runner drives actions through Validating, OptimisticallyApplied, Submitting and then
// Confirmed or RolledBack.
type Runner struct {
	st        *store.Store
	sub       chain.Submitter
	refresh   Refresher
	owner     func() string
	now       func() int64
	log       *zap.Logger
	tracer    trace.Tracer
	safetyNet time.Duration
	observe   func(id uuid.UUID, action string, s State)
}

// NewRunner constructs a runner for the wallet returned by owner.
// refresh may be nil to skip refreshes.
func NewRunner(st *store.Store, sub chain.Submitter, refresh Refresher, owner func() string, log *zap.Logger) *Runner {
	if log == nil {
		log = zap.NewNop()
	}
	return &Runner{
		st:        st,
		sub:       sub,
		refresh:   refresh,
		owner:     owner,
		now:       func() int64 { return time.Now().Unix() },
		log:       log,
		tracer:    otel.Tracer("github.com/and161185/villagekeeper/internal/service"),
		safetyNet: DefaultSafetyNet,
	}
}

// SetSafetyNet changes the confirming refresh delay. Zero or less disables it.
func (r *Runner) SetSafetyNet(d time.Duration) { r.safetyNet = d }

// Observe registers fn to be called on every state transition.
func (r *Runner) Observe(fn func(id uuid.UUID, action string, s State)) { r.observe = fn }

// Owner returns the connected wallet address, or "" when disconnected.
func (r *Runner) Owner() string { return model.NormalizeAddress(r.owner()) }

// Now returns the runner's clock in unix seconds.
func (r *Runner) Now() int64 { return r.now() }

// Store returns the store the runner mutates.
func (r *Runner) Store() *store.Store { return r.st }

func (r *Runner) connected(action string) (string, error) {
	owner := r.Owner()
	if owner == "" {
		return "", errs.Invalid(action, errs.ReasonNotConnected)
	}
	return owner, nil
}

// Run executes a. Validation failures return *errs.ValidationError with the store untouched.
// Submission failures roll back and return *errs.SubmissionError.
func (r *Runner) Run(ctx context.Context, a Action) (Result, error) {
	res := Result{ID: uuid.Must(uuid.NewV4())}
	name := a.Name()
	ctx, span := r.tracer.Start(ctx, "action "+name, trace.WithAttributes(
		attribute.String("action", name),
		attribute.String("run_id", res.ID.String()),
	))
	defer span.End()
	log := r.log.With(zap.String("action", name), zap.String("run", res.ID.String()))

	set := func(s State) {
		res.State = s
		span.AddEvent(s.String())
		if r.observe != nil {
			r.observe(res.ID, name, s)
		}
	}

	set(Validating)
	now := r.now()
	var calls []chain.Call
	ch, err := r.st.Mutate(func(tx *store.Tx) error {
		var perr error
		calls, perr = a.Prepare(tx, now)
		return perr
	})
	if err != nil {
		set(Idle)
		span.SetStatus(codes.Error, "validation")
		var ve *errs.ValidationError
		if !errors.As(err, &ve) {
			err = fmt.Errorf("prepare %s: %w", name, err)
		}
		log.Debug("action rejected", zap.Error(err))
		return res, err
	}
	set(OptimisticallyApplied)

	set(Submitting)
	rc, err := r.sub.Submit(ctx, calls)
	if err != nil {
		if rec, ok := a.(recoverer); ok && rec.Recoverable(err) {
			log.Info("submission failure treated as success", zap.Error(err))
			r.confirm(rc, ch, set, log)
			res.Receipt = rc
			return res, nil
		}
		r.rollback(a, ch, log)
		set(RolledBack)
		span.RecordError(err)
		span.SetStatus(codes.Error, "submission")
		log.Warn("action rolled back", zap.Error(err))
		return res, &errs.SubmissionError{Action: name, Err: err}
	}
	r.confirm(rc, ch, set, log)
	res.Receipt = rc
	return res, nil
}

func (r *Runner) confirm(rc chain.Receipt, ch store.Change, set func(State), log *zap.Logger) {
	set(Confirmed)
	log.Info("action confirmed", zap.String("tx", rc.TxHash))
	if r.refresh != nil && r.safetyNet > 0 {
		r.refresh.ScheduleRefresh(r.Owner(), r.safetyNet, ownedOnly(ch.Kinds())...)
	}
}

func (r *Runner) rollback(a Action, ch store.Change, log *zap.Logger) {
	if rv, ok := a.(reverter); ok {
		rv.Revert()
	}
	err := r.st.Rollback(ch)
	if err == nil {
		return
	}
	if errors.Is(err, errs.ErrStaleRollback) {
		log.Info("rollback superseded, refreshing", zap.Error(err))
		if r.refresh != nil {
			r.refresh.ScheduleRefresh(r.Owner(), 0, ownedOnly(ch.Kinds())...)
		}
		return
	}
	log.Error("rollback", zap.Error(err))
}

// ownedOnly keeps the families refreshed per owner; an empty result means all of them.
func ownedOnly(kinds []model.Kind) []model.Kind {
	var out []model.Kind
	for _, k := range kinds {
		if k != model.KindBattle {
			out = append(out, k)
		}
	}
	return out
}

func player(tx *store.Tx, action, owner string) (model.Player, error) {
	p, ok := tx.Player(owner)
	if !ok || !p.Spawned() {
		return model.Player{}, errs.Invalid(action, errs.ReasonNotSpawned)
	}
	return p, nil
}

func spend(p model.Player, cost model.Resources) model.Player {
	p.Diamond -= cost.Diamond
	p.Gas -= cost.Gas
	return p
}
