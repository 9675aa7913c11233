package errs

import "fmt"

// Reason classifies a local validation failure.
type Reason string

const (
	ReasonInvalidParams     Reason = "invalid parameters"
	ReasonInsufficient      Reason = "insufficient resources"
	ReasonCapacityExceeded  Reason = "army capacity exceeded"
	ReasonCollision         Reason = "footprint collides with another building"
	ReasonOutOfBounds       Reason = "footprint outside grid"
	ReasonNoFreeBuilder     Reason = "no free builder"
	ReasonAlreadyUpgrading  Reason = "building already upgrading"
	ReasonMaxLevel          Reason = "building at max level"
	ReasonCountLimit        Reason = "building count limit reached"
	ReasonNoBarracks        Reason = "no available barracks"
	ReasonNotReady          Reason = "timer not finished"
	ReasonNotUpgrading      Reason = "building not upgrading"
	ReasonWorkerLimit       Reason = "worker limit reached"
	ReasonAlreadyTraining   Reason = "worker already training"
	ReasonNotTraining       Reason = "worker not training"
	ReasonNothingToCollect  Reason = "nothing to collect"
	ReasonNoBattle          Reason = "no active battle"
	ReasonOutsideDeployZone Reason = "outside deploy zone"
	ReasonNoTroops          Reason = "no troops of that type"
	ReasonNotConnected      Reason = "wallet not connected"
	ReasonShielded          Reason = "target is shielded"
	ReasonCooldown          Reason = "action on cooldown"
	ReasonUnknownEntity     Reason = "entity not found"
	ReasonNotSpawned        Reason = "player not spawned"
)

// ValidationError is a local precondition failure; no state was mutated and no I/O performed.
type ValidationError struct {
	Action string
	Reason Reason
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s: %s", e.Action, e.Reason)
}

// Invalid constructs a ValidationError.
func Invalid(action string, reason Reason) *ValidationError {
	return &ValidationError{Action: action, Reason: reason}
}

// SubmissionError reports a rejected or failed transaction after rollback.
type SubmissionError struct {
	Action string
	Err    error
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("submit %s: %v", e.Action, e.Err)
}

func (e *SubmissionError) Unwrap() error { return e.Err }

// SyncError reports a pull or subscribe failure; store contents are untouched.
type SyncError struct {
	Op  string
	Err error
}

func (e *SyncError) Error() string {
	return fmt.Sprintf("sync %s: %v", e.Op, e.Err)
}

func (e *SyncError) Unwrap() error { return e.Err }
