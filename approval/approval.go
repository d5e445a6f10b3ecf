/*
Package approval resolves multi-step sign-off workflows.

PURPOSE:
  Purchase orders and invoices share the same approval shape: an ordered
  list of steps, each with a set of users allowed to resolve it. This
  package owns that shape and the rules for acting on it, so neither
  engine scatters membership checks across call sites.

RULES:
  - Steps resolve strictly in order. A later step cannot be approved while
    an earlier one is still pending.
  - Only a member of the current step's approver set may act on it.
  - Approving the last pending step yields OutcomeFullyApproved; the
    calling engine completes its own transition (status flip, ledger
    effect).
  - Rejecting any step yields OutcomeRejected and short-circuits the
    remaining steps. Rejection is terminal; there is no un-reject.

USAGE:
  outcome, err := approval.Resolve(po.Steps, &po.CurrentStep, userID, approval.DecisionApprove, now)
  if outcome == approval.OutcomeFullyApproved { ... }

SEE ALSO:
  - procurement/engine.go, invoice/engine.go: the two callers
*/
package approval

import (
	"time"

	"github.com/warp/budget-engine/ledger"
)

// =============================================================================
// STEP MODEL
// =============================================================================

// StepStatus is the resolution state of a single approval step.
type StepStatus string

const (
	StepPending  StepStatus = "pending"
	StepApproved StepStatus = "approved"
	StepRejected StepStatus = "rejected"
)

// ApproverSet is the set of users allowed to resolve a step.
type ApproverSet map[ledger.UserID]struct{}

// NewApproverSet builds a set from a list of user ids, dropping duplicates.
func NewApproverSet(users ...ledger.UserID) ApproverSet {
	set := make(ApproverSet, len(users))
	for _, u := range users {
		set[u] = struct{}{}
	}
	return set
}

// Contains reports whether the user may resolve this step.
func (a ApproverSet) Contains(u ledger.UserID) bool {
	_, ok := a[u]
	return ok
}

// List returns the members in unspecified order. Used for serialization.
func (a ApproverSet) List() []ledger.UserID {
	out := make([]ledger.UserID, 0, len(a))
	for u := range a {
		out = append(out, u)
	}
	return out
}

// Step is one stage in a sign-off sequence.
type Step struct {
	Approvers  ApproverSet
	Status     StepStatus
	ResolvedBy ledger.UserID
	ResolvedAt *time.Time
}

// NewStep creates a pending step with the given approvers.
func NewStep(approvers ...ledger.UserID) Step {
	return Step{Approvers: NewApproverSet(approvers...), Status: StepPending}
}

// =============================================================================
// DECISIONS AND OUTCOMES
// =============================================================================

type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
)

// Outcome tells the calling engine what the resolution means for the
// document as a whole.
type Outcome int

const (
	// OutcomeAdvanced: the step was approved and a later step is now current.
	OutcomeAdvanced Outcome = iota
	// OutcomeFullyApproved: every step is approved; the engine completes
	// the document transition.
	OutcomeFullyApproved
	// OutcomeRejected: the step was rejected; the document is terminally
	// rejected regardless of remaining steps.
	OutcomeRejected
)

// =============================================================================
// RESOLVER
// =============================================================================

// CanAct reports whether userID may resolve the current step: the index is
// in bounds, the step is still pending, and the user is in its approver set.
func CanAct(steps []Step, current int, userID ledger.UserID) bool {
	if current < 0 || current >= len(steps) {
		return false
	}
	step := steps[current]
	return step.Status == StepPending && step.Approvers.Contains(userID)
}

// Resolve applies the user's decision to the current step, mutating steps
// and current in place. Fails with ForbiddenError when CanAct is false.
func Resolve(steps []Step, current *int, userID ledger.UserID, decision Decision, at time.Time) (Outcome, error) {
	if !CanAct(steps, *current, userID) {
		return 0, &ledger.ForbiddenError{
			UserID: userID,
			Reason: "may not act on the current approval step",
		}
	}

	step := &steps[*current]
	step.ResolvedBy = userID
	step.ResolvedAt = &at

	if decision == DecisionReject {
		step.Status = StepRejected
		return OutcomeRejected, nil
	}

	step.Status = StepApproved
	*current++
	if *current >= len(steps) {
		return OutcomeFullyApproved, nil
	}
	return OutcomeAdvanced, nil
}

// Complete reports whether every step has been approved. A document created
// with zero steps is trivially complete.
func Complete(steps []Step) bool {
	for _, s := range steps {
		if s.Status != StepApproved {
			return false
		}
	}
	return true
}
