package approval_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/budget-engine/approval"
	"github.com/warp/budget-engine/ledger"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func threeSteps() []approval.Step {
	return []approval.Step{
		approval.NewStep("producer"),
		approval.NewStep("line-producer", "upm"),
		approval.NewStep("studio"),
	}
}

var at = time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)

// =============================================================================
// CAN-ACT TESTS
// =============================================================================

func TestCanAct_MemberOfCurrentStep(t *testing.T) {
	steps := threeSteps()

	assert.True(t, approval.CanAct(steps, 0, "producer"))
	assert.False(t, approval.CanAct(steps, 0, "studio"), "member of a later step may not act now")
	assert.False(t, approval.CanAct(steps, 0, "stranger"))
}

func TestCanAct_OutOfBoundsIndex(t *testing.T) {
	steps := threeSteps()

	assert.False(t, approval.CanAct(steps, -1, "producer"))
	assert.False(t, approval.CanAct(steps, 3, "studio"))
	assert.False(t, approval.CanAct(nil, 0, "producer"))
}

func TestCanAct_ResolvedStepCannotBeReResolved(t *testing.T) {
	steps := threeSteps()
	steps[0].Status = approval.StepApproved

	assert.False(t, approval.CanAct(steps, 0, "producer"))
}

// =============================================================================
// RESOLUTION ORDER TESTS
// =============================================================================

func TestResolve_StrictOrdering(t *testing.T) {
	// GIVEN: A three-step chain with distinct approver sets
	// WHEN: Each step's approver acts in order
	// THEN: Outcomes advance, then fully approve on the last step

	steps := threeSteps()
	current := 0

	outcome, err := approval.Resolve(steps, &current, "producer", approval.DecisionApprove, at)
	require.NoError(t, err)
	assert.Equal(t, approval.OutcomeAdvanced, outcome)
	assert.Equal(t, 1, current)

	outcome, err = approval.Resolve(steps, &current, "upm", approval.DecisionApprove, at)
	require.NoError(t, err)
	assert.Equal(t, approval.OutcomeAdvanced, outcome)

	outcome, err = approval.Resolve(steps, &current, "studio", approval.DecisionApprove, at)
	require.NoError(t, err)
	assert.Equal(t, approval.OutcomeFullyApproved, outcome)
	assert.True(t, approval.Complete(steps))
}

func TestResolve_LaterApproverBlockedWhileEarlierPending(t *testing.T) {
	// GIVEN: Step 0 still pending
	// WHEN: The step-2 approver tries to act
	// THEN: ForbiddenError, nothing recorded

	steps := threeSteps()
	current := 0

	_, err := approval.Resolve(steps, &current, "studio", approval.DecisionApprove, at)
	require.Error(t, err)
	assert.ErrorIs(t, err, ledger.ErrForbidden)
	assert.Equal(t, 0, current)
	assert.Equal(t, approval.StepPending, steps[0].Status)
}

func TestResolve_NonApproverForbidden(t *testing.T) {
	steps := threeSteps()
	current := 0

	_, err := approval.Resolve(steps, &current, "accountant", approval.DecisionApprove, at)
	require.Error(t, err)

	var forbidden *ledger.ForbiddenError
	require.ErrorAs(t, err, &forbidden)
	assert.Equal(t, ledger.UserID("accountant"), forbidden.UserID)
}

func TestResolve_RecordsResolverAndTime(t *testing.T) {
	steps := threeSteps()
	current := 0

	_, err := approval.Resolve(steps, &current, "producer", approval.DecisionApprove, at)
	require.NoError(t, err)

	assert.Equal(t, approval.StepApproved, steps[0].Status)
	assert.Equal(t, ledger.UserID("producer"), steps[0].ResolvedBy)
	require.NotNil(t, steps[0].ResolvedAt)
	assert.Equal(t, at, *steps[0].ResolvedAt)
}

// =============================================================================
// REJECTION TESTS
// =============================================================================

func TestResolve_RejectionShortCircuits(t *testing.T) {
	// GIVEN: Step 0 approved, step 1 current
	// WHEN: A step-1 approver rejects
	// THEN: OutcomeRejected; step 2 stays pending and can no longer be acted on

	steps := threeSteps()
	current := 0

	_, err := approval.Resolve(steps, &current, "producer", approval.DecisionApprove, at)
	require.NoError(t, err)

	outcome, err := approval.Resolve(steps, &current, "line-producer", approval.DecisionReject, at)
	require.NoError(t, err)
	assert.Equal(t, approval.OutcomeRejected, outcome)
	assert.Equal(t, approval.StepRejected, steps[1].Status)
	assert.Equal(t, approval.StepPending, steps[2].Status)
	assert.False(t, approval.Complete(steps))

	// The rejected step is resolved; nobody can act on it again.
	assert.False(t, approval.CanAct(steps, current, "upm"))
}

func TestComplete_ZeroSteps(t *testing.T) {
	assert.True(t, approval.Complete(nil), "a document with no steps is trivially complete")
}

// =============================================================================
// APPROVER SET TESTS
// =============================================================================

func TestApproverSet_DropsDuplicates(t *testing.T) {
	set := approval.NewApproverSet("producer", "producer", "upm")

	assert.Len(t, set, 2)
	assert.True(t, set.Contains("producer"))
	assert.True(t, set.Contains("upm"))
	assert.False(t, set.Contains("studio"))
}

func TestApproverSet_AnyMemberMayAct(t *testing.T) {
	// GIVEN: A step with two approvers
	// WHEN: Either of them resolves it
	// THEN: Both are accepted; only one resolution is recorded

	steps := []approval.Step{approval.NewStep("line-producer", "upm")}
	current := 0

	outcome, err := approval.Resolve(steps, &current, "upm", approval.DecisionApprove, at)
	require.NoError(t, err)
	assert.Equal(t, approval.OutcomeFullyApproved, outcome)
	assert.Equal(t, ledger.UserID("upm"), steps[0].ResolvedBy)
}
