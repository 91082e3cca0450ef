package fundrequest

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/erp/fundflow/internal/domain/shared"
)

// Action identifies the kind of workflow operation recorded in history
type Action string

const (
	ActionCreate   Action = "create"
	ActionSubmit   Action = "submit"
	ActionReview   Action = "review"
	ActionValidate Action = "validate"
	ActionPay      Action = "pay"
	ActionReject   Action = "reject"
	ActionResubmit Action = "resubmit"
)

// gate describes who may perform a transition
type gate int

const (
	// gateRequester: only the original requester, no step role check
	gateRequester gate = iota
	// gateTargetStep: the role owning the step whose order equals the target ordinal
	gateTargetStep
	// gateReviewer: the owner of the current stage or of the stage the request
	// is waiting on
	gateReviewer
)

type rule struct {
	action Action
	gate   gate
}

type edge struct {
	from Status
	to   Status
}

// transitionTable is the single authority on which status changes exist and who may make them
var transitionTable = map[edge]rule{
	{StatusDraft, StatusSubmitted}:            {ActionSubmit, gateRequester},
	{StatusSubmitted, StatusAccountingReview}: {ActionReview, gateTargetStep},
	{StatusAccountingReview, StatusValidated}: {ActionValidate, gateTargetStep},
	{StatusValidated, StatusPaid}:             {ActionPay, gateTargetStep},
	{StatusSubmitted, StatusRejected}:         {ActionReject, gateReviewer},
	{StatusAccountingReview, StatusRejected}:  {ActionReject, gateReviewer},
	{StatusValidated, StatusRejected}:         {ActionReject, gateReviewer},
	{StatusRejected, StatusSubmitted}:         {ActionResubmit, gateRequester},
}

// CanTransition reports whether the table defines from -> to
func CanTransition(from, to Status) bool {
	_, ok := transitionTable[edge{from, to}]
	return ok
}

// NextStatuses returns the statuses reachable from the given status, in workflow order
func NextStatuses(from Status) []Status {
	var next []Status
	for _, to := range AllStatuses {
		if CanTransition(from, to) {
			next = append(next, to)
		}
	}
	return next
}

// ActionFor returns the action recorded for from -> to
func ActionFor(from, to Status) (Action, bool) {
	r, ok := transitionTable[edge{from, to}]
	return r.action, ok
}

// RequiredRole is the first of AllowedRoles: the step owner for forward
// transitions, the stage owner for rejections.
func RequiredRole(steps []WorkflowStep, from, to Status) (Role, error) {
	roles, err := AllowedRoles(steps, from, to)
	if err != nil {
		return "", err
	}
	return roles[0], nil
}

// AllowedRoles resolves the roles that may perform from -> to against the
// organization's workflow steps. Requester-gated transitions return RoleRequester.
//
// A forward transition into ordinal n belongs to the owner of step n. A
// rejection from ordinal c belongs to the owner of step c (the reviewer holding
// the request) and to the owner of step c+1 (the reviewer it is waiting on).
// Step 1 is the requester's own step, so a submitted request is rejected by
// step 2 only. A ConfigurationError is returned when none of the steps exists.
func AllowedRoles(steps []WorkflowStep, from, to Status) ([]Role, error) {
	r, ok := transitionTable[edge{from, to}]
	if !ok {
		return nil, shared.NewInvalidTransitionError(
			fmt.Sprintf("Cannot move a fund request from %s to %s", from, to))
	}

	var ordinals []int
	switch r.gate {
	case gateRequester:
		return []Role{RoleRequester}, nil
	case gateTargetStep:
		ordinals = []int{to.Ordinal()}
	case gateReviewer:
		c := from.Ordinal()
		if from == StatusSubmitted {
			ordinals = []int{c + 1}
		} else {
			ordinals = []int{c, c + 1}
		}
	}

	var roles []Role
	for _, n := range ordinals {
		if step, found := stepAt(steps, n); found && !slices.Contains(roles, step.ResponsibleRole) {
			roles = append(roles, step.ResponsibleRole)
		}
	}
	if len(roles) == 0 {
		return nil, shared.NewConfigurationError(
			fmt.Sprintf("No active workflow step with order %s is configured", joinInts(ordinals, " or ")))
	}
	return roles, nil
}

func joinInts(ns []int, sep string) string {
	parts := make([]string, len(ns))
	for i, n := range ns {
		parts[i] = strconv.Itoa(n)
	}
	return strings.Join(parts, sep)
}

// authorize checks that actor may move req from its current status to target
func authorize(req *FundRequest, target Status, actor Actor, steps []WorkflowStep) (Action, error) {
	from := req.Status
	r, ok := transitionTable[edge{from, target}]
	if !ok {
		return "", shared.NewInvalidTransitionError(
			fmt.Sprintf("Cannot move a fund request from %s to %s", from, target))
	}

	if r.gate == gateRequester {
		if actor.UserID != req.RequesterID {
			return "", shared.NewUnauthorizedError("Only the original requester can submit this fund request")
		}
		return r.action, nil
	}

	roles, err := AllowedRoles(steps, from, target)
	if err != nil {
		return "", err
	}
	if !slices.ContainsFunc(roles, actor.HasRole) {
		names := make([]string, len(roles))
		for i, role := range roles {
			names[i] = string(role)
		}
		return "", shared.NewUnauthorizedError(
			fmt.Sprintf("The %s role is required to %s this fund request", strings.Join(names, " or "), r.action))
	}
	return r.action, nil
}
