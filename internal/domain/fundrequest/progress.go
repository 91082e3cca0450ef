package fundrequest

// StepState is the display state of a workflow step for a given request status
type StepState string

const (
	StepCompleted StepState = "completed"
	StepCurrent   StepState = "current"
	StepPending   StepState = "pending"
	StepRejected  StepState = "rejected"
)

// StepProgress pairs an active workflow step with its display state
type StepProgress struct {
	StepName        string    `json:"step_name"`
	StepOrder       int       `json:"step_order"`
	ResponsibleRole Role      `json:"responsible_role"`
	State           StepState `json:"state"`
}

// Project maps the active steps and a request status to per-step display states.
// rejectedFrom is the status the request held when it was rejected and is only
// consulted when status is rejected. With no active steps the result is empty.
func Project(steps []WorkflowStep, status Status, rejectedFrom Status) []StepProgress {
	active := ActiveSteps(steps)
	out := make([]StepProgress, 0, len(active))

	current := status.Ordinal()
	rejectedAt := RejectedOrdinal
	if status == StatusRejected && rejectedFrom != StatusRejected {
		rejectedAt = rejectedFrom.Ordinal()
	}

	for _, s := range active {
		p := StepProgress{
			StepName:        s.StepName,
			StepOrder:       s.StepOrder,
			ResponsibleRole: s.ResponsibleRole,
		}
		switch {
		case status == StatusRejected && s.StepOrder <= rejectedAt:
			p.State = StepRejected
		case status == StatusRejected:
			p.State = StepPending
		case s.StepOrder < current:
			p.State = StepCompleted
		case s.StepOrder == current:
			p.State = StepCurrent
		default:
			p.State = StepPending
		}
		out = append(out, p)
	}
	return out
}

// ProjectRequest is Project applied to a fund request
func ProjectRequest(steps []WorkflowStep, req *FundRequest) []StepProgress {
	var rejectedFrom Status
	if req.RejectedFromStatus != nil {
		rejectedFrom = *req.RejectedFromStatus
	}
	return Project(steps, req.Status, rejectedFrom)
}
