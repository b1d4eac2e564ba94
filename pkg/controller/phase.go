package controller

// Phase is where the reconcile loop currently is within a cycle.
type Phase string

const (
	PhaseIdle     Phase = "Idle"
	PhasePolling  Phase = "Polling"
	PhaseDeciding Phase = "Deciding"
	PhaseActing   Phase = "Acting"
)
