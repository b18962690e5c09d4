package booking

// TransitionContext carries what else changed in the same edit. The flags feed
// transition guards instead of being recomputed inside each branch.
type TransitionContext struct {
	TranslatorChanged bool
	DueChanged        bool
	LangChanged       bool
}

// Effect names a side effect the caller must perform after applying a
// transition. The state machine itself never mutates anything.
type Effect int

const (
	// EffectResetCounters resets created_at to now and clears notification flags.
	EffectResetCounters Effect = iota
	// EffectNotifyReopened emails the requester and re-broadcasts to all
	// eligible translators.
	EffectNotifyReopened
	// EffectNotifyAccepted emails the requester that a translator accepted.
	EffectNotifyAccepted
	// EffectCompleteSession stamps end_at/session_time and emails the requester
	// and current translator with the formatted duration.
	EffectCompleteSession
	// EffectNotifyAssigned emails acceptance to requester and new translator and
	// schedules session-start reminders for both.
	EffectNotifyAssigned
	// EffectNotifyCancelledFromPending emails the requester the booking was
	// cancelled from pending/assigned.
	EffectNotifyCancelledFromPending
	// EffectNotifyWithdraw emails cancellation to requester and current translator.
	EffectNotifyWithdraw
)

// TransitionRequest describes one requested status change with the inputs its
// guards may need.
type TransitionRequest struct {
	Current      Status
	Requested    Status
	AdminComment string
	SessionTime  string
	Context      TransitionContext
}

// Outcome is the tagged result of evaluating a transition: either applied with
// a list of side effects, or rejected with no mutation at all.
type Outcome struct {
	Applied bool
	Effects []Effect
}

func rejected() Outcome { return Outcome{} }

func applied(effects ...Effect) Outcome {
	return Outcome{Applied: true, Effects: effects}
}

// Transition evaluates the status graph for one requested change. Same-status
// requests and failed guards are rejections, never errors: the caller declines
// to apply and moves on (best-effort multi-field update policy).
func Transition(req TransitionRequest) Outcome {
	if req.Current == req.Requested {
		return rejected()
	}

	switch req.Current {
	case StatusTimedOut:
		return fromTimedOut(req)
	case StatusCompleted:
		return fromCompleted(req)
	case StatusStarted:
		return fromStarted(req)
	case StatusPending:
		return fromPending(req)
	case StatusWithdrawAfter:
		return fromWithdrawAfter(req)
	case StatusAssigned:
		return fromAssigned(req)
	default:
		return rejected()
	}
}

func fromTimedOut(req TransitionRequest) Outcome {
	if req.Requested == StatusPending {
		return applied(EffectResetCounters, EffectNotifyReopened)
	}
	if req.Context.TranslatorChanged {
		return applied(EffectNotifyAccepted)
	}
	return rejected()
}

func fromCompleted(req TransitionRequest) Outcome {
	if req.Requested == StatusTimedOut && req.AdminComment != "" {
		return applied()
	}
	return rejected()
}

func fromStarted(req TransitionRequest) Outcome {
	if req.AdminComment == "" {
		return rejected()
	}
	if req.Requested == StatusCompleted {
		if req.SessionTime == "" {
			return rejected()
		}
		return applied(EffectCompleteSession)
	}
	return applied()
}

func fromPending(req TransitionRequest) Outcome {
	if req.Requested == StatusTimedOut && req.AdminComment == "" {
		return rejected()
	}
	if req.Requested == StatusAssigned && req.Context.TranslatorChanged {
		return applied(EffectNotifyAssigned)
	}
	return applied(EffectNotifyCancelledFromPending)
}

func fromWithdrawAfter(req TransitionRequest) Outcome {
	if req.Requested == StatusTimedOut && req.AdminComment != "" {
		return applied()
	}
	return rejected()
}

func fromAssigned(req TransitionRequest) Outcome {
	switch req.Requested {
	case StatusWithdrawBefore, StatusWithdrawAfter:
		return applied(EffectNotifyWithdraw)
	case StatusTimedOut:
		if req.AdminComment == "" {
			return rejected()
		}
		return applied()
	default:
		return rejected()
	}
}
