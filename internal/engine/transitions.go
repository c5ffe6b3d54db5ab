package engine

import "slices"

// Transitions lists the inputs each phase accepts. Anything else is an
// invalid transition and leaves the state alone.
var Transitions = map[Phase][]InputType{
	PhaseIdle: {
		InCreateRequested,
		InJoinRequested,
	},
	PhaseCreating: {
		InRequestSucceeded,
		InRequestFailed,
	},
	PhaseJoining: {
		InRequestSucceeded,
		InRequestFailed,
	},
	PhaseConnecting: {
		InSocketOpened,
		InSocketFailed,
		InSocketClosed,
		InLeaveRequested,
	},
	PhaseConnected: {
		InServerEvent,
		InToggleReady,
		InStartRequested,
		InStartFailed,
		InLeaveRequested,
		InSocketClosed,
		InSendChat,
		InUpdateSettings,
	},
	PhaseClosing: {
		InReturnDelayElapsed,
		InSocketClosed,
		InLeaveRequested,
	},
	PhaseInGame: {
		InSocketClosed,
	},
	PhaseClosed: {
		InSocketClosed,
	},
}

func Accepts(p Phase, t InputType) bool {
	return slices.Contains(Transitions[p], t)
}

func isTerminal(p Phase) bool {
	return p == PhaseClosing || p == PhaseInGame || p == PhaseClosed
}
