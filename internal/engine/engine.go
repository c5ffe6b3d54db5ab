package engine

import (
	"errors"
	"fmt"
	"time"

	"github.com/DoyleJ11/zawomons-gt/pkg/types"
)

var ErrInvalidTransition = errors.New("invalid transition")
var ErrUnsupportedInput = errors.New("unsupported input")

// ReturnDelay is how long a closed lobby stays on screen before going back to the list.
const ReturnDelay = 3 * time.Second

type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseCreating   Phase = "creating"
	PhaseJoining    Phase = "joining"
	PhaseConnecting Phase = "connecting"
	PhaseConnected  Phase = "connected"
	PhaseClosing    Phase = "closing"
	PhaseInGame     Phase = "in_game"
	PhaseClosed     Phase = "closed"
)

type Screen string

const (
	ScreenLobbyList Screen = "lobby_list"
	ScreenMenu      Screen = "menu"
	ScreenGame      Screen = "game"
)

type State struct {
	Phase    Phase
	Code     string
	Username string
	Guest    bool
	// Authenticated is set for a logged-in player; only they may create.
	Authenticated bool
	IsHost   bool
	IsReady  bool
	Snapshot *types.LobbySnapshot
	Alert    string
	// Version counts lobby_state snapshots applied.
	Version int
}

type InputType string

const (
	InCreateRequested    InputType = "CreateRequested"
	InJoinRequested      InputType = "JoinRequested"
	InRequestSucceeded   InputType = "RequestSucceeded"
	InRequestFailed      InputType = "RequestFailed"
	InSocketOpened       InputType = "SocketOpened"
	InSocketFailed       InputType = "SocketFailed"
	InSocketClosed       InputType = "SocketClosed"
	InServerEvent        InputType = "ServerEvent"
	InToggleReady        InputType = "ToggleReady"
	InStartRequested     InputType = "StartRequested"
	InStartFailed        InputType = "StartFailed"
	InLeaveRequested     InputType = "LeaveRequested"
	InReturnDelayElapsed InputType = "ReturnDelayElapsed"
	InSendChat           InputType = "SendChat"
	InUpdateSettings     InputType = "UpdateSettings"
)

/*
	CreateRequested  -> Creating
	JoinRequested    -> Joining
	RequestSucceeded -> Connecting  + Dial
	RequestFailed    -> Idle        (alert)
	SocketOpened     -> Connected   + Send(identify) for guests
	ServerEvent      -> lobby_state replaces the snapshot, lobby_closed -> Closing, game_started -> InGame
	ToggleReady      -> flip IsReady + Send(player_ready), no ack
	LeaveRequested   -> Closed      + CallLeave, CloseSocket, Navigate(menu)
*/

type Input struct {
	Type     InputType
	Code     string
	Snapshot *types.LobbySnapshot
	Msg      *types.ServerMessage
	Settings *types.LobbySettings
	// Text is the user-facing message for failures, or the chat text.
	Text string
	Err  error
}

type EffectType string

const (
	EffDial           EffectType = "Dial"
	EffSend           EffectType = "Send"
	EffCloseSocket    EffectType = "CloseSocket"
	EffCallStart      EffectType = "CallStart"
	EffCallLeave      EffectType = "CallLeave"
	EffScheduleReturn EffectType = "ScheduleReturn"
	EffNavigate       EffectType = "Navigate"
	EffNotify         EffectType = "Notify"
	EffLog            EffectType = "Log"
)

type LogLevel string

const (
	LevelDebug LogLevel = "debug"
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
)

type Effect struct {
	Type  EffectType
	Code  string
	Msg   *types.ClientMessage
	After time.Duration
	To    Screen
	Level LogLevel
	Text  string
	Err   error
}

func Apply(s State, in Input) ([]Effect, State, error) {
	if !Accepts(s.Phase, in.Type) {
		return nil, s, fmt.Errorf("%w: %s in %s", ErrInvalidTransition, in.Type, s.Phase)
	}

	newState := s

	switch in.Type {
	case InCreateRequested:
		if !s.Authenticated {
			newState.Alert = AlertLoginRequired
			return nil, newState, nil
		}
		newState.Phase = PhaseCreating
		newState.IsHost = true
		newState.Alert = ""
		return nil, newState, nil

	case InJoinRequested:
		code := NormalizeCode(in.Code)
		if !ValidCode(code) {
			newState.Alert = AlertInvalidCode
			return nil, newState, nil
		}
		newState.Phase = PhaseJoining
		newState.Code = code
		newState.IsHost = false
		newState.Alert = ""
		return nil, newState, nil

	case InRequestSucceeded:
		if s.Phase == PhaseCreating {
			if in.Snapshot == nil || in.Snapshot.Code == "" {
				newState = resetToIdle(s)
				newState.Alert = AlertCreateFailed
				return nil, newState, nil
			}
			newState.Code = in.Snapshot.Code
		}
		newState.Phase = PhaseConnecting
		newState.IsReady = false
		return []Effect{{Type: EffDial, Code: newState.Code}}, newState, nil

	case InRequestFailed:
		newState = resetToIdle(s)
		newState.Alert = in.Text
		if newState.Alert == "" {
			newState.Alert = fallbackFor(s.Phase)
		}
		return []Effect{logEffect(LevelWarn, "lobby request failed", in.Err)}, newState, nil

	case InSocketOpened:
		newState.Phase = PhaseConnected
		effects := []Effect{logEffect(LevelInfo, "lobby socket connected", nil)}
		if s.Guest {
			msg := types.Identify(s.Username)
			effects = append(effects, Effect{Type: EffSend, Msg: &msg})
		}
		return effects, newState, nil

	case InSocketFailed:
		newState.Phase = PhaseClosed
		newState.Alert = AlertConnectFailed
		return []Effect{logEffect(LevelError, "lobby socket failed", in.Err)}, newState, nil

	case InSocketClosed:
		if isTerminal(s.Phase) {
			return nil, s, nil
		}
		newState.Phase = PhaseClosed
		newState.Alert = AlertDisconnected
		return []Effect{logEffect(LevelWarn, "lobby socket closed", in.Err)}, newState, nil

	case InServerEvent:
		if in.Msg == nil {
			return nil, s, fmt.Errorf("%w: server event without message", ErrUnsupportedInput)
		}
		return applyServerMessage(s, *in.Msg)

	case InToggleReady:
		if s.IsHost {
			return nil, s, fmt.Errorf("%w: host has no ready control", ErrInvalidTransition)
		}
		newState.IsReady = !s.IsReady
		msg := types.PlayerReady(newState.IsReady, s.Username)
		return []Effect{{Type: EffSend, Msg: &msg}}, newState, nil

	case InStartRequested:
		if !s.IsHost {
			return nil, s, fmt.Errorf("%w: only the host can start", ErrInvalidTransition)
		}
		if s.Snapshot == nil || !s.Snapshot.CanStart {
			newState.Alert = AlertCannotStart
			return nil, newState, nil
		}
		newState.Alert = ""
		return []Effect{{Type: EffCallStart, Code: s.Code}}, newState, nil

	case InStartFailed:
		newState.Alert = in.Text
		if newState.Alert == "" {
			newState.Alert = AlertStartFailed
		}
		return []Effect{logEffect(LevelWarn, "start game failed", in.Err)}, newState, nil

	case InLeaveRequested:
		newState.Phase = PhaseClosed
		effects := []Effect{
			{Type: EffCallLeave, Code: s.Code},
			{Type: EffCloseSocket},
			{Type: EffNavigate, To: ScreenMenu},
		}
		return effects, newState, nil

	case InReturnDelayElapsed:
		newState.Phase = PhaseClosed
		return []Effect{{Type: EffNavigate, To: ScreenLobbyList}}, newState, nil

	case InSendChat:
		if in.Text == "" {
			return nil, s, nil
		}
		msg := types.ChatMessage(s.Username, in.Text)
		return []Effect{{Type: EffSend, Msg: &msg}}, newState, nil

	case InUpdateSettings:
		if !s.IsHost {
			return nil, s, fmt.Errorf("%w: only the host can change settings", ErrInvalidTransition)
		}
		if in.Settings == nil || in.Settings.Empty() {
			return nil, s, nil
		}
		msg := types.SettingsUpdate(*in.Settings)
		return []Effect{{Type: EffSend, Msg: &msg}}, newState, nil

	default:
		return nil, s, ErrUnsupportedInput
	}
}

func applyServerMessage(s State, msg types.ServerMessage) ([]Effect, State, error) {
	newState := s

	switch msg.Type {
	case types.MsgLobbyState:
		if msg.Lobby == nil {
			return []Effect{logEffect(LevelWarn, "lobby_state without lobby", nil)}, s, nil
		}
		newState.Snapshot = cloneSnapshot(msg.Lobby)
		newState.Version++
		return nil, newState, nil

	case types.MsgPlayerJoined:
		name := ""
		if msg.Player != nil {
			name = msg.Player.DisplayName
		}
		return []Effect{
			logEffect(LevelInfo, "player joined: "+name, nil),
			{Type: EffNotify, Text: name + " joined"},
		}, s, nil

	case types.MsgPlayerLeft:
		return []Effect{
			logEffect(LevelInfo, fmt.Sprintf("player left: %d", msg.PlayerID), nil),
			{Type: EffNotify, Text: fmt.Sprintf("player %d left", msg.PlayerID)},
		}, s, nil

	case types.MsgChat:
		line := msg.Username + ": " + msg.Message
		return []Effect{
			logEffect(LevelDebug, "chat "+line, nil),
			{Type: EffNotify, Text: line},
		}, s, nil

	case types.MsgLobbyClosed:
		newState.Phase = PhaseClosing
		newState.Alert = msg.Message
		if newState.Alert == "" {
			newState.Alert = AlertLobbyClosed
		}
		return []Effect{
			{Type: EffCloseSocket},
			{Type: EffScheduleReturn, After: ReturnDelay},
		}, newState, nil

	case types.MsgGameStarted:
		newState.Phase = PhaseInGame
		if msg.Lobby != nil {
			newState.Snapshot = cloneSnapshot(msg.Lobby)
		}
		return []Effect{
			logEffect(LevelInfo, "game started", nil),
			{Type: EffCloseSocket},
			{Type: EffNavigate, To: ScreenGame},
		}, newState, nil

	default:
		return []Effect{logEffect(LevelDebug, "ignoring server message "+string(msg.Type), nil)}, s, nil
	}
}

func resetToIdle(s State) State {
	s.Phase = PhaseIdle
	s.Code = ""
	s.IsHost = false
	s.IsReady = false
	s.Snapshot = nil
	return s
}

func fallbackFor(p Phase) string {
	if p == PhaseCreating {
		return AlertCreateFailed
	}
	return AlertJoinFailed
}

func logEffect(level LogLevel, text string, err error) Effect {
	return Effect{Type: EffLog, Level: level, Text: text, Err: err}
}
