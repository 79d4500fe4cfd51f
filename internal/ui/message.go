package ui

import (
	tea "github.com/charmbracelet/bubbletea"
)

// MsgKind enumerates all message types in the console.
type MsgKind int

// Msg represents all possible messages in the TUI (Elm-style message union).
type Msg struct {
	kind MsgKind
	data any
}

var (
	_ tea.Msg = Msg{}
)

const (
	// MsgRefresh means the mirror, player or connectivity state changed.
	MsgRefresh MsgKind = iota
	// MsgActionDone carries the outcome of a user action.
	MsgActionDone
	// MsgClearNotice hides a notice unless a newer one replaced it.
	MsgClearNotice
)

type actionResult struct {
	notice string
	err    error
}

// refreshMsg is the constructor for [MsgRefresh]
func refreshMsg() Msg {
	return Msg{kind: MsgRefresh}
}

// actionDoneMsg is the constructor for [MsgActionDone]
func actionDoneMsg(notice string, err error) Msg {
	return Msg{kind: MsgActionDone, data: actionResult{notice: notice, err: err}}
}

// clearNoticeMsg is the constructor for [MsgClearNotice]
func clearNoticeMsg(seq int) Msg {
	return Msg{kind: MsgClearNotice, data: seq}
}
