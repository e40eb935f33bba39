package tui

import (
	"wsagent/internal/notifications"
	"wsagent/internal/reporting"
)

// eventMsg carries a bus event for the activity log.
type eventMsg struct {
	event reporting.Event
}

// logLineMsg appends a plain line to the activity log.
type logLineMsg struct {
	line string
}

// promptMsg asks the user to pick one of req.Actions. The answer, or "" for
// a dismissal, is sent on reply exactly once.
type promptMsg struct {
	req   notifications.Request
	reply chan<- string
}

// promptWithdrawnMsg removes a prompt nobody waits for anymore.
type promptWithdrawnMsg struct {
	key string
}

// actionDoneMsg reports the result of a key-triggered port action.
type actionDoneMsg struct {
	text string
	err  error
}
