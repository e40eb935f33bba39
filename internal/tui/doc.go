// Package tui is the interactive ports view.
//
// It shows the port table with status, visibility and URL, the exposed
// ports summary, the state of both supervisor streams and an activity log
// fed from the event bus and the logger. Prompts from the supervisor and
// for newly exposed ports appear one at a time and are answered by number.
package tui
