// Package notifications bridges prompts from the supervisor (or from the
// agent itself) to a Presenter and sends the user's choice back.
//
// Each request carries a de-duplication key. While a request with a given
// key is being presented, further requests with that key are dropped: they
// are neither queued nor answered. The key is released after the response
// has been sent, whatever its outcome.
package notifications
