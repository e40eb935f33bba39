// Package stream keeps server-streaming calls to the supervisor alive.
//
// A Session is a single, non-restartable call. A Loop opens sessions one
// after another, hands every message to a Handler in arrival order and
// pauses between attempts. How a session ended decides what happens next:
//
//   - cancelled by the caller: the loop exits without pausing
//   - unimplemented by the server: the loop stops for good
//   - anything else: the loop logs, pauses and reconnects
//
// There is no retry limit; the owner ends a loop with Dispose and may Wait
// for it to settle.
package stream
