// Package gitpodapi is a minimal client for the workspace server API.
//
// Only openPort is implemented. It is what changes the visibility of an
// exposed port. The connection is a websocket carrying JSON-RPC 2.0,
// authenticated with a bearer token the supervisor issues on request.
package gitpodapi
