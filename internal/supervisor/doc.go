// Package supervisor is the gRPC client of the workspace supervisor.
//
// The supervisor's messages are declared by hand in this package and
// encoded with protowire. Codec plugs them into gRPC, so no generated code
// is needed. Server streams are returned as stream.Session values.
package supervisor
