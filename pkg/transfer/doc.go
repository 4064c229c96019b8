// Package transfer runs remote file operations over SFTP, one isolated
// session per request.
//
// # Request lifecycle
//
// A [Handler] processes each [Request] in the same order:
//
//  1. look up the [ServerProfile] in the [Registry]
//  2. parse the [Operation]
//  3. resolve [Settings] and [Parameters] from the profile and the request
//     overrides
//  4. [Plan] the call, validating the payload and refusing dangerous paths
//     without any remote I/O
//  5. open a new [Session], execute the call, and close the session
//  6. build the [Response]
//
// Profiles are validated once when they are created and shared read-only
// afterwards. Everything derived from a request is allocated per request, so
// concurrent requests never observe each other's state.
//
// # Errors
//
// Failures are reported as [*Error] values classified by [Kind]. Use
// [KindOf] or the IsXxx helpers to inspect them:
//
//	resp := handler.Handle(ctx, "backup", req)
//	if resp.Failed() {
//		log.Printf("%s: %s", resp.Error.Kind, resp.Error.Message)
//	}
//
// Errors raised while closing a session are logged and never replace the
// primary error. Nothing is retried.
package transfer
