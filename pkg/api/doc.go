// Package api defines the core protocol types for the streamgate gateway.
//
// It contains the downstream message shapes exchanged with callers over a
// channel (inbound [Request], outbound [Event]), the logical [Payload] that
// a request carries, the stream lifecycle state machine, and the structured
// [APIError] taxonomy shared by every component.
//
// The package performs no I/O. All types produce the JSON shapes callers
// exchange with the gateway:
//
//	inbound:  {"action":"generate"|"batchGenerate","payload":{...}}
//	outbound: {"type":"delta","data":"..."} | {"type":"done"} | {"type":"error","error":"..."}
package api
