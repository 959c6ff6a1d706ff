// Package engine dispatches inbound gateway requests. It validates the
// request, resolves the provider, builds the upstream request and then
// either relays the stream immediately (generate) or admits it through the
// bounded task queue (batchGenerate). Every failure is reported to the
// caller as exactly one error event on the request's channel.
package engine
