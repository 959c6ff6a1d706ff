// Package provider describes the upstream text-generation providers the
// gateway can talk to and turns a logical [api.Payload] into a ready-to-send
// upstream [Request].
//
// Providers speak one of two streaming wire formats ([OpenAIStyle] or
// [AnthropicStyle]). The format is derived deterministically from the
// provider preset and decides both the request body shape and how response
// frames are interpreted by the stream package.
package provider
