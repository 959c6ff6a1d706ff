// Package stream turns raw upstream response bytes into normalized text
// deltas.
//
// A Framer reassembles arbitrarily split network chunks into complete
// "data:" frames, and Extract interprets one frame payload according to the
// provider's wire format. Both are free of I/O so the relay can drive them
// from any reader.
package stream
