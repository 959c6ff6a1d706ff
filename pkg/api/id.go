package api

import (
	"crypto/rand"
	"strings"
)

// Identifiers are a kind prefix followed by idLength random alphanumerics.
const (
	idLength = 24
	alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	streamIDPrefix = "strm_"
	taskIDPrefix   = "task_"
)

// NewStreamID returns a fresh stream ID ("strm_" + 24 alphanumerics).
// Stream IDs are handed to callers and accepted back for cancellation.
func NewStreamID() string { return newID(streamIDPrefix) }

// NewTaskID returns a fresh queue task ID ("task_" + 24 alphanumerics).
func NewTaskID() string { return newID(taskIDPrefix) }

// ValidateStreamID reports whether id has the shape of a stream ID.
func ValidateStreamID(id string) bool { return validID(id, streamIDPrefix) }

// ValidateTaskID reports whether id has the shape of a task ID.
func ValidateTaskID(id string) bool { return validID(id, taskIDPrefix) }

func newID(prefix string) string {
	var buf [idLength]byte
	if _, err := rand.Read(buf[:]); err != nil {
		panic("crypto/rand failed: " + err.Error())
	}
	// 248 is the largest multiple of 62 below 256.
	for i := range buf {
		for buf[i] >= 248 {
			var one [1]byte
			if _, err := rand.Read(one[:]); err != nil {
				panic("crypto/rand failed: " + err.Error())
			}
			buf[i] = one[0]
		}
		buf[i] = alphabet[int(buf[i])%len(alphabet)]
	}
	return prefix + string(buf[:])
}

func validID(id, prefix string) bool {
	rest, ok := strings.CutPrefix(id, prefix)
	if !ok || len(rest) != idLength {
		return false
	}
	for i := 0; i < len(rest); i++ {
		if strings.IndexByte(alphabet, rest[i]) < 0 {
			return false
		}
	}
	return true
}
