// Package apikey authenticates gateway callers by static API key. Keys are
// stored as SHA-256 hashes and compared in constant time.
package apikey

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"net/http"

	"github.com/rhuss/streamgate/pkg/auth"
)

// HeaderName is the alternative header for clients that cannot send a
// bearer token.
const HeaderName = "X-API-Key"

// Entry is one configured key and the identity it grants.
type Entry struct {
	Key      string
	Identity auth.Identity
}

type hashedEntry struct {
	hash     [32]byte
	identity auth.Identity
}

// Authenticator validates keys against a static set.
type Authenticator struct {
	keys []hashedEntry
}

// New hashes entries immediately; plaintext keys are not retained.
func New(entries []Entry) *Authenticator {
	a := &Authenticator{keys: make([]hashedEntry, 0, len(entries))}
	for _, e := range entries {
		a.keys = append(a.keys, hashedEntry{
			hash:     sha256.Sum256([]byte(e.Key)),
			identity: e.Identity,
		})
	}
	return a
}

// Authenticate abstains when the request carries no key, votes Yes for a
// known key and No for an unknown one.
func (a *Authenticator) Authenticate(_ context.Context, r *http.Request) auth.Result {
	key := r.Header.Get(HeaderName)
	if key == "" {
		tok, ok := auth.BearerToken(r)
		if !ok {
			return auth.Result{Decision: auth.Abstain}
		}
		key = tok
	}
	if key == "" {
		return auth.Result{Decision: auth.No, Err: auth.ErrUnauthenticated}
	}

	sum := sha256.Sum256([]byte(key))
	match := -1
	for i := range a.keys {
		if subtle.ConstantTimeCompare(sum[:], a.keys[i].hash[:]) == 1 {
			match = i
		}
	}
	if match < 0 {
		return auth.Result{Decision: auth.No, Err: auth.ErrUnauthenticated}
	}

	id := a.keys[match].identity
	id.Scopes = append([]string(nil), id.Scopes...)
	return auth.Result{Decision: auth.Yes, Identity: &id}
}
