// Package authtoken introspects the host-supplied bearer token without
// validating its signature — that is the service's job, not ours (spec §1,
// OAuth acquisition is an external collaborator). It only reads the `exp`
// claim so the session can warn the host before a handshake or RPC would
// fail against an already-expired token, generalizing the teacher's
// Client.scheduleAuthExpiry/handleAuthExpired (internal/ws/client.go) from
// "the server decides a session is stale" to "the client warns early".
package authtoken

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrNoExpiry is returned when the token carries no `exp` claim to watch.
var ErrNoExpiry = errors.New("authtoken: token has no exp claim")

// Expiry parses token's registered claims without verifying the signature
// and returns its expiry time.
func Expiry(token string) (time.Time, error) {
	claims := &jwt.RegisteredClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return time.Time{}, err
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, ErrNoExpiry
	}
	return claims.ExpiresAt.Time, nil
}

// Watcher schedules a one-shot callback at a token's expiry,
// the same pattern as the teacher's scheduleAuthExpiry/handleAuthExpired
// but pointed at a different clock: the client's own belief about when its
// token goes stale, not a server-issued invalidation.
type Watcher struct {
	timer *time.Timer
}

// Watch parses token's expiry and arranges for onExpired to run once it
// passes. Returns (nil, ErrNoExpiry) if the token carries no exp claim —
// callers may treat that as "nothing to watch" rather than a hard failure.
func Watch(token string, onExpired func()) (*Watcher, error) {
	expiry, err := Expiry(token)
	if err != nil {
		return nil, err
	}
	delay := time.Until(expiry)
	if delay <= 0 {
		go onExpired()
		return &Watcher{}, nil
	}
	return &Watcher{timer: time.AfterFunc(delay, onExpired)}, nil
}

// Stop cancels the pending callback, if any.
func (w *Watcher) Stop() {
	if w != nil && w.timer != nil {
		w.timer.Stop()
	}
}
