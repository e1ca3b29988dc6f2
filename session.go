package main

import "time"

// SessionArbiter enforces one live connection per account. Joining a room
// claims the account outright; heartbeats then prove the claim still holds.
// A connection whose heartbeat finds the token gone has been superseded by a
// newer login and is told to disconnect itself.
type SessionArbiter struct {
	store SessionStore
}

// NewSessionArbiter wraps the shared session store.
func NewSessionArbiter(store SessionStore) *SessionArbiter {
	return &SessionArbiter{store: store}
}

// Claim installs connID as the account's session token. The previous holder
// is not consulted: last login wins, the old session self-evicts on its next
// heartbeat.
func (sa *SessionArbiter) Claim(username, connID string) {
	if err := sa.store.ClaimSession(username, connID, time.Now()); err != nil {
		// Store unreachable: the claim is retried implicitly by the
		// next heartbeat; nothing else to do here.
		Log.Warnw("session claim failed", "user", username, "err", err)
	}
}

// Heartbeat refreshes the claim. It returns false only when the store
// positively reports that another connection now owns the account; store
// errors count as still-owned so an unreachable store never evicts anyone.
func (sa *SessionArbiter) Heartbeat(username, connID string) bool {
	ok, err := sa.store.Heartbeat(username, connID, time.Now())
	if err != nil {
		Log.Warnw("session heartbeat failed", "user", username, "err", err)
		return true
	}
	return ok
}

// Release marks the account offline if connID still holds it. Called on
// voluntary leave and disconnect; releasing a superseded token is a no-op.
func (sa *SessionArbiter) Release(username, connID string) {
	if username == "" {
		return
	}
	if err := sa.store.EndSession(username, connID); err != nil {
		Log.Warnw("session release failed", "user", username, "err", err)
	}
}
