package main

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const ticketExpiry = 60 * time.Second

// TicketIssuer signs and validates redirect claim tickets. A matched player
// redirected to another node presents the ticket with claim_spot so the
// target node can trust the (room, identity) pair without a shared login.
type TicketIssuer struct {
	secret []byte
}

// secretSource is where the issuer persists its signing key so every node
// validates every node's tickets.
type secretSource interface {
	GetSetting(key string) string
	SetSetting(key, value string) error
}

// NewTicketIssuer loads the shared signing secret, generating and persisting
// one if none exists yet.
func NewTicketIssuer(store secretSource) *TicketIssuer {
	return &TicketIssuer{secret: loadOrCreateSecret(store)}
}

func loadOrCreateSecret(store secretSource) []byte {
	if store != nil {
		if h := store.GetSetting("ticket_secret"); h != "" {
			if b, err := hex.DecodeString(h); err == nil && len(b) == 32 {
				return b
			}
		}
	}
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		panic("failed to generate ticket secret: " + err.Error())
	}
	if store != nil {
		if err := store.SetSetting("ticket_secret", hex.EncodeToString(secret)); err != nil {
			Log.Warnw("could not persist ticket secret", "err", err)
		}
	}
	return secret
}

// Issue creates a short-lived ticket binding an identity to a room slot.
func (ti *TicketIssuer) Issue(roomID, username string) (string, error) {
	claims := jwt.MapClaims{
		"room": roomID,
		"usr":  username,
		"exp":  time.Now().Add(ticketExpiry).Unix(),
		"iat":  time.Now().Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(ti.secret)
}

// Validate checks a ticket and returns (roomID, username, error).
func (ti *TicketIssuer) Validate(tokenStr string) (string, string, error) {
	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method")
		}
		return ti.secret, nil
	})
	if err != nil {
		return "", "", err
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return "", "", fmt.Errorf("invalid ticket")
	}
	roomID, ok := claims["room"].(string)
	if !ok {
		return "", "", fmt.Errorf("invalid ticket claims")
	}
	username, ok := claims["usr"].(string)
	if !ok {
		return "", "", fmt.Errorf("invalid ticket claims")
	}
	return roomID, username, nil
}
