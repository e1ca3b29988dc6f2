package main

import (
	"encoding/base64"
	"fmt"

	qrcode "github.com/skip2/go-qrcode"
)

const (
	defaultRoomName = "Custom Battle"
	minCustomSize   = MinPlayers
	maxCustomSize   = MaxPlayers
	inviteQRSize    = 256
)

// InviteLink builds the shareable join URL for a room.
func InviteLink(publicURL, roomID string) string {
	if publicURL == "" {
		return roomID
	}
	return fmt.Sprintf("%s/?room=%s", publicURL, roomID)
}

// InviteQR renders the invite link as a base64 PNG for the room creator's
// client to display.
func InviteQR(link string) (string, error) {
	png, err := qrcode.Encode(link, qrcode.Medium, inviteQRSize)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(png), nil
}
