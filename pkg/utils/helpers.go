package utils

import (
	"crypto/rand"
	"encoding/hex"
)

// RandomHex generates a random hexadecimal string of length n
func RandomHex(n int) string {
	b := make([]byte, n)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// roomAlphabet leaves out characters that are easy to misread (0/O, 1/I).
const roomAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// RoomCode generates a random shareable room code of length n
func RoomCode(n int) string {
	b := make([]byte, n)
	_, _ = rand.Read(b)
	for i := range b {
		b[i] = roomAlphabet[int(b[i])%len(roomAlphabet)]
	}
	return string(b)
}
