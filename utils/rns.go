// Package utils holds small helpers shared by the HTTP layer and the mirror
// worker: admin token handling and random identifiers.
package utils

import (
	"crypto/rand"
	"encoding/hex"

	"go.trai.ch/zerr"
)

const rnsCharset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// RNSLength is the length of identifiers returned by GenerateRNS.
const RNSLength = 12

// GenerateRNS returns a random alphanumeric string of RNSLength characters.
// Bytes at or above the largest multiple of the charset size are redrawn so
// every character is equally likely.
func GenerateRNS() (string, error) {
	const limit = 256 - 256%len(rnsCharset)

	out := make([]byte, 0, RNSLength)
	buf := make([]byte, RNSLength*2)
	for len(out) < RNSLength {
		if _, err := rand.Read(buf); err != nil {
			return "", zerr.Wrap(err, "failed to read random bytes")
		}
		for _, b := range buf {
			if int(b) >= limit {
				continue
			}
			out = append(out, rnsCharset[int(b)%len(rnsCharset)])
			if len(out) == RNSLength {
				break
			}
		}
	}
	return string(out), nil
}

// GenerateRandomHex returns n random bytes hex encoded.
func GenerateRandomHex(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", zerr.Wrap(err, "failed to read random bytes")
	}
	return hex.EncodeToString(b), nil
}
