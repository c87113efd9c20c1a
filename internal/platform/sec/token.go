// Copyright (c) 2026 Voltgrid. All rights reserved.
// Author: platform@voltgrid.io

package sec

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
)

// GenerateOpaqueToken returns a URL-safe random token of byteLength entropy bytes.
//
// Used for single-use verification tokens and invitation codes. The raw value
// is sent to the user exactly once; only its digest may be logged.
func GenerateOpaqueToken(byteLength int) (string, error) {
	buf := make([]byte, byteLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("sec: failed to generate token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// DigestToken returns the hex-encoded SHA-256 digest of an opaque token.
//
// Tokens are stored digested so a database leak does not expose usable
// verification links or invitation codes.
func DigestToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
