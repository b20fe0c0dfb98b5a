// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package auth provides password hashing and signed password-reset tokens.
package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/crypto/pbkdf2"
)

// PBKDF2 parameters.
const (
	PBKDF2Method     = "pbkdf2:sha256"
	PBKDF2Iterations = 600000
	PBKDF2KeyLen     = 32
	PBKDF2SaltLen    = 16
)

// saltChars is the salt alphabet. The salt is stored as text and its bytes
// are fed to PBKDF2 as-is, which keeps hashes readable by Werkzeug.
const saltChars = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// MinPasswordLength is the minimum number of characters in a password.
const MinPasswordLength = 8

var (
	// ErrMalformedHash is returned when an encoded hash cannot be parsed.
	ErrMalformedHash = errors.New("malformed password hash")
	// ErrPasswordTooShort is returned for passwords under MinPasswordLength characters.
	ErrPasswordTooShort = errors.New("password too short")
)

// CheckPasswordLength counts characters, not bytes.
func CheckPasswordLength(password string) error {
	if utf8.RuneCountInString(password) < MinPasswordLength {
		return ErrPasswordTooShort
	}
	return nil
}

// parsedHash is the decoded form of "pbkdf2:sha256:<iterations>$<salt>$<hash>".
type parsedHash struct {
	iterations int
	salt       []byte
	hash       []byte
}

func parseHash(encodedHash string) (parsedHash, error) {
	parts := strings.Split(encodedHash, "$")
	if len(parts) != 3 {
		return parsedHash{}, ErrMalformedHash
	}

	iterStr, ok := strings.CutPrefix(parts[0], PBKDF2Method+":")
	if !ok {
		return parsedHash{}, fmt.Errorf("%w: unsupported method %q", ErrMalformedHash, parts[0])
	}

	iterations, err := strconv.Atoi(iterStr)
	if err != nil || iterations <= 0 {
		return parsedHash{}, fmt.Errorf("%w: bad iteration count", ErrMalformedHash)
	}

	if parts[1] == "" {
		return parsedHash{}, fmt.Errorf("%w: empty salt", ErrMalformedHash)
	}

	hash, err := hex.DecodeString(parts[2])
	if err != nil || len(hash) == 0 {
		return parsedHash{}, fmt.Errorf("%w: decoding hash", ErrMalformedHash)
	}

	return parsedHash{iterations: iterations, salt: []byte(parts[1]), hash: hash}, nil
}

// NeedsRehash checks whether an encoded hash uses different parameters than
// the current defaults. Returns true if the hash should be re-created.
func NeedsRehash(encodedHash string) bool {
	p, err := parseHash(encodedHash)
	if err != nil {
		return true
	}
	return p.iterations != PBKDF2Iterations || len(p.hash) != PBKDF2KeyLen
}

// genSalt returns n random characters from saltChars.
func genSalt(n int) (string, error) {
	// Bytes at or above limit are discarded to keep the pick unbiased.
	limit := byte(256 - 256%len(saltChars))

	salt := make([]byte, 0, n)
	buf := make([]byte, n)
	for len(salt) < n {
		if _, err := rand.Read(buf); err != nil {
			return "", err
		}
		for _, b := range buf {
			if b < limit && len(salt) < n {
				salt = append(salt, saltChars[int(b)%len(saltChars)])
			}
		}
	}
	return string(salt), nil
}

// hashWithIterations derives a PBKDF2-HMAC-SHA256 key with a fresh random salt.
func hashWithIterations(password string, iterations int) (string, error) {
	salt, err := genSalt(PBKDF2SaltLen)
	if err != nil {
		return "", fmt.Errorf("generating salt: %w", err)
	}

	key := pbkdf2.Key([]byte(password), []byte(salt), iterations, PBKDF2KeyLen, sha256.New)

	return fmt.Sprintf("%s:%d$%s$%s", PBKDF2Method, iterations, salt, hex.EncodeToString(key)), nil
}

// HashPassword creates a salted PBKDF2-HMAC-SHA256 hash of the password.
// Returns encoded hash in format: pbkdf2:sha256:600000$salt$hash
func HashPassword(password string) (string, error) {
	return hashWithIterations(password, PBKDF2Iterations)
}

// CheckPassword verifies a password against an encoded PBKDF2 hash.
// Uses constant-time comparison to prevent timing attacks.
func CheckPassword(password, encodedHash string) (bool, error) {
	p, err := parseHash(encodedHash)
	if err != nil {
		return false, err
	}

	key := pbkdf2.Key([]byte(password), p.salt, p.iterations, len(p.hash), sha256.New)
	return subtle.ConstantTimeCompare(key, p.hash) == 1, nil
}
