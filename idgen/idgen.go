// Package idgen provides pluggable ID generation for docforge.
//
// Workspaces, artifacts, chat sessions and run events each take a Generator
// at construction so tests can pin identifiers.
package idgen

import (
	"crypto/rand"
	"fmt"

	"github.com/google/uuid"
)

// Generator produces unique string identifiers.
type Generator func() string

// NanoID returns a Generator of base-36 IDs with the given length. Artifact
// handles end up in download URLs, so they stay short and URL-safe.
func NanoID(length int) Generator {
	const alphabet = "0123456789abcdefghijklmnopqrstuvwxyz"
	// Largest multiple of 36 below 256; bytes above it are redrawn so every
	// symbol is equally likely.
	const limit = 252
	return func() string {
		out := make([]byte, 0, length)
		buf := make([]byte, length)
		for len(out) < length {
			if _, err := rand.Read(buf); err != nil {
				panic("idgen: crypto/rand failed: " + err.Error())
			}
			for _, b := range buf {
				if b >= limit {
					continue
				}
				out = append(out, alphabet[int(b)%len(alphabet)])
				if len(out) == length {
					break
				}
			}
		}
		return string(out)
	}
}

// UUIDv7 returns a Generator of RFC 9562 version 7 UUIDs (time-sortable).
func UUIDv7() Generator {
	return func() string {
		return uuid.Must(uuid.NewV7()).String()
	}
}

// Prefixed prepends a fixed prefix to every ID ("ws_", "art_", "chat_").
func Prefixed(prefix string, gen Generator) Generator {
	return func() string {
		return prefix + gen()
	}
}

// Sequence returns a deterministic Generator for tests: prefix1, prefix2, ...
// It is not safe for concurrent use.
func Sequence(prefix string) Generator {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("%s%d", prefix, n)
	}
}

// Default is UUIDv7.
var Default Generator = UUIDv7()
