// Package shortid generates the short public codes used to look up
// contributions. Codes are human-typeable on purpose: visitors re-find their
// tile by entering the code shown after submission.
package shortid

import (
	"crypto/rand"
	"fmt"
	"regexp"
)

const (
	// Prefix brands every public code.
	Prefix = "HM-"
	// codeLen is the number of random characters after the prefix.
	codeLen = 6
	// alphabet excludes lowercase to keep codes case-insensitive for users.
	alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

var codePattern = regexp.MustCompile(`^HM-[A-Z0-9]{6}$`)

// New returns a fresh public code such as "HM-7QX2A9". Uniqueness is not
// guaranteed here; callers collision-check against the store.
func New() (string, error) {
	buf := make([]byte, codeLen)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	out := make([]byte, codeLen)
	for i, b := range buf {
		out[i] = alphabet[int(b)%len(alphabet)]
	}
	return Prefix + string(out), nil
}

// Valid reports whether s is a well-formed public code.
func Valid(s string) bool {
	return codePattern.MatchString(s)
}
