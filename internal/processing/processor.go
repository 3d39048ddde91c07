package processing

import (
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// MaxRootLength bounds a keyword root in characters.
const MaxRootLength = 100

const maxKeyLength = 50

var (
	ErrEmptyRoot       = errors.New("keyword root is empty")
	ErrRootTooLong     = fmt.Errorf("keyword root exceeds %d characters", MaxRootLength)
	ErrRootInvalidChar = errors.New("keyword root contains an invalid character")
)

var (
	whitespace     = regexp.MustCompile(`\s+`)
	unsafeFileChar = regexp.MustCompile(`[<>:"/\\|?*\s]`)
	underscores    = regexp.MustCompile(`_+`)
)

const invalidRootChars = `<>"'&%`

// NormalizeRoot trims a root and squeezes inner whitespace to single spaces.
func NormalizeRoot(raw string) string {
	return whitespace.ReplaceAllString(strings.TrimSpace(raw), " ")
}

// ValidateRoot normalizes raw and rejects roots the suggestion endpoint cannot take.
func ValidateRoot(raw string) (string, error) {
	root := NormalizeRoot(raw)
	if root == "" {
		return "", ErrEmptyRoot
	}
	if utf8.RuneCountInString(root) > MaxRootLength {
		return "", ErrRootTooLong
	}
	if i := strings.IndexAny(root, invalidRootChars); i >= 0 {
		return "", fmt.Errorf("%w: %q", ErrRootInvalidChar, root[i:i+1])
	}
	return root, nil
}

// CleanSuggestion trims surrounding whitespace. No other normalization is applied;
// deduplication downstream is exact-string.
func CleanSuggestion(raw string) string {
	return strings.TrimSpace(raw)
}

// SnapshotID hashes root and date into a deterministic document ID.
func SnapshotID(root, date string) string {
	s := sha1.Sum([]byte(root + "|" + date))
	return hex.EncodeToString(s[:])
}

// RootKey returns a filesystem-safe, collision-resistant name for a root.
// The readable prefix follows the root; the hash suffix keeps "a b" and "a_b" apart.
func RootKey(root string) string {
	sanitized := unsafeFileChar.ReplaceAllString(root, "_")
	sanitized = underscores.ReplaceAllString(sanitized, "_")
	sanitized = strings.Trim(sanitized, "_.")
	if utf8.RuneCountInString(sanitized) > maxKeyLength {
		sanitized = string([]rune(sanitized)[:maxKeyLength])
	}
	sum := sha1.Sum([]byte(root))
	suffix := hex.EncodeToString(sum[:4])
	if sanitized == "" {
		return suffix
	}
	return sanitized + "-" + suffix
}
