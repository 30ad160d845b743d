// Package receipt — fingerprint derivation.
//
// The fingerprint identifies one physical receipt across submissions: the
// receipt timestamp truncated to minute precision plus the normalized drink
// items, hashed. Two photos of the same paper receipt collapse to the same
// fingerprint regardless of extraction item order or cosmetic whitespace.
package receipt

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/rebottle/go-recycle-backend/internal/domain"
)

// fingerprintVersion prefixes the hashed payload so the scheme can evolve
// without old hashes colliding with new ones.
const fingerprintVersion = "v1"

// minuteTimestampLen is the length of a minute-precision timestamp
// ("2006-01-02 15:04"). Shorter raw values cannot anchor a fingerprint.
const minuteTimestampLen = 16

var innerSpaceRE = regexp.MustCompile(`\s+`)

// Fingerprint derives the duplicate-detection key for a receipt.
//
// It returns ok=false when receiptTimeRaw is absent or shorter than a
// minute-precision timestamp; such receipts never occupy the global
// one-verified-per-fingerprint slot. Otherwise the timestamp is truncated
// to minute precision (seconds dropped), each drink item is normalized to a
// "name|capacity|amount" token, tokens are sorted lexicographically, and
// the joined payload is SHA-256 hashed (hex-encoded).
func Fingerprint(receiptTimeRaw string, items []domain.DrinkItem) (fp string, ok bool) {
	raw := strings.TrimSpace(receiptTimeRaw)
	if len(raw) < minuteTimestampLen {
		return "", false
	}
	minute := raw[:minuteTimestampLen]

	tokens := make([]string, 0, len(items))
	for _, it := range items {
		tokens = append(tokens, itemToken(it))
	}
	sort.Strings(tokens)

	payload := fingerprintVersion + "|" + minute + "|" + strings.Join(tokens, "||")
	sum := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:]), true
}

// itemToken normalizes one drink item: name lower-cased, trimmed, internal
// whitespace collapsed; capacity and amount as canonical digit parses
// (defaulting to 0 and 1 respectively).
func itemToken(it domain.DrinkItem) string {
	name := strings.ToLower(strings.TrimSpace(it.Name))
	name = innerSpaceRE.ReplaceAllString(name, " ")
	capacity := digitsOr(it.Capacity, 0)
	amount := digitsOr(it.Amount, 1)
	return name + "|" + strconv.Itoa(capacity) + "|" + strconv.Itoa(amount)
}

// digitsOr parses the digit characters of s as an integer, returning def
// when s contains no digits.
func digitsOr(s string, def int) int {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return def
	}
	n, err := strconv.Atoi(b.String())
	if err != nil {
		// more digits than fit in an int; fall back to the default
		return def
	}
	return n
}
