// Package card holds pure helpers for payment card numbers.
package card

import (
	"strings"
	"unicode"
)

const (
	NetworkVisa       = "visa"
	NetworkAmex       = "amex"
	NetworkMastercard = "mastercard"
	NetworkDiscover   = "discover"
	NetworkTroy       = "troy"
)

var prefixes = []struct {
	prefix  string
	network string
}{
	{"4", NetworkVisa},
	{"34", NetworkAmex},
	{"37", NetworkAmex},
	{"51", NetworkMastercard},
	{"52", NetworkMastercard},
	{"53", NetworkMastercard},
	{"54", NetworkMastercard},
	{"55", NetworkMastercard},
	{"6011", NetworkDiscover},
	{"9792", NetworkTroy},
}

// Normalize strips everything except digits.
func Normalize(number string) string {
	return strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, number)
}

// Network detects the card network from the leading digits. Unknown prefixes are visa.
func Network(number string) string {
	digits := Normalize(number)
	for _, p := range prefixes {
		if strings.HasPrefix(digits, p.prefix) {
			return p.network
		}
	}
	return NetworkVisa
}

// Mask replaces every digit except the last four with '*'. Non-digits are kept.
func Mask(number string) string {
	total := 0
	for _, r := range number {
		if unicode.IsDigit(r) {
			total++
		}
	}

	var b strings.Builder
	b.Grow(len(number))
	seen := 0
	for _, r := range number {
		if unicode.IsDigit(r) {
			seen++
			if total-seen >= 4 {
				b.WriteRune('*')
				continue
			}
		}
		b.WriteRune(r)
	}
	return b.String()
}
