// Package phone normalizes payer phone numbers to the gateway's canonical
// national format: country code followed by a nine-digit subscriber number.
package phone

import (
	"regexp"
	"strings"

	"settlement-engine/pkg/apperror"
)

// CountryCode is the dialing prefix every canonical number starts with.
const CountryCode = "254"

var canonicalRe = regexp.MustCompile(`^` + CountryCode + `\d{9}$`)

var stripper = strings.NewReplacer(" ", "", "\t", "", "\n", "", "\r", "", "-", "", "(", "", ")", "")

// Normalize converts raw user input into the canonical 2547XXXXXXXX form.
//
//	0712345678     -> 254712345678
//	0112345678     -> 254112345678
//	712345678      -> 254712345678
//	+254712345678  -> 254712345678
//
// Anything that does not end up as the country code plus exactly nine digits
// is rejected with a validation error quoting the original input.
func Normalize(raw string) (string, error) {
	s := stripper.Replace(raw)
	s = strings.TrimPrefix(s, "+")

	if s == "" {
		return "", apperror.ErrInvalidPhone(raw, "phone number is required")
	}

	switch {
	case strings.HasPrefix(s, "07") || strings.HasPrefix(s, "01"):
		s = CountryCode + s[1:]
	case s[0] == '7' || s[0] == '1':
		s = CountryCode + s
	case !strings.HasPrefix(s, CountryCode):
		s = CountryCode + strings.TrimLeft(s, "0")
	}

	if !canonicalRe.MatchString(s) {
		return "", apperror.ErrInvalidPhone(raw, "must be "+CountryCode+" followed by exactly 9 digits")
	}
	return s, nil
}

// Mask hides the middle digits for logs: 254712345678 -> 2547****5678.
func Mask(canonical string) string {
	if len(canonical) < 8 {
		return "****"
	}
	return canonical[:4] + "****" + canonical[len(canonical)-4:]
}
