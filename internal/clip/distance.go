package clip

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/shinji-kodama/batch-clip/internal/model"
)

// distanceRegex matches a non-negative decimal number followed by an
// optional unit: "100", "2.5 km", "100 Meters", ".5mi".
var distanceRegex = regexp.MustCompile(`^(\d+(?:\.\d*)?|\.\d+)\s*([A-Za-z][A-Za-z ]*)?$`)

// ParseDistance parses a free-text buffer distance. Empty input and a zero
// value both yield the zero Distance, which disables buffering. Thousands
// separators are ignored. Anything else that is not "<number> [unit]"
// with a known linear unit returns model.ErrInvalidDistance.
func ParseDistance(s string) (model.Distance, error) {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", ""))
	if s == "" {
		return model.Distance{}, nil
	}

	m := distanceRegex.FindStringSubmatch(s)
	if m == nil {
		return model.Distance{}, fmt.Errorf("%w: %q", model.ErrInvalidDistance, s)
	}

	value, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return model.Distance{}, fmt.Errorf("%w: %q: %v", model.ErrInvalidDistance, s, err)
	}

	unit, ok := model.CanonicalUnit(m[2])
	if !ok {
		return model.Distance{}, fmt.Errorf("%w: unknown unit %q", model.ErrInvalidDistance, strings.TrimSpace(m[2]))
	}

	if value == 0 {
		return model.Distance{}, nil
	}
	return model.Distance{Value: value, Unit: unit}, nil
}

// LenientDistance recovers a distance from text that ParseDistance
// rejects. The ASCII digits of s are joined into an integer, with a '-'
// directly before the first digit kept as its sign. The first word that
// names a known unit becomes the unit. ok is false when s has no digits.
//
//	"-50"               → -50
//	"50 US Survey Feet" → 50 Feet
//	"Distance 50"       → 50
func LenientDistance(s string) (model.Distance, bool) {
	var digits strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c < '0' || c > '9' {
			continue
		}
		if digits.Len() == 0 && i > 0 && s[i-1] == '-' {
			digits.WriteByte('-')
		}
		digits.WriteByte(c)
	}
	if digits.Len() == 0 {
		return model.Distance{}, false
	}

	value, err := strconv.ParseFloat(digits.String(), 64)
	if err != nil {
		return model.Distance{}, false
	}
	if value == 0 {
		return model.Distance{}, true
	}

	d := model.Distance{Value: value}
	for _, word := range strings.FieldsFunc(s, func(r rune) bool { return !unicode.IsLetter(r) }) {
		if unit, ok := model.CanonicalUnit(word); ok {
			d.Unit = unit
			break
		}
	}
	return d, true
}
