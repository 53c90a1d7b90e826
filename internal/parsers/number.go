package parsers

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"

	"github.com/haasonsaas/llmexperiment/pkg/models"
)

// ParseInt reads the first integer in the text. Decimal digits of any script
// count, so "٤٢" reads as 42. A minus sign counts only as the first consumed
// character, and scanning stops at the first non-digit once the number has
// started.
func ParseInt(text models.Value, _ Params) models.Value {
	s, ok := text.Text()
	if !ok || s == "" {
		return models.Absent(ErrNotText)
	}
	n, err := scanInt(s)
	if err != nil {
		return models.Absent(err)
	}
	return models.Present(n)
}

// ParseIntInScale is ParseInt bounded by the optional inclusive params
// scale_min and scale_max.
func ParseIntInScale(text models.Value, params Params) models.Value {
	lo, hasLo, err := intParam(params, "scale_min")
	if err != nil {
		return models.Absent(err)
	}
	hi, hasHi, err := intParam(params, "scale_max")
	if err != nil {
		return models.Absent(err)
	}

	v := ParseInt(text, nil)
	raw, ok := v.Get()
	if !ok {
		return v
	}
	n := raw.(int)
	if hasLo && n < lo {
		return models.Absent(fmt.Errorf("%w: %d < %d", ErrOutOfScale, n, lo))
	}
	if hasHi && n > hi {
		return models.Absent(fmt.Errorf("%w: %d > %d", ErrOutOfScale, n, hi))
	}
	return v
}

func scanInt(s string) (int, error) {
	var b strings.Builder
scan:
	for _, r := range s {
		switch {
		case r == '-' && b.Len() == 0:
			b.WriteRune(r)
		case unicode.IsDigit(r):
			b.WriteByte(byte('0' + digitValue(r)))
		case b.Len() > 0:
			break scan
		}
	}

	digits := b.String()
	if digits == "" || digits == "-" {
		return 0, ErrNoNumber
	}
	n, err := strconv.Atoi(digits)
	if err != nil {
		if errors.Is(err, strconv.ErrRange) {
			return 0, fmt.Errorf("%w: %s", ErrOutOfRange, digits)
		}
		return 0, fmt.Errorf("%w: %v", ErrNoNumber, err)
	}
	return n, nil
}

// digitValue returns the value of a decimal digit. Each script's digits are
// a contiguous run from zero to nine, and adjacent runs are whole blocks of
// ten, so the offset from the start of the run gives the value.
func digitValue(r rune) int {
	start := r
	for unicode.IsDigit(start - 1) {
		start--
	}
	return int(r-start) % 10
}

// intParam reads an optional integer parameter. YAML and JSON decoding hand
// numbers over as int, int64, uint64 or float64.
func intParam(params Params, key string) (int, bool, error) {
	raw, ok := params[key]
	if !ok || raw == nil {
		return 0, false, nil
	}
	switch v := raw.(type) {
	case int:
		return v, true, nil
	case int64:
		if v < math.MinInt || v > math.MaxInt {
			break
		}
		return int(v), true, nil
	case uint64:
		if v > math.MaxInt {
			break
		}
		return int(v), true, nil
	case float64:
		if v != math.Trunc(v) || v < math.MinInt || v >= math.MaxInt {
			break
		}
		return int(v), true, nil
	}
	return 0, false, fmt.Errorf("%w: %s=%v (%T)", ErrInvalidParam, key, raw, raw)
}
