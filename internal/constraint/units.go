package constraint

import (
	"fmt"
	"strconv"
	"strings"
)

// parseQuantity splits a value like "2GHz" or "4GB" into its numeric
// prefix and unit suffix.
func parseQuantity(s string) (value float64, unit string, err error) {
	i := 0
	for i < len(s) && (s[i] == '.' || s[i] == '-' || (s[i] >= '0' && s[i] <= '9')) {
		i++
	}
	if i == 0 {
		return 0, "", fmt.Errorf("quantity %q has no numeric prefix", s)
	}
	value, err = strconv.ParseFloat(s[:i], 64)
	if err != nil {
		return 0, "", fmt.Errorf("parsing numeric prefix of %q: %w", s, err)
	}
	unit = strings.TrimSpace(s[i:])
	return value, unit, nil
}

// quantityFitsWithin reports whether required <= available, both unit
// quantity strings (e.g. "2GHz" <= "4GHz"). Mismatched units, or either
// value failing to parse, are treated as not fitting rather than as an
// error — the requirement key is simply not satisfied by that target.
func quantityFitsWithin(required, available string) bool {
	reqVal, reqUnit, err := parseQuantity(required)
	if err != nil {
		return false
	}
	availVal, availUnit, err := parseQuantity(available)
	if err != nil {
		return false
	}
	if !strings.EqualFold(reqUnit, availUnit) {
		return false
	}
	return reqVal <= availVal
}

// toQuantityString coerces a requirement value of unknown dynamic type
// (string, or a plain number from YAML) to a quantity string.
func toQuantityString(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case int, int64, float64:
		return fmt.Sprint(t), true
	case fmt.Stringer:
		return t.String(), true
	default:
		return "", false
	}
}

// toInt coerces a requirement value of unknown dynamic type (int,
// float64, or numeric string, as YAML may decode any of these) to an int.
func toInt(v any) (int, bool) {
	switch t := v.(type) {
	case int:
		return t, true
	case int64:
		return int(t), true
	case float64:
		return int(t), true
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(t))
		if err != nil {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}

// toStringValue coerces a requirement value to a plain string for
// equality-based requirement keys (zone, service).
func toStringValue(v any) (string, bool) {
	s, ok := v.(string)
	return s, ok
}
