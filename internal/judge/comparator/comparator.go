// Package comparator decides whether program output matches the expected output.
package comparator

import (
	"math"
	"strconv"
	"strings"

	appErr "github.com/Majnu04/doflow-sub001/pkg/errors"
)

// Mode names a comparison strategy.
type Mode string

const (
	ModeExact      Mode = "exact"
	ModeTrimmed    Mode = "trimmed"
	ModeLines      Mode = "lines"
	ModeWhitespace Mode = "whitespace"
	ModeNumeric    Mode = "numeric"
)

const DefaultEpsilon = 1e-6

// Policy is a parsed comparison policy.
type Policy struct {
	Mode    Mode
	Epsilon float64
}

// Default is the policy used when a problem does not name one.
var Default = Policy{Mode: ModeTrimmed}

// String renders the policy in the form ParsePolicy accepts.
func (p Policy) String() string {
	if p.Mode == ModeNumeric && p.Epsilon > 0 && p.Epsilon != DefaultEpsilon {
		return string(p.Mode) + ":" + strconv.FormatFloat(p.Epsilon, 'g', -1, 64)
	}
	return string(p.Mode)
}

// ParsePolicy parses "exact", "trimmed", "lines", "whitespace", "numeric" or
// "numeric:<epsilon>". An empty name yields Default.
func ParsePolicy(raw string) (Policy, error) {
	raw = strings.ToLower(strings.TrimSpace(raw))
	if raw == "" {
		return Default, nil
	}
	name, arg, hasArg := strings.Cut(raw, ":")
	mode := Mode(name)
	switch mode {
	case ModeExact, ModeTrimmed, ModeLines, ModeWhitespace:
		if hasArg {
			return Policy{}, appErr.ValidationError("compare", "policy takes no argument")
		}
		return Policy{Mode: mode}, nil
	case ModeNumeric:
		eps := DefaultEpsilon
		if hasArg {
			v, err := strconv.ParseFloat(arg, 64)
			if err != nil || v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
				return Policy{}, appErr.ValidationError("compare", "invalid epsilon")
			}
			eps = v
		}
		return Policy{Mode: mode, Epsilon: eps}, nil
	default:
		return Policy{}, appErr.ValidationError("compare", "unknown policy "+name)
	}
}

// Compare reports whether actual matches expected under the policy.
func Compare(p Policy, actual, expected string) bool {
	switch p.Mode {
	case ModeExact:
		return actual == expected
	case ModeLines:
		return equalStrings(significantLines(actual), significantLines(expected))
	case ModeWhitespace:
		return equalStrings(strings.Fields(actual), strings.Fields(expected))
	case ModeNumeric:
		eps := p.Epsilon
		if eps <= 0 {
			eps = DefaultEpsilon
		}
		return numericEqual(strings.Fields(actual), strings.Fields(expected), eps)
	default:
		return Trimmed(actual) == Trimmed(expected)
	}
}

// Trimmed normalizes line endings and trims surrounding whitespace.
func Trimmed(s string) string {
	return strings.TrimSpace(normalizeNewlines(s))
}

func normalizeNewlines(s string) string {
	if !strings.ContainsRune(s, '\r') {
		return s
	}
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\r", "\n")
}

// significantLines drops per-line trailing whitespace and trailing blank lines.
func significantLines(s string) []string {
	lines := strings.Split(normalizeNewlines(s), "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	for len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func numericEqual(actual, expected []string, eps float64) bool {
	if len(actual) != len(expected) {
		return false
	}
	for i := range actual {
		if actual[i] == expected[i] {
			continue
		}
		a, errA := strconv.ParseFloat(actual[i], 64)
		e, errE := strconv.ParseFloat(expected[i], 64)
		if errA != nil || errE != nil || math.IsNaN(a) || math.IsNaN(e) {
			return false
		}
		diff := math.Abs(a - e)
		if diff <= eps {
			continue
		}
		if diff <= eps*math.Max(math.Abs(a), math.Abs(e)) {
			continue
		}
		return false
	}
	return true
}
