package format

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var seqPadRe = regexp.MustCompile(`\{SEQ(\d+)\}`)

const DefaultNumberTemplate = "{YYYY}.{SEQ}"

// Number formats a business document number from a template, the
// numbering year, and the allocated sequence.
//
// This function is PURE:
// - No side effects
// - No DB access
// - Fully deterministic
func Number(template string, year, seq int) (string, error) {
	if template == "" {
		return "", fmt.Errorf("invoice number template is empty")
	}

	if year <= 0 {
		return "", fmt.Errorf("invalid invoice year: %d", year)
	}
	if seq <= 0 {
		return "", fmt.Errorf("invalid invoice sequence: %d", seq)
	}

	out := template

	// Year tokens
	out = strings.ReplaceAll(out, "{YYYY}", strconv.Itoa(year))
	out = strings.ReplaceAll(out, "{YY}", fmt.Sprintf("%02d", year%100))

	// Simple sequence
	out = strings.ReplaceAll(out, "{SEQ}", strconv.Itoa(seq))

	// Padded sequence
	out = seqPadRe.ReplaceAllStringFunc(out, func(m string) string {
		match := seqPadRe.FindStringSubmatch(m)
		if len(match) != 2 {
			return m // should never happen
		}

		width, err := strconv.Atoi(match[1])
		if err != nil || width <= 0 {
			return m
		}

		return fmt.Sprintf("%0*d", width, seq)
	})

	// Final safety check: unresolved tokens
	if strings.Contains(out, "{") || strings.Contains(out, "}") {
		return "", fmt.Errorf("unresolved token in invoice number format: %s", out)
	}

	return out, nil
}
