// Package micrgrammar parses a recognized MICR character stream (control
// tokens T/U/A/D plus digit runs) into its routing number, account number,
// check number, and amount fields.
package micrgrammar

import (
	"strings"
)

// Fields are the parsed components of one MICR line.
type Fields struct {
	RoutingNumber string
	AccountNumber string
	CheckNumber   string
	Amount        string
	MICRLine      string
}

// legacyMap applies the A->T, B->A, C->U remapping in a single pass over
// the original runes, triggered only when the input contains a 'C'.
func legacyMap(s string) string {
	if !strings.ContainsRune(s, 'C') {
		return s
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case 'A':
			return 'T'
		case 'B':
			return 'A'
		case 'C':
			return 'U'
		default:
			return r
		}
	}, s)
}

type token struct {
	control byte // one of 'T','U','A','D', or 0 for a digit run
	digits  string
}

// tokenize splits a normalized MICR string into control tokens and digit
// runs, in order, skipping any other character.
func tokenize(s string) []token {
	var out []token
	i := 0
	for i < len(s) {
		c := s[i]
		switch {
		case c == 'T' || c == 'U' || c == 'A' || c == 'D':
			out = append(out, token{control: c})
			i++
		case c >= '0' && c <= '9':
			j := i
			for j < len(s) && s[j] >= '0' && s[j] <= '9' {
				j++
			}
			out = append(out, token{digits: s[i:j]})
			i = j
		default:
			i++
		}
	}
	return out
}

// Parse normalizes the legacy A/B/C control-character mapping, then walks
// the token stream applying the control-state machine.
func Parse(micrLine string) Fields {
	normalized := legacyMap(micrLine)
	tokens := tokenize(normalized)

	var f Fields
	f.MICRLine = micrLine

	var lastControl byte
	var tc, uc, ac, dc int

	for _, t := range tokens {
		if t.control != 0 {
			switch t.control {
			case 'T':
				tc++
			case 'U':
				uc++
			case 'A':
				ac++
			case 'D':
				dc++
			}
			lastControl = t.control
			continue
		}

		digits := t.digits
		switch {
		case lastControl == 'T':
			if f.RoutingNumber == "" {
				f.RoutingNumber = digits
			} else if f.AccountNumber == "" {
				f.AccountNumber = digits
			} else {
				f.CheckNumber = digits
			}
		case lastControl == 'A' && ac == 1:
			f.Amount = digits
		case lastControl == 'D' && dc == 1:
			// skipped per grammar
		case lastControl == 'U' && tc == 0:
			f.CheckNumber = digits
		case f.RoutingNumber != "":
			if f.AccountNumber == "" {
				f.AccountNumber = digits
			} else {
				f.CheckNumber = digits
			}
		}
	}

	f.CheckNumber = stripLeadingZeros(f.CheckNumber)
	return f
}

func stripLeadingZeros(s string) string {
	i := 0
	for i < len(s)-1 && s[i] == '0' {
		i++
	}
	return s[i:]
}
