package engine

import (
	"strings"
	"unicode"
)

// Postcode is a UK-format postcode decomposed into the components the
// region resolver matches against. All fields are normalized to upper case
// with a single space before the inward code.
type Postcode struct {
	Full    string // "SW1A 1AA"
	Outcode string // "SW1A"
	Sector  string // "SW1A 1"
	Area    string // "SW"
}

// Zero reports whether the postcode is unset.
func (p Postcode) Zero() bool { return p.Full == "" }

// ParsePostcode normalizes and decomposes a raw postcode string. The inward
// code is always the final three characters (digit then two letters); the
// remainder is the outcode.
func ParsePostcode(raw string) (Postcode, error) {
	compact := strings.ToUpper(strings.Join(strings.Fields(raw), ""))
	if compact == "" {
		return Postcode{}, NewAggregationError(CodePostcodeMissing, "postcode is required")
	}
	if len(compact) < 5 || len(compact) > 7 {
		return Postcode{}, NewAggregationError(CodePostcodeInvalid, "postcode "+raw+" is not a valid postcode")
	}

	outcode := compact[:len(compact)-3]
	inward := compact[len(compact)-3:]

	if !unicode.IsLetter(rune(outcode[0])) {
		return Postcode{}, NewAggregationError(CodePostcodeInvalid, "postcode "+raw+" is not a valid postcode")
	}
	if !unicode.IsDigit(rune(inward[0])) ||
		!unicode.IsLetter(rune(inward[1])) || !unicode.IsLetter(rune(inward[2])) {
		return Postcode{}, NewAggregationError(CodePostcodeInvalid, "postcode "+raw+" is not a valid postcode")
	}

	area := outcode
	for i, r := range outcode {
		if !unicode.IsLetter(r) {
			area = outcode[:i]
			break
		}
	}
	if area == "" {
		return Postcode{}, NewAggregationError(CodePostcodeInvalid, "postcode "+raw+" is not a valid postcode")
	}

	return Postcode{
		Full:    outcode + " " + inward,
		Outcode: outcode,
		Sector:  outcode + " " + inward[:1],
		Area:    area,
	}, nil
}
