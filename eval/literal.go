package eval

import (
	"strconv"
	"strings"

	"github.com/oakflow-dev/oakflow/ast"
	"github.com/oakflow-dev/oakflow/diag"
)

// maxMagnitude is i64::MAX+1, the one magnitude that is only valid as
// the operand of a literal negation (§4.1, scenario §8.5).
const maxMagnitude uint64 = 1 << 63

// parseIntMagnitude parses the unsigned magnitude of an integer literal
// in decimal, 0x/0X hex, or leading-0 octal form, rejecting anything
// above i64::MAX+1.
func parseIntMagnitude(raw string, span diag.Span) (uint64, error) {
	text := raw
	var base int
	switch {
	case strings.HasPrefix(text, "0x") || strings.HasPrefix(text, "0X"):
		base = 16
		text = text[2:]
	case len(text) > 1 && text[0] == '0':
		base = 8
		text = text[1:]
	default:
		base = 10
	}
	if text == "" {
		text = "0"
	}
	mag, err := strconv.ParseUint(text, base, 64)
	if err != nil {
		return 0, diag.Newf(diag.KindNumericOutOfRange, span, "integer literal %q out of range", raw)
	}
	if mag > maxMagnitude {
		return 0, diag.Newf(diag.KindNumericOutOfRange, span, "integer literal %q out of range", raw)
	}
	return mag, nil
}

// EvalIntLiteral evaluates a bare (non-negated) integer literal: the
// reserved magnitude i64::MAX+1 is out of range here since it is only
// legal directly under a unary minus.
func EvalIntLiteral(lit *ast.IntLiteral) (int64, error) {
	mag, err := parseIntMagnitude(lit.Raw, lit.Span)
	if err != nil {
		return 0, err
	}
	if mag == maxMagnitude {
		return 0, diag.Newf(diag.KindNumericOutOfRange, lit.Span, "integer literal %q out of range", lit.Raw)
	}
	return int64(mag), nil
}

// EvalNegatedIntLiteral evaluates `-<literal>` as a single unit so that
// i64::MIN can be represented: -9223372036854775808 is valid even
// though its positive magnitude overflows int64 (§4.1, scenario §8.5).
func EvalNegatedIntLiteral(lit *ast.IntLiteral) (int64, error) {
	mag, err := parseIntMagnitude(lit.Raw, lit.Span)
	if err != nil {
		return 0, err
	}
	if mag == maxMagnitude {
		return -9223372036854775808, nil
	}
	return -int64(mag), nil
}
