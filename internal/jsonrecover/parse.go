package jsonrecover

import (
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

// Strategy names the attempt that produced a parsed Value.
type Strategy string

const (
	StrategyDirect        Strategy = "direct"
	StrategyTrailingComma Strategy = "trailing-comma"
	StrategyTruncation    Strategy = "truncation"
	StrategyLenient       Strategy = "lenient"
)

// Parse converts sanitized completion text into a Value, tolerating
// trailing commas and truncation. See ParseWithStrategy.
func Parse(text string) (Value, error) {
	v, _, err := ParseWithStrategy(text)
	return v, err
}

// ParseWithStrategy runs the ordered recovery attempts and reports which one
// succeeded:
//
//  1. direct parse;
//  2. trailing commas before '}' or ']' removed;
//  3. truncation recovery: the longest prefix ending on a value boundary,
//     closed with the missing quote and brackets;
//  4. lenient repair of quoting/keys mistakes.
//
// A document whose brackets are balanced is not truncated, so for it the
// lenient repair runs before truncation recovery. Otherwise truncation
// recovery runs first because lenient repair would invent values for the
// cut-off tail.
//
// Recovery only appends closing punctuation. A string, number or key cut
// mid-token is dropped together with its key, never completed.
//
// The scan for cut points is linear. Candidates are probed with exponential
// back-off from the longest one and then refined by bisection, so at most
// O(log n) candidates are repaired and parsed, each in O(n). Completions are
// bounded by the provider's output cap (a few thousand tokens).
func ParseWithStrategy(text string) (Value, Strategy, error) {
	if v, err := decode(text); err == nil {
		return v, StrategyDirect, nil
	}

	if fixed := stripTrailingCommas(text); fixed != text {
		if v, err := decode(fixed); err == nil {
			return v, StrategyTrailingComma, nil
		}
	}

	sc := scan(text)
	if sc.balanced {
		if v, ok := lenient(text); ok {
			return v, StrategyLenient, nil
		}
	}

	if v, ok := recoverTruncated(text, sc.cuts); ok {
		return v, StrategyTruncation, nil
	}

	if !sc.balanced {
		if v, ok := lenient(text); ok {
			return v, StrategyLenient, nil
		}
	}

	if v, ok := recoverScalar(text); ok {
		return v, StrategyTruncation, nil
	}

	return Value{}, "", newParseError(text)
}

// recoverScalar handles a top-level scalar cut mid-token, where scan finds no
// cut point. A string gets its closing quote, a number loses a dangling
// sign, dot or exponent marker, and a prefix of true, false or null is
// completed. An empty text or a lone minus sign stays unrecoverable.
func recoverScalar(text string) (Value, bool) {
	s := strings.TrimSpace(text)
	if s == "" {
		return Value{}, false
	}

	switch c := s[0]; {
	case c == '"':
		s = repairPrefix(s)
	case c == '-' || (c >= '0' && c <= '9'):
		s = strings.TrimRight(s, ".eE+-")
	default:
		for _, lit := range []string{"true", "false", "null"} {
			if strings.HasPrefix(lit, s) {
				s = lit
				break
			}
		}
	}

	v, err := decode(s)
	if err != nil {
		return Value{}, false
	}
	return v, true
}

func lenient(text string) (Value, bool) {
	if strings.TrimSpace(text) == "" {
		return Value{}, false
	}
	repaired, err := jsonrepair.JSONRepair(text)
	if err != nil {
		return Value{}, false
	}
	v, err := decode(repaired)
	if err != nil {
		return Value{}, false
	}
	// jsonrepair quotes bare prose into a string; that is not structured data.
	if v.Kind() != Object && v.Kind() != Array {
		return Value{}, false
	}
	return v, true
}

// recoverTruncated returns the parse of the longest repaired prefix.
// cuts must be ascending prefix lengths.
func recoverTruncated(text string, cuts []int) (Value, bool) {
	if len(cuts) == 0 {
		return Value{}, false
	}

	last := len(cuts) - 1
	try := func(offset int) (Value, bool) {
		v, err := decode(repairPrefix(text[:cuts[last-offset]]))
		return v, err == nil
	}

	// offset 0 is the longest candidate; failed is the largest offset
	// known not to parse.
	failed := -1
	for step := 0; ; step = step*2 + 1 {
		offset := min(step, last)
		v, ok := try(offset)
		if !ok {
			failed = offset
			if offset == last {
				return Value{}, false
			}
			continue
		}

		best := v
		lo, hi := failed+1, offset-1
		for lo <= hi {
			mid := (lo + hi) / 2
			if mv, ok := try(mid); ok {
				best = mv
				hi = mid - 1
			} else {
				lo = mid + 1
			}
		}
		return best, true
	}
}

// repairPrefix closes a possibly truncated document: an open string literal
// gets its closing quote, then every open array or object is closed
// innermost first, then trailing commas are removed.
func repairPrefix(prefix string) string {
	var stack []byte
	inString, escaped := false, false

	for i := 0; i < len(prefix); i++ {
		c := prefix[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{', '[':
			stack = append(stack, c)
		case '}', ']':
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		}
	}

	var b strings.Builder
	b.Grow(len(prefix) + len(stack) + 1)
	if inString {
		if escaped {
			prefix = prefix[:len(prefix)-1]
		}
		b.WriteString(prefix)
		b.WriteByte('"')
	} else {
		b.WriteString(prefix)
	}
	for i := len(stack) - 1; i >= 0; i-- {
		if stack[i] == '{' {
			b.WriteByte('}')
		} else {
			b.WriteByte(']')
		}
	}
	return stripTrailingCommas(b.String())
}

// stripTrailingCommas removes commas that directly precede '}' or ']',
// ignoring whitespace in between. String literals are left untouched.
func stripTrailingCommas(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	inString, escaped := false, false

	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			b.WriteByte(c)
			continue
		}
		if c == '"' {
			inString = true
		}
		if c == ',' {
			j := i + 1
			for j < len(s) && isSpace(s[j]) {
				j++
			}
			if j < len(s) && (s[j] == '}' || s[j] == ']') {
				continue
			}
		}
		b.WriteByte(c)
	}
	return b.String()
}

type scanResult struct {
	// cuts are prefix lengths, ascending, at which the text ends right
	// after a complete value or an opening bracket or a separating comma.
	cuts []int
	// balanced reports that the text ends outside any string with no
	// unclosed bracket.
	balanced bool
}

type frame struct {
	open    byte
	wantKey bool
}

// scan walks text once and records the candidate cut points for truncation
// recovery. Cuts never fall inside a string, number or literal, and never
// right after an object key.
func scan(text string) scanResult {
	var (
		res   scanResult
		stack []frame
	)

	for i := 0; i < len(text); i++ {
		c := text[i]
		switch c {
		case '"':
			isKey := len(stack) > 0 && stack[len(stack)-1].open == '{' && stack[len(stack)-1].wantKey
			end, ok := stringEnd(text, i)
			if !ok {
				return res
			}
			i = end
			if isKey {
				stack[len(stack)-1].wantKey = false
			} else {
				res.cuts = append(res.cuts, i+1)
			}
		case '{', '[':
			stack = append(stack, frame{open: c, wantKey: c == '{'})
			res.cuts = append(res.cuts, i+1)
		case '}', ']':
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
			res.cuts = append(res.cuts, i+1)
		case ',':
			if len(stack) > 0 && stack[len(stack)-1].open == '{' {
				stack[len(stack)-1].wantKey = true
			}
			res.cuts = append(res.cuts, i+1)
		case ':':
			if len(stack) > 0 {
				stack[len(stack)-1].wantKey = false
			}
		}
	}

	res.balanced = len(stack) == 0
	return res
}

// stringEnd returns the index of the quote closing the string that opens at
// start, or false when the text ends inside the string.
func stringEnd(text string, start int) (int, bool) {
	escaped := false
	for j := start + 1; j < len(text); j++ {
		switch {
		case escaped:
			escaped = false
		case text[j] == '\\':
			escaped = true
		case text[j] == '"':
			return j, true
		}
	}
	return 0, false
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}
