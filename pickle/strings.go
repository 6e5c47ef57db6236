package pickle

import (
	"fmt"
	"strconv"
	"strings"
)

// unquoteString decodes the argument of the STRING opcode, a Python 2
// repr() of a byte string.
func unquoteString(s string) (string, error) {
	if len(s) < 2 || s[0] != s[len(s)-1] || (s[0] != '\'' && s[0] != '"') {
		return "", fmt.Errorf("%w: STRING argument must be quoted", ErrInvalidPickle)
	}
	s = s[1 : len(s)-1]
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' {
			out = append(out, c)
			continue
		}
		i++
		if i >= len(s) {
			return "", fmt.Errorf("%w: trailing backslash in STRING", ErrInvalidPickle)
		}
		switch e := s[i]; e {
		case '\n':
		case '\\', '\'', '"':
			out = append(out, e)
		case 'a':
			out = append(out, '\a')
		case 'b':
			out = append(out, '\b')
		case 'f':
			out = append(out, '\f')
		case 'n':
			out = append(out, '\n')
		case 'r':
			out = append(out, '\r')
		case 't':
			out = append(out, '\t')
		case 'v':
			out = append(out, '\v')
		case 'x':
			if i+2 >= len(s) {
				return "", fmt.Errorf("%w: truncated \\x escape", ErrInvalidPickle)
			}
			v, err := strconv.ParseUint(s[i+1:i+3], 16, 8)
			if err != nil {
				return "", fmt.Errorf("%w: invalid \\x escape", ErrInvalidPickle)
			}
			out = append(out, byte(v))
			i += 2
		default:
			if e >= '0' && e <= '7' {
				j := i
				for j < len(s) && j < i+3 && s[j] >= '0' && s[j] <= '7' {
					j++
				}
				v, _ := strconv.ParseUint(s[i:j], 8, 16)
				out = append(out, byte(v))
				i = j - 1
				continue
			}
			out = append(out, '\\', e)
		}
	}
	return latin1(out), nil
}

// decodeRawUnicodeEscape decodes the argument of the UNICODE opcode.
func decodeRawUnicodeEscape(s string) (string, error) {
	var sb strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '\\' && i+1 < len(s) && (s[i+1] == 'u' || s[i+1] == 'U') {
			width := 4
			if s[i+1] == 'U' {
				width = 8
			}
			if i+2+width > len(s) {
				return "", fmt.Errorf("%w: truncated \\u escape", ErrInvalidPickle)
			}
			v, err := strconv.ParseUint(s[i+2:i+2+width], 16, 32)
			if err != nil {
				return "", fmt.Errorf("%w: invalid \\u escape", ErrInvalidPickle)
			}
			sb.WriteRune(rune(v))
			i += 1 + width
			continue
		}
		sb.WriteRune(rune(c))
	}
	return sb.String(), nil
}
