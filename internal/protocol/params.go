package protocol

import (
	"fmt"
	"sort"
	"strings"
)

const hexDigits = "0123456789ABCDEF"

// Escape percent-encodes the bytes that carry meaning on the wire:
// '%', '=', '&', CR and LF. Everything else passes through unchanged.
func Escape(s string) string {
	if !strings.ContainsAny(s, "%=&\r\n") {
		return s
	}
	var b strings.Builder
	b.Grow(len(s) + 8)
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch c {
		case '%', '=', '&', '\r', '\n':
			b.WriteByte('%')
			b.WriteByte(hexDigits[c>>4])
			b.WriteByte(hexDigits[c&0x0f])
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// Unescape reverses Escape. Any %XX sequence is accepted so that clients
// escaping more aggressively still round-trip.
func Unescape(s string) (string, error) {
	if !strings.Contains(s, "%") {
		return s, nil
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '%' {
			b.WriteByte(c)
			continue
		}
		if i+2 >= len(s) {
			return "", fmt.Errorf("%w: truncated at offset %d", ErrInvalidEscape, i)
		}
		hi, ok1 := unhex(s[i+1])
		lo, ok2 := unhex(s[i+2])
		if !ok1 || !ok2 {
			return "", fmt.Errorf("%w: %q at offset %d", ErrInvalidEscape, s[i:i+3], i)
		}
		b.WriteByte(hi<<4 | lo)
		i += 2
	}
	return b.String(), nil
}

func unhex(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	default:
		return 0, false
	}
}

// EncodeParams joins escaped key=value pairs with '&' in ascending key order.
func EncodeParams(params map[string]string) string {
	if len(params) == 0 {
		return ""
	}
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(Escape(k))
		b.WriteByte('=')
		b.WriteString(Escape(params[k]))
	}
	return b.String()
}

// DecodeParams parses a key=value&key=value string. Empty segments are
// skipped; duplicate keys keep the last value. The result is never nil.
func DecodeParams(raw string) (map[string]string, error) {
	params := make(map[string]string)
	if raw == "" {
		return params, nil
	}
	for _, pair := range strings.Split(raw, "&") {
		if pair == "" {
			continue
		}
		rawKey, rawValue, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("%w: parameter %q has no '='", ErrMalformedCommand, pair)
		}
		key, err := Unescape(rawKey)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedCommand, err)
		}
		if strings.TrimSpace(key) == "" {
			return nil, fmt.Errorf("%w: empty parameter name", ErrMalformedCommand)
		}
		value, err := Unescape(rawValue)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedCommand, err)
		}
		params[key] = value
	}
	return params, nil
}
