// Package textcodec converts between raw process bytes and normalized text.
package textcodec

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/acarl005/stripansi"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/encoding/unicode"
)

// DefaultEncoding is used when no encoding name is supplied.
const DefaultEncoding = "utf-8"

// ErrUnknownEncoding reports an encoding name that cannot be resolved.
var ErrUnknownEncoding = errors.New("unknown encoding")

var newlineReplacer = strings.NewReplacer("\r\n", "\n", "\r", "\n")

// Lookup resolves an IANA or WHATWG encoding name such as "utf-8",
// "latin1" or "windows-1250". An empty name selects DefaultEncoding.
func Lookup(name string) (encoding.Encoding, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		name = DefaultEncoding
	}
	if enc, err := ianaindex.IANA.Encoding(name); err == nil && enc != nil {
		return enc, nil
	}
	if enc, err := htmlindex.Get(name); err == nil && enc != nil {
		return enc, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownEncoding, name)
}

// Encode converts text into bytes in the named encoding.
func Encode(name, text string) ([]byte, error) {
	enc, err := Lookup(name)
	if err != nil {
		return nil, err
	}
	if enc == unicode.UTF8 {
		return []byte(text), nil
	}
	out, err := enc.NewEncoder().Bytes([]byte(text))
	if err != nil {
		return nil, fmt.Errorf("encode input as %s: %w", name, err)
	}
	return out, nil
}

// Decode converts raw bytes from the named encoding to text. Malformed
// sequences become U+FFFD; the only error is an unknown encoding name.
func Decode(name string, raw []byte) (string, error) {
	enc, err := Lookup(name)
	if err != nil {
		return "", err
	}
	if enc == unicode.UTF8 {
		return toValidUTF8(raw), nil
	}
	out, err := enc.NewDecoder().Bytes(raw)
	if err != nil {
		return toValidUTF8(raw), nil
	}
	return string(out), nil
}

// NormalizeNewlines rewrites "\r\n" and bare "\r" as "\n".
func NormalizeNewlines(s string) string {
	return newlineReplacer.Replace(s)
}

// StripColors removes terminal escape sequences. Plain text is returned
// unchanged.
func StripColors(s string) string {
	if !strings.ContainsRune(s, '\x1b') {
		return s
	}
	return stripansi.Strip(s)
}

// toValidUTF8 replaces each maximal invalid subpart with one U+FFFD: a
// truncated sequence yields a single replacement, a stray byte its own.
func toValidUTF8(raw []byte) string {
	if utf8.Valid(raw) {
		return string(raw)
	}
	var b strings.Builder
	b.Grow(len(raw))
	for len(raw) > 0 {
		r, size := utf8.DecodeRune(raw)
		if r == utf8.RuneError && size == 1 {
			size = invalidSubpartLen(raw)
		}
		b.WriteRune(r)
		raw = raw[size:]
	}
	return b.String()
}

// invalidSubpartLen returns how many bytes at the start of p form a prefix of
// some well-formed sequence. p must not start with a complete valid rune.
func invalidSubpartLen(p []byte) int {
	lo, hi := byte(0x80), byte(0xBF)
	var want int
	switch lead := p[0]; {
	case lead >= 0xC2 && lead <= 0xDF:
		want = 2
	case lead == 0xE0:
		want, lo = 3, 0xA0
	case lead == 0xED:
		want, hi = 3, 0x9F
	case lead >= 0xE1 && lead <= 0xEF:
		want = 3
	case lead == 0xF0:
		want, lo = 4, 0x90
	case lead >= 0xF1 && lead <= 0xF3:
		want = 4
	case lead == 0xF4:
		want, hi = 4, 0x8F
	default:
		return 1
	}
	n := 1
	for n < want && n < len(p) {
		c := p[n]
		if n == 1 && (c < lo || c > hi) {
			break
		}
		if n > 1 && (c < 0x80 || c > 0xBF) {
			break
		}
		n++
	}
	return n
}
