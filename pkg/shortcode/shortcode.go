// Package shortcode converts between Instagram media shortcodes and numeric
// media ids.
//
// A shortcode is the media id written in base 64 over the URL-safe alphabet
// A-Z a-z 0-9 - _, most significant digit first.
package shortcode

import (
	"math"
	"strconv"
	"strings"

	errs "igresolver/pkg/errors"
)

const alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-_"

var index = func() [256]int8 {
	var t [256]int8
	for i := range t {
		t[i] = -1
	}
	for i := 0; i < len(alphabet); i++ {
		t[alphabet[i]] = int8(i)
	}
	return t
}()

// ToID decodes a shortcode. The empty shortcode decodes to 0.
func ToID(code string) (int64, error) {
	var id uint64
	for i := 0; i < len(code); i++ {
		v := index[code[i]]
		if v < 0 {
			return 0, errs.New(errs.ErrorTypeInvalidCharacter, "invalid shortcode character %q at %d", code[i], i)
		}
		if id > (math.MaxInt64-uint64(v))/64 {
			return 0, errs.New(errs.ErrorTypeInvalidCharacter, "shortcode %q overflows a media id", code)
		}
		id = id*64 + uint64(v)
	}
	return int64(id), nil
}

// FromID encodes a media id. FromID(0) is "", so callers must reject a zero
// id themselves. Negative ids have no shortcode and also yield "".
func FromID(id int64) string {
	if id <= 0 {
		return ""
	}
	var b [11]byte
	i := len(b)
	for id > 0 {
		i--
		b[i] = alphabet[id%64]
		id /= 64
	}
	return string(b[i:])
}

// ParseID parses a decimal media id as it arrives in a URL path. Anything
// that is not a base 10 int64 is reported as an invalid character.
func ParseID(s string) (int64, error) {
	s = strings.TrimSpace(s)
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, errs.Wrap(errs.ErrorTypeInvalidCharacter, err, "invalid media id %q", s)
	}
	return id, nil
}
