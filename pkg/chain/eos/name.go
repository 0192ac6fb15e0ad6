package eos

import (
	"fmt"
	"regexp"
	"strings"
)

const (
	nameCharmap   = ".12345abcdefghijklmnopqrstuvwxyz"
	MaxNameLength = 12
)

var validName = regexp.MustCompile(`^[.1-5a-z]{0,12}[.1-5a-j]?$`)

// IsValidName reports whether s is an encodable account/action/permission name
// that survives a round trip (no trailing dots).
func IsValidName(s string) bool {
	if s == "" || !validName.MatchString(s) {
		return false
	}
	return !strings.HasSuffix(s, ".")
}

func charToSymbol(c byte) (uint64, error) {
	switch {
	case c >= 'a' && c <= 'z':
		return uint64(c-'a') + 6, nil
	case c >= '1' && c <= '5':
		return uint64(c-'1') + 1, nil
	case c == '.':
		return 0, nil
	}
	return 0, fmt.Errorf("invalid character %q in name", c)
}

// StringToName packs a name into its 64 bit wire value.
func StringToName(s string) (uint64, error) {
	if len(s) > MaxNameLength+1 {
		return 0, fmt.Errorf("name %q is longer than 13 characters", s)
	}
	var n uint64
	for i := 0; i < len(s) && i <= MaxNameLength; i++ {
		c, err := charToSymbol(s[i])
		if err != nil {
			return 0, err
		}
		if i < MaxNameLength {
			c &= 0x1f
			c <<= 64 - 5*(i+1)
		} else {
			if c > 0x0f {
				return 0, fmt.Errorf("thirteenth character of %q must be in [.1-5a-j]", s)
			}
			c &= 0x0f
		}
		n |= c
	}
	return n, nil
}

func NameToString(n uint64) string {
	var out [MaxNameLength + 1]byte
	tmp := n
	for i := 0; i <= MaxNameLength; i++ {
		var c byte
		if i == 0 {
			c = nameCharmap[tmp&0x0f]
			tmp >>= 4
		} else {
			c = nameCharmap[tmp&0x1f]
			tmp >>= 5
		}
		out[MaxNameLength-i] = c
	}
	return strings.TrimRight(string(out[:]), ".")
}
