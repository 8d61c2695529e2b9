package schema

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseVersion packs a dotted version string "a.b.c.d" into a uint32 as
// (a<<24)|(b<<16)|(c<<8)|d. Shorter forms pad with zero parts, so
// "4.1" packs as 4.1.0.0. Plain decimal or 0x-prefixed integers are
// accepted verbatim.
func ParseVersion(s string) (uint32, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty version string")
	}
	if !strings.Contains(s, ".") {
		v, err := strconv.ParseUint(s, 0, 32)
		if err != nil {
			return 0, fmt.Errorf("invalid version %q: %w", s, err)
		}
		return uint32(v), nil
	}
	parts := strings.Split(s, ".")
	if len(parts) > 4 {
		return 0, fmt.Errorf("invalid version %q: more than four parts", s)
	}
	var packed uint32
	for i := range 4 {
		var p uint64
		if i < len(parts) {
			var err error
			p, err = strconv.ParseUint(parts[i], 10, 8)
			if err != nil {
				return 0, fmt.Errorf("invalid version %q: %w", s, err)
			}
		}
		packed |= uint32(p) << (24 - 8*i)
	}
	return packed, nil
}

// FormatVersion renders a packed version back into dotted form.
func FormatVersion(v uint32) string {
	return fmt.Sprintf("%d.%d.%d.%d", v>>24&0xFF, v>>16&0xFF, v>>8&0xFF, v&0xFF)
}
