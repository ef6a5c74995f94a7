package bulk

import "strconv"

// ContentHash is a fast 32-bit rolling hash (h = h*31 + c) of s, base-36 encoded.
// It keys cache entries and is not collision resistant.
func ContentHash(s string) string {
	var h uint32
	for i := 0; i < len(s); i++ {
		h = h*31 + uint32(s[i])
	}
	return strconv.FormatUint(uint64(h), 36)
}
