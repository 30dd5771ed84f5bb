package wave

import "strings"

// directionSwaps lists the recognised directional prefixes and their mirror.
var directionSwaps = [...][2]string{
	{"in_", "out_"},
	{"out_", "in_"},
	{"i_", "o_"},
	{"o_", "i_"},
}

func swapDirection(segment string) (string, bool) {
	for _, sw := range directionSwaps {
		if strings.HasPrefix(segment, sw[0]) {
			return sw[1] + segment[len(sw[0]):], true
		}
	}
	return segment, false
}

// CreditName derives the path of the credit wire that mirrors the queue
// endpoint at path. The last path segment carrying a directional prefix has
// it swapped (i_ and o_, in_ and out_); without one the path is kept. The
// result always ends in "_credit".
func CreditName(path string) string {
	segs := strings.Split(path, ".")
	for i := len(segs) - 1; i >= 0; i-- {
		if swapped, ok := swapDirection(segs[i]); ok {
			segs[i] = swapped
			break
		}
	}
	return strings.Join(segs, ".") + "_credit"
}

// splitPath splits a dotted path into its parent path and leaf name.
func splitPath(path string) (string, string) {
	i := strings.LastIndexByte(path, '.')
	if i < 0 {
		return "", path
	}
	return path[:i], path[i+1:]
}
