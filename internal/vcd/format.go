package vcd

// FormatValue renders the value part of a change record: a single '0', '1'
// or 'x' for 1-bit values, otherwise 'b' followed by the bits.
func FormatValue(bits []byte, undefined bool) string {
	if len(bits) <= 1 {
		switch {
		case undefined:
			return "x"
		case len(bits) == 1 && bits[0] == '1':
			return "1"
		default:
			return "0"
		}
	}
	if undefined {
		return "bx"
	}
	return "b" + string(bits)
}
