package sim

// BitOrder maps canonical bit i (LSB = 0) to the native bit position it is
// stored at. A nil BitOrder is the identity mapping.
type BitOrder []int

// ByteSwapped returns the mapping for a value stored big-endian by byte.
func ByteSwapped(width int) BitOrder {
	nbytes := (width + 7) / 8
	order := make(BitOrder, width)
	for i := range order {
		order[i] = (nbytes-1-i/8)*8 + i%8
	}
	return order
}

// Native returns the native bit position for canonical bit i.
func (o BitOrder) Native(i int) int {
	if i < len(o) {
		return o[i]
	}
	return i
}

// Bits renders raw into width characters, most significant bit first,
// using '0' and '1'. dst is reused when it has the right length.
func (o BitOrder) Bits(dst []byte, raw []byte, width int) []byte {
	if len(dst) != width {
		dst = make([]byte, width)
	}
	for i := 0; i < width; i++ {
		n := o.Native(i)
		bit := byte('0')
		if n/8 < len(raw) && raw[n/8]>>(n%8)&1 == 1 {
			bit = '1'
		}
		dst[width-1-i] = bit
	}
	return dst
}
