package codec

import "fmt"

// Decode expands a TCC token stream produced by Encode. dstLen is the
// caller's expected logical output size (the block's fixed payload
// size); Decode rejects any stream that produces more or fewer bytes,
// folding both cases into ErrDataRot since a caller-supplied size
// mismatch is indistinguishable from payload rot at this layer.
func Decode(src []byte, dstLen int) ([]byte, error) {
	if dstLen < 0 || dstLen > MaxInputOutputBytes {
		return nil, fmt.Errorf("%w: dstLen %d out of range", ErrInvalidArgument, dstLen)
	}
	dst := make([]byte, 0, dstLen)
	c := &cursor{src: src}

	for c.remaining() > 0 {
		header, err := c.readByte()
		if err != nil {
			return nil, err
		}
		op := Opcode(header >> 6)
		field := header & 0x3F

		switch op {
		case OpLiteral:
			n, err := decodeLength(c, field)
			if err != nil {
				return nil, err
			}
			if n > MaxLiteralLen {
				return nil, fmt.Errorf("%w: literal length %d exceeds max", ErrDataRot, n)
			}
			chunk, err := c.readN(n)
			if err != nil {
				return nil, err
			}
			dst, err = appendChecked(dst, chunk, dstLen)
			if err != nil {
				return nil, err
			}

		case OpIsotope:
			encLen, err := decodeLength(c, field)
			if err != nil {
				return nil, err
			}
			n := encLen + lengthBias
			if n > MaxBiasedLen {
				return nil, fmt.Errorf("%w: isotope length %d exceeds max", ErrDataRot, n)
			}
			v, err := c.readByte()
			if err != nil {
				return nil, err
			}
			if len(dst)+n > dstLen {
				return nil, fmt.Errorf("%w: isotope token overflows destination", ErrDataRot)
			}
			for i := 0; i < n; i++ {
				dst = append(dst, v)
			}

		case OpGradient:
			encLen, err := decodeLength(c, field)
			if err != nil {
				return nil, err
			}
			n := encLen + lengthBias
			if n > MaxBiasedLen {
				return nil, fmt.Errorf("%w: gradient length %d exceeds max", ErrDataRot, n)
			}
			start, err := c.readByte()
			if err != nil {
				return nil, err
			}
			slopeByte, err := c.readByte()
			if err != nil {
				return nil, err
			}
			slope := int(int8(slopeByte))
			if slope == 0 {
				return nil, fmt.Errorf("%w: gradient slope 0 is not canonical", ErrDataRot)
			}
			bytes, ok := gradientBytes(start, slope, n)
			if !ok {
				return nil, fmt.Errorf("%w: gradient progression leaves [0,255]", ErrDataRot)
			}
			dst, err = appendChecked(dst, bytes, dstLen)
			if err != nil {
				return nil, err
			}

		case OpBitmask:
			n, err := decodeLength(c, field)
			if err != nil {
				return nil, err
			}
			if n > MaxLiteralLen {
				return nil, fmt.Errorf("%w: bitmask length %d exceeds max", ErrDataRot, n)
			}
			if n%bitmaskWordBytes != 0 {
				return nil, fmt.Errorf("%w: bitmask length %d not a multiple of %d", ErrDataRot, n, bitmaskWordBytes)
			}
			numWords := n / bitmaskWordBytes
			maskBytes := (numWords + 7) / 8
			mask, err := c.readN(maskBytes)
			if err != nil {
				return nil, err
			}
			if pad := numWords % 8; pad != 0 {
				if mask[maskBytes-1]&(0xFF<<uint(pad)) != 0 {
					return nil, fmt.Errorf("%w: bitmask padding bits set", ErrDataRot)
				}
			}
			if len(dst)+n > dstLen {
				return nil, fmt.Errorf("%w: bitmask token overflows destination", ErrDataRot)
			}
			zero := make([]byte, bitmaskWordBytes)
			for w := 0; w < numWords; w++ {
				if mask[w/8]&(1<<uint(w%8)) != 0 {
					word, err := c.readN(bitmaskWordBytes)
					if err != nil {
						return nil, err
					}
					dst = append(dst, word...)
				} else {
					dst = append(dst, zero...)
				}
			}

		default:
			return nil, fmt.Errorf("%w: reserved opcode %d", ErrDataRot, op)
		}
	}

	if len(dst) != dstLen {
		return nil, fmt.Errorf("%w: decoded %d bytes, want %d", ErrDataRot, len(dst), dstLen)
	}
	return dst, nil
}

func appendChecked(dst, chunk []byte, dstLen int) ([]byte, error) {
	if len(dst)+len(chunk) > dstLen {
		return nil, fmt.Errorf("%w: token overflows destination", ErrDataRot)
	}
	return append(dst, chunk...), nil
}

// gradientBytes produces the n-byte arithmetic progression start,
// start+slope, start+2*slope, ... and reports false the moment any
// term leaves [0,255]. Used by both the decoder (to validate and
// materialize a Gradient token in one pass) and tests exercising the
// overflow-rejection path.
func gradientBytes(start byte, slope, n int) ([]byte, bool) {
	out := make([]byte, n)
	v := int(start)
	for i := 0; i < n; i++ {
		if v < 0 || v > 255 {
			return nil, false
		}
		out[i] = byte(v)
		v += slope
	}
	return out, true
}
