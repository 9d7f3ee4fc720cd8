package codec

import "fmt"

// encodeLength splits a logical length into the 6-bit header field plus
// zero or more VarInt extension bytes. n must already account for any
// bias the caller's opcode applies (callers pass the *encoded* length,
// i.e. n-lengthBias for Isotope/Gradient).
func encodeLength(n int) (field byte, ext []byte, err error) {
	if n < 0 {
		return 0, nil, fmt.Errorf("codec: negative length %d", n)
	}
	if n < lengthSentinel {
		return byte(n), nil, nil
	}
	rem := n - lengthSentinel
	for rem >= 255 {
		if len(ext) >= maxExtensionBytes-1 {
			return 0, nil, fmt.Errorf("codec: length %d exceeds encodable range", n)
		}
		ext = append(ext, 255)
		rem -= 255
	}
	ext = append(ext, byte(rem))
	return lengthSentinel, ext, nil
}

// cursor is a read-only walk over a compressed stream, used by Decode.
type cursor struct {
	src []byte
	pos int
}

func (c *cursor) readByte() (byte, error) {
	if c.pos >= len(c.src) {
		return 0, fmt.Errorf("%w: truncated stream", ErrDataRot)
	}
	b := c.src[c.pos]
	c.pos++
	return b, nil
}

func (c *cursor) readN(n int) ([]byte, error) {
	if n < 0 || c.pos+n > len(c.src) {
		return nil, fmt.Errorf("%w: truncated stream", ErrDataRot)
	}
	b := c.src[c.pos : c.pos+n]
	c.pos += n
	return b, nil
}

func (c *cursor) remaining() int { return len(c.src) - c.pos }

// decodeLength reads a header field value already extracted by the
// caller and, if it is the sentinel, the following VarInt extension
// bytes, capped at maxExtensionBytes.
func decodeLength(c *cursor, field byte) (int, error) {
	if field < lengthSentinel {
		return int(field), nil
	}
	sum := 0
	count := 0
	for {
		if count >= maxExtensionBytes {
			return 0, fmt.Errorf("%w: varint extension exceeds %d bytes", ErrDataRot, maxExtensionBytes)
		}
		b, err := c.readByte()
		if err != nil {
			return 0, err
		}
		count++
		sum += int(b)
		if b < 255 {
			break
		}
		if count == maxExtensionBytes {
			return 0, fmt.Errorf("%w: varint extension exceeds %d bytes", ErrDataRot, maxExtensionBytes)
		}
	}
	return lengthSentinel + sum, nil
}
