package codec

// Bound returns the conservative worst-case output size for compressing
// n input bytes: every byte could end up as a Literal token's payload,
// plus room for header-byte overhead and the VarInt extension path.
func Bound(n int) int {
	return n + (n >> 6) + 384
}
