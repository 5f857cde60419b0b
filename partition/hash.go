package partition

const (
	mixMul1 = 0xff51afd7ed558ccd
	mixMul2 = 0xc4ceb9fe1a85ec53
)

// Mix64 is a 64-bit finalizer: xor-shift and multiply rounds that spread
// every input bit over the whole output word. Sequential inputs come out
// looking uniform, which is what the partition spread relies on.
func Mix64(x uint64) uint64 {
	x ^= x >> 33
	x *= mixMul1
	x ^= x >> 33
	x *= mixMul2
	x ^= x >> 33
	return x
}

// AltMod maps x onto [0, n) without an integer division: the low 32 bits of
// x scale the range by a multiply and a shift. Only valid for well-mixed
// inputs, so callers run x through Mix64 first.
func AltMod(x uint64, n uint32) uint32 {
	return uint32((x & 0xffffffff) * uint64(n) >> 32)
}
