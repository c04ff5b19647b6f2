package radix

const (
	// RadixBits is the digit width of one pass.
	RadixBits = 4
	// Radix is the number of digit buckets.
	Radix = 1 << RadixBits
	// KeyBits is the key width.
	KeyBits = 32
	// Passes is the number of digit passes needed to sort a full key.
	Passes = KeyBits / RadixBits

	// DefaultGroupSize is the thread-group size the bundled kernels declare.
	DefaultGroupSize = 256
	// DefaultKeysPerThread is the number of consecutive keys one thread owns.
	DefaultKeysPerThread = 8

	// paramStride is the distance between per-pass parameter blocks, in
	// uint32 words. Uniform bindings need 256-byte aligned offsets.
	paramStride = 64
	// paramWords is the length of one parameter block.
	paramWords = 4
)

// Histogram is one thread group's per-digit key counts.
type Histogram [Radix]uint32

// Total returns the number of keys counted in h.
func (h Histogram) Total() uint32 {
	var n uint32
	for _, c := range h {
		n += c
	}
	return n
}

// ThreadsNeeded returns the number of threads required to cover n keys at
// keysPerThread keys each.
func ThreadsNeeded(n, keysPerThread int) int {
	return ceilDiv(n, keysPerThread)
}

// GroupCount returns the number of thread groups dispatched for n keys.
func GroupCount(n, keysPerThread, groupSize int) int {
	return ceilDiv(ThreadsNeeded(n, keysPerThread), groupSize)
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}

// passShift returns the bit offset of the digit sorted in pass p.
func passShift(p int) uint32 {
	return uint32(p * RadixBits)
}
