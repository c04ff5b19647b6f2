package cpu

// Software implementations of the entry points in kernels/sum.wgsl and
// kernels/sort.wgsl. Binding slots and parameter layouts match the WGSL.

const (
	radix     = 16
	digitMask = radix - 1
)

// sortParams mirrors the Params uniform of sort.wgsl.
type sortParams struct {
	n, keysPerThread, shift, groups uint32
}

func loadSortParams(args *Args) sortParams {
	p := args.Uint32(3)
	return sortParams{n: p[0], keysPerThread: p[1], shift: p[2], groups: p[3]}
}

// groupRange returns the key indices owned by group. Thread t of group g owns
// keysPerThread consecutive keys starting at (g*GroupSize+t)*keysPerThread,
// so a group owns one contiguous run. Indices at or past n are sentinels.
func (p sortParams) groupRange(grid Grid, group uint32) (first, last uint64) {
	span := uint64(grid.GroupSize) * uint64(p.keysPerThread)
	first = uint64(group) * span
	last = min(first+span, uint64(p.n))
	return first, max(first, last)
}

// threadRange returns the key indices owned by thread t of group.
func (p sortParams) threadRange(grid Grid, group, t uint32) (first, last uint64) {
	first = (uint64(group)*uint64(grid.GroupSize) + uint64(t)) * uint64(p.keysPerThread)
	last = min(first+uint64(p.keysPerThread), uint64(p.n))
	return first, max(first, last)
}

// sumKernel computes out[i] = a[i] + b[i] for every i below len(out).
func sumKernel(grid Grid, group uint32, args *Args) error {
	a, b, out := args.Float32(0), args.Float32(1), args.Float32(2)

	start := int(group) * int(grid.GroupSize)
	end := min(start+int(grid.GroupSize), len(out))
	for i := start; i < end; i++ {
		out[i] = a[i] + b[i]
	}
	return nil
}

// sortUpsweep writes the 16-bucket digit histogram of the group's keys to
// row group of the histogram buffer.
func sortUpsweep(grid Grid, group uint32, args *Args) error {
	keys, hist := args.Uint32(0), args.Uint32(2)
	p := loadSortParams(args)

	var local [radix]uint32
	first, last := p.groupRange(grid, group)
	for i := first; i < last; i++ {
		local[(keys[i]>>p.shift)&digitMask]++
	}
	copy(hist[group*radix:(group+1)*radix], local[:])
	return nil
}

// sortScan replaces every histogram count with its exclusive prefix sum in
// digit-major order: all groups' digit 0 first, then digit 1, and so on.
// The result is the global output position of each group's first key with
// that digit. Dispatched as a single group.
func sortScan(_ Grid, group uint32, args *Args) error {
	if group != 0 {
		return nil
	}
	hist := args.Uint32(2)
	p := loadSortParams(args)

	var running uint32
	for d := uint32(0); d < radix; d++ {
		for g := uint32(0); g < p.groups; g++ {
			slot := g*radix + d
			count := hist[slot]
			hist[slot] = running
			running += count
		}
	}
	return nil
}

// sortDownsweep scatters the group's keys to their scanned positions. Each
// thread starts from the group offset plus the keys of that digit owned by
// lower-numbered threads, so equal digits keep their relative order.
func sortDownsweep(grid Grid, group uint32, args *Args) error {
	return scatter(grid, group, args, false)
}

// sortDownsweepPairs is sortDownsweep moving a uint32 payload in lockstep.
func sortDownsweepPairs(grid Grid, group uint32, args *Args) error {
	return scatter(grid, group, args, true)
}

// threadOffsets returns, per thread of group, the output position of the
// thread's first key for every digit: the scanned (group, digit) offset plus
// an exclusive scan of the per-thread digit counts in thread order.
func threadOffsets(grid Grid, group uint32, p sortParams, keys, hist []uint32) [][radix]uint32 {
	offsets := make([][radix]uint32, grid.GroupSize)
	for t := range offsets {
		first, last := p.threadRange(grid, group, uint32(t))
		for i := first; i < last; i++ {
			offsets[t][(keys[i]>>p.shift)&digitMask]++
		}
	}

	base := hist[group*radix : (group+1)*radix]
	for d := range radix {
		running := base[d]
		for t := range offsets {
			count := offsets[t][d]
			offsets[t][d] = running
			running += count
		}
	}
	return offsets
}

func scatter(grid Grid, group uint32, args *Args, withValues bool) error {
	keysIn, keysOut, hist := args.Uint32(0), args.Uint32(1), args.Uint32(2)
	p := loadSortParams(args)

	var valsIn, valsOut []uint32
	if withValues {
		valsIn, valsOut = args.Uint32(4), args.Uint32(5)
	}

	offsets := threadOffsets(grid, group, p, keysIn, hist)
	for t := range offsets {
		first, last := p.threadRange(grid, group, uint32(t))
		for i := first; i < last; i++ {
			key := keysIn[i]
			d := (key >> p.shift) & digitMask
			dst := offsets[t][d]
			offsets[t][d]++
			keysOut[dst] = key
			if withValues {
				valsOut[dst] = valsIn[i]
			}
		}
	}
	return nil
}
