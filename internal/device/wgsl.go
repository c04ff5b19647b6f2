package device

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// EntryPoint is a compute entry point declared in WGSL source.
type EntryPoint struct {
	Name          string
	WorkgroupSize [3]uint32
}

// Threads returns the number of invocations in one workgroup.
func (e EntryPoint) Threads() uint32 {
	return e.WorkgroupSize[0] * e.WorkgroupSize[1] * e.WorkgroupSize[2]
}

var (
	lineComment  = regexp.MustCompile(`//[^\n]*`)
	blockComment = regexp.MustCompile(`(?s)/\*.*?\*/`)

	computeThenSize = regexp.MustCompile(`@compute\s*@workgroup_size\s*\(([^)]*)\)\s*fn\s+([A-Za-z_][A-Za-z0-9_]*)`)
	sizeThenCompute = regexp.MustCompile(`@workgroup_size\s*\(([^)]*)\)\s*@compute\s*fn\s+([A-Za-z_][A-Za-z0-9_]*)`)

	constDecl = regexp.MustCompile(`const\s+([A-Za-z_][A-Za-z0-9_]*)\s*(?::\s*[a-z0-9]+)?\s*=\s*([0-9]+)[ui]?\s*;`)
)

// StripComments removes line and block comments from WGSL source.
func StripComments(source string) string {
	src := blockComment.ReplaceAllString(source, "")
	return lineComment.ReplaceAllString(src, "")
}

// EntryPoints returns the compute entry points declared in source, in
// declaration order. Workgroup dimensions may be integer literals or
// module-scope integer constants.
func EntryPoints(source string) ([]EntryPoint, error) {
	src := StripComments(source)

	consts := make(map[string]uint32)
	for _, m := range constDecl.FindAllStringSubmatch(src, -1) {
		v, err := strconv.ParseUint(m[2], 10, 32)
		if err != nil {
			continue
		}
		consts[m[1]] = uint32(v)
	}

	type match struct {
		pos  int
		dims string
		name string
	}
	var found []match
	for _, re := range []*regexp.Regexp{computeThenSize, sizeThenCompute} {
		for _, idx := range re.FindAllStringSubmatchIndex(src, -1) {
			found = append(found, match{
				pos:  idx[0],
				dims: src[idx[2]:idx[3]],
				name: src[idx[4]:idx[5]],
			})
		}
	}
	// Restore declaration order across both attribute orderings.
	for i := 1; i < len(found); i++ {
		for j := i; j > 0 && found[j].pos < found[j-1].pos; j-- {
			found[j], found[j-1] = found[j-1], found[j]
		}
	}

	seen := make(map[string]bool, len(found))
	entries := make([]EntryPoint, 0, len(found))
	for _, m := range found {
		if seen[m.name] {
			return nil, fmt.Errorf("duplicate entry point %q", m.name)
		}
		seen[m.name] = true

		size, err := parseWorkgroupSize(m.dims, consts)
		if err != nil {
			return nil, fmt.Errorf("entry point %q: %w", m.name, err)
		}
		entries = append(entries, EntryPoint{Name: m.name, WorkgroupSize: size})
	}
	return entries, nil
}

func parseWorkgroupSize(dims string, consts map[string]uint32) ([3]uint32, error) {
	size := [3]uint32{1, 1, 1}
	parts := strings.Split(dims, ",")
	if len(parts) == 0 || len(parts) > 3 {
		return size, fmt.Errorf("invalid workgroup_size(%s)", dims)
	}
	for i, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			if i == len(parts)-1 && i > 0 {
				// Trailing comma.
				continue
			}
			return size, fmt.Errorf("invalid workgroup_size(%s)", dims)
		}
		if v, ok := consts[p]; ok {
			size[i] = v
			continue
		}
		v, err := strconv.ParseUint(strings.TrimRight(p, "ui"), 10, 32)
		if err != nil {
			return size, fmt.Errorf("unresolved workgroup dimension %q", p)
		}
		size[i] = uint32(v)
	}
	for _, d := range size {
		if d == 0 {
			return size, fmt.Errorf("zero workgroup dimension in workgroup_size(%s)", dims)
		}
	}
	return size, nil
}
