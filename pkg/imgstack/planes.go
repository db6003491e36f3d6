package imgstack

import (
	"fmt"
	"log"
	"sort"
)

// PlaneRegistry maps named mask planes to bit positions within the uint16
// mask plane. Registries are plain values so that pipelines with different
// mask policies can coexist; nothing here is process-global.
type PlaneRegistry struct {
	planes map[string]uint
}

// DefaultPlanes returns a registry with the conventional planes used by the
// reduction pipeline.
func DefaultPlanes() *PlaneRegistry {
	r := &PlaneRegistry{planes: make(map[string]uint)}
	for i, name := range []string{"BAD", "SAT", "INTRP", "CR", "EDGE", "DETECTED", "SUSPECT", "NO_DATA"} {
		r.planes[name] = uint(i)
	}
	return r
}

// NewPlaneRegistry returns an empty registry.
func NewPlaneRegistry() *PlaneRegistry {
	return &PlaneRegistry{planes: make(map[string]uint)}
}

// Add registers a plane under the next free bit. It errors once all 16 bits
// are taken or the name already exists.
func (r *PlaneRegistry) Add(name string) (uint, error) {
	if _, ok := r.planes[name]; ok {
		return 0, fmt.Errorf("imgstack: mask plane %q already registered", name)
	}
	used := make(map[uint]bool, len(r.planes))
	for _, b := range r.planes {
		used[b] = true
	}
	for bit := uint(0); bit < 16; bit++ {
		if !used[bit] {
			r.planes[name] = bit
			return bit, nil
		}
	}
	return 0, fmt.Errorf("imgstack: no free mask bits for plane %q", name)
}

// BitMask returns the single-bit mask for a named plane. Unknown names are an
// error the caller is expected to recover from.
func (r *PlaneRegistry) BitMask(name string) (uint16, error) {
	bit, ok := r.planes[name]
	if !ok {
		return 0, fmt.Errorf("imgstack: unknown mask plane %q", name)
	}
	return 1 << bit, nil
}

// MaskOf folds a list of plane names into a single bad-bit mask. Unknown
// names are logged and skipped; the returned mask covers only the planes that
// resolved.
func (r *PlaneRegistry) MaskOf(names []string, verbose bool) uint16 {
	var bits uint16
	for _, name := range names {
		b, err := r.BitMask(name)
		if err != nil {
			if verbose {
				log.Printf("imgstack: cannot fold plane into bad bit mask: %v", err)
			}
			continue
		}
		bits |= b
	}
	return bits
}

// Names returns the registered plane names in bit order.
func (r *PlaneRegistry) Names() []string {
	names := make([]string, 0, len(r.planes))
	for name := range r.planes {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return r.planes[names[i]] < r.planes[names[j]] })
	return names
}
