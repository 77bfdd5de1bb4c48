package instrument

import (
	"fmt"
	"slices"

	"panoptes/internal/ir"
)

// DefaultSpaces are the state spaces guarded when no others are configured.
// Param and const memory is never written through user pointers and is left
// alone; generic addressing can be enabled explicitly.
var DefaultSpaces = []ir.MemorySpace{ir.SpaceGlobal, ir.SpaceShared, ir.SpaceLocal}

// Options select the guard policy.
type Options struct {
	// Permissive lets accesses whose shadow status is unknown through.
	// Otherwise only a valid status passes.
	Permissive bool
	// Spaces lists the state spaces whose accesses are guarded. Empty means
	// DefaultSpaces.
	Spaces []ir.MemorySpace
}

// ParseSpaces converts configured names such as "global" or "generic".
func ParseSpaces(names []string) ([]ir.MemorySpace, error) {
	spaces := make([]ir.MemorySpace, 0, len(names))
	for _, n := range names {
		s, err := ir.SpaceByName(n)
		if err != nil {
			return nil, err
		}
		switch s {
		case ir.SpaceReg, ir.SpaceParam, ir.SpaceConst, ir.SpaceTex:
			return nil, fmt.Errorf("state space %q cannot be guarded", n)
		}
		if !slices.Contains(spaces, s) {
			spaces = append(spaces, s)
		}
	}
	return spaces, nil
}

func (o Options) guards(space ir.MemorySpace) bool {
	if len(o.Spaces) == 0 {
		return slices.Contains(DefaultSpaces, space)
	}
	return slices.Contains(o.Spaces, space)
}
