package ir

import (
	"fmt"
	"strings"
)

// MemorySpace is a PTX state space.
type MemorySpace uint8

const (
	SpaceNone MemorySpace = iota // generic addressing / not a memory space
	SpaceGlobal
	SpaceShared
	SpaceLocal
	SpaceParam
	SpaceConst
	SpaceReg
	SpaceTex
)

var spaceNames = map[MemorySpace]string{
	SpaceNone:   "generic",
	SpaceGlobal: "global",
	SpaceShared: "shared",
	SpaceLocal:  "local",
	SpaceParam:  "param",
	SpaceConst:  "const",
	SpaceReg:    "reg",
	SpaceTex:    "tex",
}

func (s MemorySpace) String() string {
	if n, ok := spaceNames[s]; ok {
		return n
	}
	return fmt.Sprintf("MemorySpace(%d)", uint8(s))
}

// Directive returns the PTX spelling, e.g. ".global". SpaceNone has none.
func (s MemorySpace) Directive() string {
	if s == SpaceNone {
		return ""
	}
	return "." + s.String()
}

// ParseSpace maps a modifier such as ".shared" or ".shared::cta" to its
// space. Anything else yields SpaceNone.
func ParseSpace(modifier string) MemorySpace {
	name, _, _ := strings.Cut(strings.TrimPrefix(modifier, "."), "::")
	switch name {
	case "global":
		return SpaceGlobal
	case "shared":
		return SpaceShared
	case "local":
		return SpaceLocal
	case "param":
		return SpaceParam
	case "const":
		return SpaceConst
	case "reg":
		return SpaceReg
	case "tex":
		return SpaceTex
	}
	return SpaceNone
}

// SpaceByName parses a configuration name ("global", "generic" ...).
func SpaceByName(name string) (MemorySpace, error) {
	for s, n := range spaceNames {
		if n == strings.ToLower(name) {
			return s, nil
		}
	}
	return SpaceNone, fmt.Errorf("unknown memory space %q", name)
}
