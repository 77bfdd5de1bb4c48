package ir

// Class groups opcodes by how they touch memory and control flow.
type Class uint8

const (
	ClassOther Class = iota
	ClassLoad
	ClassStore
	ClassAtomic    // read-modify-write with a result
	ClassReduction // read-modify-write without a result
	ClassBranch
	ClassCall
	ClassReturn
)

func (c Class) String() string {
	switch c {
	case ClassLoad:
		return "load"
	case ClassStore:
		return "store"
	case ClassAtomic:
		return "atomic"
	case ClassReduction:
		return "reduction"
	case ClassBranch:
		return "branch"
	case ClassCall:
		return "call"
	case ClassReturn:
		return "return"
	default:
		return "other"
	}
}

var opcodeClasses = map[string]Class{
	"ld":   ClassLoad,
	"ldu":  ClassLoad,
	"st":   ClassStore,
	"atom": ClassAtomic,
	"red":  ClassReduction,
	"bra":  ClassBranch,
	"brx":  ClassBranch,
	"call": ClassCall,
	"ret":  ClassReturn,
	"exit": ClassReturn,
}

// Classify returns the class of a bare opcode ("ld", not "ld.global").
func Classify(opcode string) Class {
	return opcodeClasses[opcode]
}

// IsMemoryAccess reports whether the class reads or writes addressed memory.
func (c Class) IsMemoryAccess() bool {
	switch c {
	case ClassLoad, ClassStore, ClassAtomic, ClassReduction:
		return true
	}
	return false
}

var typeWidths = map[string]int{
	".b8": 1, ".u8": 1, ".s8": 1,
	".b16": 2, ".u16": 2, ".s16": 2, ".f16": 2, ".bf16": 2,
	".b32": 4, ".u32": 4, ".s32": 4, ".f32": 4, ".f16x2": 4, ".bf16x2": 4, ".tf32": 4,
	".b64": 8, ".u64": 8, ".s64": 8, ".f64": 8,
	".b128": 16,
}

var vectorWidths = map[string]int{".v2": 2, ".v4": 4, ".v8": 8}

// TypeWidth returns the byte width of a scalar PTX type, or 0.
func TypeWidth(typ string) int {
	return typeWidths[typ]
}

// AccessWidth returns the number of bytes an instruction moves, derived from
// its last type modifier and optional vector modifier. It returns 0 when no
// type modifier is present.
func (i *Instruction) AccessWidth() int {
	width, lanes := 0, 1
	for _, m := range i.Modifiers {
		if w, ok := typeWidths[m]; ok {
			width = w
		}
		if n, ok := vectorWidths[m]; ok {
			lanes = n
		}
	}
	return width * lanes
}
