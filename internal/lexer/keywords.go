package lexer

// OPCODES lists the PTX instruction mnemonics recognised by the scanner.
// Identifiers outside this table are plain names (labels, symbols, targets).
var OPCODES = map[string]struct{}{
	// Integer and floating point arithmetic
	"add": {}, "sub": {}, "mul": {}, "mad": {}, "mul24": {}, "mad24": {},
	"sad": {}, "div": {}, "rem": {}, "abs": {}, "neg": {}, "min": {},
	"max": {}, "popc": {}, "clz": {}, "bfind": {}, "fns": {}, "brev": {},
	"bfe": {}, "bfi": {}, "dp4a": {}, "dp2a": {}, "fma": {}, "rcp": {},
	"sqrt": {}, "rsqrt": {}, "sin": {}, "cos": {}, "lg2": {}, "ex2": {},
	"tanh": {}, "testp": {}, "copysign": {}, "addc": {}, "subc": {},
	"madc": {},

	// Comparison and selection
	"set": {}, "setp": {}, "selp": {}, "slct": {},

	// Logic and shift
	"and": {}, "or": {}, "xor": {}, "not": {}, "cnot": {}, "lop3": {},
	"shf": {}, "shl": {}, "shr": {},

	// Data movement and conversion
	"mov": {}, "shfl": {}, "prmt": {}, "ld": {}, "ldu": {}, "st": {},
	"prefetch": {}, "prefetchu": {}, "isspacep": {}, "cvta": {}, "cvt": {},
	"cp": {}, "tex": {}, "tld4": {}, "txq": {}, "suld": {}, "sust": {},
	"sured": {}, "suq": {}, "mapa": {}, "alloca": {},

	// Control flow
	"bra": {}, "brx": {}, "call": {}, "ret": {}, "exit": {},

	// Synchronisation and communication
	"bar": {}, "barrier": {}, "membar": {}, "fence": {}, "atom": {},
	"red": {}, "vote": {}, "match": {}, "activemask": {}, "redux": {},
	"griddepcontrol": {}, "elect": {}, "mbarrier": {},

	// Miscellaneous
	"trap": {}, "brkpt": {}, "pmevent": {}, "nanosleep": {}, "wmma": {},
	"mma": {}, "ldmatrix": {}, "stmatrix": {},
}

func lookupIdentifier(text string) Kind {
	if _, ok := OPCODES[text]; ok {
		return Opcode
	}
	return Identifier
}
