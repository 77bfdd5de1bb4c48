package errors

// Diagnostic codes reported for PTX sources.
//
// Code ranges:
// P0001-P0099: Lexical errors
// P0100-P0199: Syntax errors
// P0200-P0299: Structural (validation) errors

const (
	// P0001: Character no token rule accepts
	ErrorUnexpectedCharacter = "P0001"

	// P0100: Generic syntax error
	ErrorSyntax = "P0100"

	// P0101: Missing ';' after an instruction or declaration
	ErrorMissingSemicolon = "P0101"

	// P0102: Function body or block not closed
	ErrorUnterminatedBlock = "P0102"

	// P0103: Declaration without a state space
	ErrorMissingStateSpace = "P0103"

	// P0104: Malformed instruction operand
	ErrorInvalidOperand = "P0104"

	// P0200: Label defined twice in one function
	ErrorDuplicateLabel = "P0200"

	// P0201: Branch to a label the function does not define
	ErrorUndefinedLabel = "P0201"

	// P0202: Function body defined more than once
	ErrorDuplicateFunction = "P0202"
)

// GetErrorDescription returns a human-readable description of the code.
func GetErrorDescription(code string) string {
	switch code {
	case ErrorUnexpectedCharacter:
		return "Source contains a character that starts no PTX token"
	case ErrorSyntax:
		return "Token sequence does not match the PTX grammar"
	case ErrorMissingSemicolon:
		return "Statement is not terminated by ';'"
	case ErrorUnterminatedBlock:
		return "Function body or nested block is missing its closing '}'"
	case ErrorMissingStateSpace:
		return "Variable or parameter declaration names no state space"
	case ErrorInvalidOperand:
		return "Instruction operand is malformed"
	case ErrorDuplicateLabel:
		return "Label is defined more than once in the same function"
	case ErrorUndefinedLabel:
		return "Branch targets a label that is not defined in the function"
	case ErrorDuplicateFunction:
		return "Function body is defined more than once in the module"
	default:
		return "Unknown error code"
	}
}
