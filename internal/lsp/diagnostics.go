package lsp

import (
	protocol "github.com/tliron/glsp/protocol_3_16"

	perrors "panoptes/internal/errors"
	"panoptes/internal/ir"
	"panoptes/internal/parser"
)

const diagnosticSource = "panoptes"

// Analyze parses text and returns the lexical, syntax and structural
// problems found in it. A module that parses is also validated.
func Analyze(name, text string) (*ir.Module, []protocol.Diagnostic) {
	m, err := parser.Parse(name, text)
	if err != nil {
		return nil, ConvertDiagnostics(perrors.Diagnose(err))
	}
	return m, ConvertDiagnostics(perrors.Diagnose(ir.Validate(m)))
}

// ConvertDiagnostics maps reporter diagnostics onto the LSP shape. Lines
// and columns become 0-based.
func ConvertDiagnostics(ds []perrors.Diagnostic) []protocol.Diagnostic {
	out := []protocol.Diagnostic{}
	for _, d := range ds {
		line := uint32(max(0, d.Position.Line-1))
		start := uint32(max(0, d.Position.Column-1))
		diag := protocol.Diagnostic{
			Range: protocol.Range{
				Start: protocol.Position{Line: line, Character: start},
				End:   protocol.Position{Line: line, Character: start + uint32(max(1, d.Length))},
			},
			Severity: ptrSeverity(severity(d.Level)),
			Code:     &protocol.IntegerOrString{Value: d.Code},
			Source:   ptrString(diagnosticSource),
			Message:  d.Message,
		}
		for _, s := range d.Suggestions {
			diag.Message += "\nhelp: " + s.Message
		}
		out = append(out, diag)
	}
	return out
}

func severity(level perrors.Level) protocol.DiagnosticSeverity {
	switch level {
	case perrors.Warning:
		return protocol.DiagnosticSeverityWarning
	case perrors.Note:
		return protocol.DiagnosticSeverityInformation
	case perrors.Help:
		return protocol.DiagnosticSeverityHint
	default:
		return protocol.DiagnosticSeverityError
	}
}

func ptrSeverity(s protocol.DiagnosticSeverity) *protocol.DiagnosticSeverity {
	return &s
}

func ptrString(s string) *string {
	return &s
}
