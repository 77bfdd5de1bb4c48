package ir

import (
	"errors"
	"fmt"
)

// ValidationError describes a structural defect in one function.
type ValidationError struct {
	Function string
	Pos      Pos
	Message  string
	// Symbol is the offending label, if any. For an undefined branch
	// target, Candidates lists the labels the function does define.
	Symbol     string
	Candidates []string
}

func (e *ValidationError) Error() string {
	if e.Pos.Line > 0 {
		return fmt.Sprintf("%s (line %d): %s", e.Function, e.Pos.Line, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Function, e.Message)
}

// Validate checks module structure: functions are defined at most once,
// labels are unique per function, and direct branches target a label of
// the same function. All defects are reported, joined.
func Validate(m *Module) error {
	var errs []error
	defined := make(map[string]bool)
	for _, f := range m.Functions() {
		if f.Prototype {
			continue
		}
		if defined[f.Name] {
			errs = append(errs, &ValidationError{Function: f.Name, Pos: f.Pos, Message: "function defined more than once"})
		}
		defined[f.Name] = true
		errs = append(errs, validateFunction(f)...)
	}
	return errors.Join(errs...)
}

func validateFunction(f *Function) []error {
	var errs []error
	labels := make(map[string]bool)
	var names []string
	Walk(f.Body, func(st Statement) bool {
		if l, ok := st.(*Label); ok {
			if labels[l.Name] {
				errs = append(errs, &ValidationError{Function: f.Name, Pos: l.Pos, Message: fmt.Sprintf("duplicate label %s", l.Name), Symbol: l.Name})
			} else {
				names = append(names, l.Name)
			}
			labels[l.Name] = true
		}
		return true
	})

	Walk(f.Body, func(st Statement) bool {
		inst, ok := st.(*Instruction)
		if !ok || inst.Opcode != "bra" || len(inst.Operands) == 0 {
			return true
		}
		target := inst.Operands[0]
		if target.Kind == OperandSymbol && !labels[target.Name] {
			errs = append(errs, &ValidationError{
				Function:   f.Name,
				Pos:        inst.Pos,
				Message:    fmt.Sprintf("branch to undefined label %s", target.Name),
				Symbol:     target.Name,
				Candidates: names,
			})
		}
		return true
	})
	return errs
}
