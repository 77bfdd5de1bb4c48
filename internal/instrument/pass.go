package instrument

import (
	"github.com/tliron/commonlog"

	"panoptes/internal/ir"
)

var log = commonlog.GetLogger("panoptes.instrument")

// Pass is one module transformation. Apply must not modify its argument.
type Pass interface {
	Name() string
	Description() string
	Apply(m *ir.Module) (*ir.Module, Report, error)
}

// Report summarises what a pass did.
type Report struct {
	Functions int // functions with at least one guard
	Guards    int // guards inserted
	Skipped   int // memory accesses left unguarded by policy
	// AlreadyInstrumented is set when the input carried the marker and the
	// pass returned it unchanged.
	AlreadyInstrumented bool
}

func (r Report) merge(o Report) Report {
	return Report{
		Functions:           r.Functions + o.Functions,
		Guards:              r.Guards + o.Guards,
		Skipped:             r.Skipped + o.Skipped,
		AlreadyInstrumented: r.AlreadyInstrumented || o.AlreadyInstrumented,
	}
}

// Pipeline runs passes in order, feeding each the previous result.
type Pipeline struct {
	passes []Pass
}

// NewPipeline creates the default pipeline: structural validation followed
// by guard insertion.
func NewPipeline(opts Options) *Pipeline {
	pipeline := &Pipeline{}
	pipeline.AddPass(&Validation{})
	pipeline.AddPass(New(opts))
	return pipeline
}

func (p *Pipeline) AddPass(pass Pass) {
	p.passes = append(p.passes, pass)
}

// Passes returns the passes in execution order.
func (p *Pipeline) Passes() []Pass {
	return p.passes
}

// Run executes every pass. The first failing pass aborts the run.
func (p *Pipeline) Run(m *ir.Module) (*ir.Module, Report, error) {
	var total Report
	for _, pass := range p.passes {
		out, report, err := pass.Apply(m)
		if err != nil {
			return nil, total, err
		}
		log.Debugf("%s: %d guards, %d skipped", pass.Name(), report.Guards, report.Skipped)
		total = total.merge(report)
		m = out
	}
	return m, total, nil
}

// Validation rejects structurally broken modules before they are rewritten.
type Validation struct{}

func (*Validation) Name() string { return "validate" }

func (*Validation) Description() string {
	return "Checks function uniqueness, label uniqueness and branch targets"
}

func (*Validation) Apply(m *ir.Module) (*ir.Module, Report, error) {
	if err := ir.Validate(m); err != nil {
		return nil, Report{}, err
	}
	return m, Report{}, nil
}
