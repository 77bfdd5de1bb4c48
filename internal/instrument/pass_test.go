package instrument

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"panoptes/internal/ir"
)

func TestPipelineRunsPassesInOrder(t *testing.T) {
	p := NewPipeline(Options{})
	names := []string{}
	for _, pass := range p.Passes() {
		names = append(names, pass.Name())
		assert.NotEmpty(t, pass.Description())
	}
	assert.Equal(t, []string{"validate", "guards"}, names)

	out, report, err := p.Run(parse(t, mixedKernel))
	require.NoError(t, err)
	assert.Equal(t, 7, report.Guards)
	assert.True(t, out.Instrumented)
}

func TestPipelineStopsOnInvalidModule(t *testing.T) {
	src := ".version 7.0\n.target sm_80\n.entry k()\n{\n\tbra $L_missing;\n}\n"
	out, _, err := NewPipeline(Options{}).Run(parse(t, src))
	assert.Nil(t, out)
	var verr *ir.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "k", verr.Function)
}
