package cache

import (
	"panoptes/internal/instrument"
	"panoptes/internal/ir"
	"panoptes/internal/parser"
)

// Translator turns PTX source into an instrumented module.
type Translator interface {
	Translate(src []byte) (*ir.Module, instrument.Report, error)
}

// TranslatorFunc adapts a function to Translator.
type TranslatorFunc func(src []byte) (*ir.Module, instrument.Report, error)

func (f TranslatorFunc) Translate(src []byte) (*ir.Module, instrument.Report, error) {
	return f(src)
}

// PTXTranslator runs scanner, parser and the instrumentation pipeline.
type PTXTranslator struct {
	pipeline *instrument.Pipeline
}

func NewPTXTranslator(opts instrument.Options) *PTXTranslator {
	return &PTXTranslator{pipeline: instrument.NewPipeline(opts)}
}

func (t *PTXTranslator) Translate(src []byte) (*ir.Module, instrument.Report, error) {
	m, err := parser.Parse("module.ptx", string(src))
	if err != nil {
		return nil, instrument.Report{}, err
	}
	return t.pipeline.Run(m)
}
