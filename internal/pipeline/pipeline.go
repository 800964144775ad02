// Package pipeline represents one realized root-to-leaf chain of fitted
// stages. A Pipeline satisfies the stage contract itself, so a fitted sweep
// result can be dropped anywhere a single stage is expected.
package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/vk/mdsweep/internal/dataset"
	"github.com/vk/mdsweep/internal/stage"
)

// Link is one stage of a realized pipeline: its configuration and, once the
// sweep has run, its fitted instance.
type Link struct {
	Spec   stage.Spec
	Fitted stage.Fitted
}

// Pipeline is an ordered composition of stages applied sequentially.
type Pipeline struct {
	links []Link
}

// New builds a pipeline from realized links.
func New(links []Link) *Pipeline {
	return &Pipeline{links: links}
}

// Links returns the chain in order.
func (p *Pipeline) Links() []Link {
	return p.links
}

// Specs returns the stage configurations along the chain.
func (p *Pipeline) Specs() []stage.Spec {
	specs := make([]stage.Spec, len(p.links))
	for i, l := range p.links {
		specs[i] = l.Spec
	}
	return specs
}

// Assignment renders the full parameter assignment along the chain. Results
// arriving in nondeterministic completion order can be restored to canonical
// order by sorting on it.
func (p *Pipeline) Assignment() string {
	parts := make([]string, len(p.links))
	for i, l := range p.links {
		parts[i] = l.Spec.String()
	}
	return strings.Join(parts, " -> ")
}

// Transform applies the fitted chain to new data. Every link must have been
// fitted first.
func (p *Pipeline) Transform(ctx context.Context, in dataset.Handle) (dataset.Handle, error) {
	cur := in
	for _, l := range p.links {
		if l.Fitted == nil {
			return nil, fmt.Errorf("pipeline stage %s is not fitted", l.Spec)
		}
		if l.Spec.Role == stage.RoleFit {
			continue
		}
		out, err := l.Fitted.Transform(ctx, cur)
		if err != nil {
			return nil, fmt.Errorf("pipeline stage %s: %w", l.Spec, err)
		}
		cur = out
	}
	return cur, nil
}

// AsStage adapts the pipeline to the stage contract so a realized chain can
// stand in wherever a single stage is expected. Fitting the adapted stage
// refits every link in sequence; the parameter assignment is the chain's own.
func (p *Pipeline) AsStage(reg *stage.Registry) stage.Stage {
	return pipelineStage{p: p, reg: reg}
}

type pipelineStage struct {
	p   *Pipeline
	reg *stage.Registry
}

func (s pipelineStage) Fit(ctx context.Context, in dataset.Handle, _ stage.Params) (stage.Fitted, error) {
	return s.p.Fit(ctx, s.reg, in)
}

// Fit refits the whole chain against a dataset using a registry to construct
// fresh stage instances, feeding each stage's output to the next. The
// receiver is unchanged; the fitted pipeline is returned.
func (p *Pipeline) Fit(ctx context.Context, reg *stage.Registry, in dataset.Handle) (*Pipeline, error) {
	fitted := make([]Link, len(p.links))
	cur := in
	for i, l := range p.links {
		st, err := reg.New(l.Spec.Type)
		if err != nil {
			return nil, err
		}
		f, err := st.Fit(ctx, cur, l.Spec.Params)
		if err != nil {
			return nil, fmt.Errorf("fitting pipeline stage %s: %w", l.Spec, err)
		}
		fitted[i] = Link{Spec: l.Spec, Fitted: f}
		if l.Spec.Role != stage.RoleFit {
			cur, err = f.Transform(ctx, cur)
			if err != nil {
				return nil, fmt.Errorf("transforming through pipeline stage %s: %w", l.Spec, err)
			}
		}
	}
	return New(fitted), nil
}
