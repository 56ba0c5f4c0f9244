package hub

import (
	"context"
	"fmt"

	"github.com/khanglvm/skill-hub/internal/admission"
	"github.com/khanglvm/skill-hub/internal/outputs"
	"github.com/khanglvm/skill-hub/internal/tier"
)

// Generated is what a content generator returns.
type Generated struct {
	Content     outputs.Content
	Metadata    map[string]any
	Filename    string
	Description string
}

// Generator produces content for a skill. Implementations live outside the
// engine and should honor ctx cancellation.
type Generator interface {
	Generate(ctx context.Context, skill tier.Skill, params map[string]any) (Generated, error)
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, skill tier.Skill, params map[string]any) (Generated, error)

// Generate calls f.
func (f GeneratorFunc) Generate(ctx context.Context, skill tier.Skill, params map[string]any) (Generated, error) {
	return f(ctx, skill, params)
}

// GenerateResult is the outcome of Generate. When Admission.Allowed is
// false the generator was not called and Output is zero.
type GenerateResult struct {
	Admission admission.Result `json:"admission"`
	Output    outputs.Output   `json:"output,omitzero"`
	Evicted   []outputs.Output `json:"evicted,omitempty"`
}

// Generate runs the full request path for owner: admission, then the
// external generator, then AddOutput. A quota denial is returned as an
// ordinary result. If ctx is cancelled or the generator fails, nothing is
// recorded and nothing is added.
func (h *Hub) Generate(ctx context.Context, owner string, skill tier.Skill, gen Generator, params map[string]any) (GenerateResult, error) {
	decision, err := h.CanProceed(owner, skill)
	if err != nil {
		return GenerateResult{}, err
	}
	result := GenerateResult{Admission: decision}
	if !decision.Allowed {
		return result, nil
	}

	content, err := gen.Generate(ctx, skill, params)
	if err != nil {
		return GenerateResult{}, fmt.Errorf("generate %s: %w", skill, err)
	}
	if err := ctx.Err(); err != nil {
		return GenerateResult{}, fmt.Errorf("generate %s: %w", skill, err)
	}

	out := outputs.New(owner, skill, content.Content, content.Metadata)
	out.Filename = content.Filename
	out.Description = content.Description

	added, err := h.AddOutput(out)
	if err != nil {
		return GenerateResult{}, err
	}
	result.Output = added.Output
	result.Evicted = added.Evicted
	return result, nil
}
