package rpc

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/khanglvm/skill-hub/internal/hub"
	"github.com/khanglvm/skill-hub/internal/learning"
	"github.com/khanglvm/skill-hub/internal/outputs"
	"github.com/khanglvm/skill-hub/internal/storage"
	"github.com/khanglvm/skill-hub/internal/tier"
)

func (s *Server) handleTiersList(json.RawMessage) (interface{}, error) {
	return map[string]interface{}{"tiers": s.hub.Catalog().List()}, nil
}

func (s *Server) handleSetTier(raw json.RawMessage) (interface{}, error) {
	var params struct {
		Owner string `json:"owner"`
		Tier  string `json:"tier"`
	}
	if err := decodeParams(raw, &params); err != nil {
		return nil, err
	}
	if params.Owner == "" || params.Tier == "" {
		return nil, invalidParams("owner and tier are required")
	}

	t, evicted, err := s.hub.SetTier(params.Owner, params.Tier)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"tier": t, "evicted": evictedIDs(evicted)}, nil
}

func evictedIDs(evicted []outputs.Output) []string {
	ids := make([]string, 0, len(evicted))
	for _, out := range evicted {
		ids = append(ids, out.ID)
	}
	return ids
}

type ownerSkillParams struct {
	Owner string     `json:"owner"`
	Skill tier.Skill `json:"skill"`
}

func (s *Server) handleCanProceed(raw json.RawMessage) (interface{}, error) {
	var params ownerSkillParams
	if err := decodeParams(raw, &params); err != nil {
		return nil, err
	}
	if params.Owner == "" || params.Skill == "" {
		return nil, invalidParams("owner and skill are required")
	}
	return s.hub.CanProceed(params.Owner, params.Skill)
}

func (s *Server) handleGenerate(raw json.RawMessage) (interface{}, error) {
	var params struct {
		Owner  string         `json:"owner"`
		Skill  tier.Skill     `json:"skill"`
		Params map[string]any `json:"params"`
	}
	if err := decodeParams(raw, &params); err != nil {
		return nil, err
	}
	if params.Owner == "" || params.Skill == "" {
		return nil, invalidParams("owner and skill are required")
	}

	var gen hub.Generator
	if s.generators != nil {
		gen, _ = s.generators.Generator(params.Skill)
	}
	if gen == nil {
		return nil, fmt.Errorf("%w: %s", errNoGenerator, params.Skill)
	}

	res, err := s.hub.Generate(context.Background(), params.Owner, params.Skill, gen, params.Params)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"admission": res.Admission,
		"output":    res.Output,
		"evicted":   evictedIDs(res.Evicted),
	}, nil
}

func (s *Server) handleOutputsAdd(raw json.RawMessage) (interface{}, error) {
	var params struct {
		Owner       string         `json:"owner"`
		Skill       tier.Skill     `json:"skill"`
		Text        *string        `json:"text"`
		Data        []byte         `json:"data"` // base64
		Metadata    map[string]any `json:"metadata"`
		Filename    string         `json:"filename"`
		Description string         `json:"description"`
	}
	if err := decodeParams(raw, &params); err != nil {
		return nil, err
	}
	if params.Owner == "" || params.Skill == "" {
		return nil, invalidParams("owner and skill are required")
	}

	var content outputs.Content
	switch {
	case params.Text != nil && params.Data != nil:
		return nil, invalidParams("text and data are mutually exclusive")
	case params.Text != nil:
		content = outputs.TextContent(*params.Text)
	case params.Data != nil:
		content = outputs.BinaryContent(params.Data)
	default:
		return nil, invalidParams("one of text or data is required")
	}

	out := outputs.New(params.Owner, params.Skill, content, params.Metadata)
	out.Filename = params.Filename
	out.Description = params.Description

	res, err := s.hub.AddOutput(out)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"output": res.Output, "evicted": evictedIDs(res.Evicted)}, nil
}

func (s *Server) handleOutputsGet(raw json.RawMessage) (interface{}, error) {
	var params struct {
		ID string `json:"id"`
	}
	if err := decodeParams(raw, &params); err != nil {
		return nil, err
	}
	return s.hub.GetOutput(params.ID)
}

func (s *Server) handleOutputsList(raw json.RawMessage) (interface{}, error) {
	var params ownerSkillParams
	if err := decodeParams(raw, &params); err != nil {
		return nil, err
	}
	if params.Owner == "" {
		return nil, invalidParams("owner is required")
	}
	list := s.hub.ListOutputs(params.Owner, params.Skill)
	if list == nil {
		list = []outputs.Output{}
	}
	return map[string]interface{}{"outputs": list}, nil
}

func (s *Server) handleOutputsFinalize(raw json.RawMessage) (interface{}, error) {
	var params struct {
		ID     string         `json:"id"`
		IDs    []string       `json:"ids"`
		Owner  string         `json:"owner"`
		Action storage.Action `json:"action"`
	}
	if err := decodeParams(raw, &params); err != nil {
		return nil, err
	}

	if len(params.IDs) > 0 {
		if params.Owner == "" {
			return nil, invalidParams("owner is required for batch finalize")
		}
		results, err := s.hub.FinalizeBatch(params.Owner, params.IDs, params.Action)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"results": results}, nil
	}

	if params.ID == "" {
		return nil, invalidParams("id or ids is required")
	}
	return s.hub.FinalizeOutput(params.ID, params.Action)
}

func (s *Server) handleOutputsPromote(raw json.RawMessage) (interface{}, error) {
	var req learning.PromoteRequest
	if err := decodeParams(raw, &req); err != nil {
		return nil, err
	}
	if req.OutputID == "" {
		return nil, invalidParams("outputId is required")
	}
	return s.hub.PromoteOutput(req)
}

func (s *Server) handleReinforce(raw json.RawMessage) (interface{}, error) {
	var params struct {
		PatternID string `json:"patternId"`
		Success   *bool  `json:"success"`
	}
	if err := decodeParams(raw, &params); err != nil {
		return nil, err
	}
	if params.PatternID == "" || params.Success == nil {
		return nil, invalidParams("patternId and success are required")
	}
	return s.hub.Reinforce(params.PatternID, *params.Success)
}

func (s *Server) handleSearch(raw json.RawMessage) (interface{}, error) {
	var params struct {
		Query string     `json:"query"`
		Skill tier.Skill `json:"skill"`
		Limit int        `json:"limit"`
	}
	if err := decodeParams(raw, &params); err != nil {
		return nil, err
	}
	results, err := s.hub.SearchPatterns(params.Query, params.Skill, params.Limit)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"results": results}, nil
}

func (s *Server) handleUsageSummary(raw json.RawMessage) (interface{}, error) {
	var params struct {
		Owner string `json:"owner"`
	}
	if err := decodeParams(raw, &params); err != nil {
		return nil, err
	}
	if params.Owner == "" {
		return nil, invalidParams("owner is required")
	}
	return s.hub.UsageSummary(params.Owner)
}

func (s *Server) handleAnalyticsReport(raw json.RawMessage) (interface{}, error) {
	var params struct {
		Owner string `json:"owner"`
	}
	if err := decodeParams(raw, &params); err != nil {
		return nil, err
	}
	if params.Owner == "" {
		return nil, invalidParams("owner is required")
	}
	return s.hub.AnalyticsReport(params.Owner)
}

func (s *Server) handleCorpusExport(raw json.RawMessage) (interface{}, error) {
	var params struct {
		Limit int `json:"limit"`
	}
	if len(raw) > 0 {
		if err := decodeParams(raw, &params); err != nil {
			return nil, err
		}
	}

	patterns := []storage.Pattern{}
	for p, err := range s.hub.CorpusExport() {
		if err != nil {
			return nil, err
		}
		patterns = append(patterns, p)
		if params.Limit > 0 && len(patterns) >= params.Limit {
			break
		}
	}
	return map[string]interface{}{"patterns": patterns}, nil
}
