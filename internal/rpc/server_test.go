package rpc

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/khanglvm/skill-hub/internal/hub"
	"github.com/khanglvm/skill-hub/internal/outputs"
	"github.com/khanglvm/skill-hub/internal/search"
	"github.com/khanglvm/skill-hub/internal/storage"
	"github.com/khanglvm/skill-hub/internal/tier"
)

func newTestServer(t *testing.T, opts ...ServerOption) *Server {
	t.Helper()

	store := storage.NewStorage(filepath.Join(t.TempDir(), "ledger.db"))
	if err := store.Init(); err != nil {
		t.Fatalf("failed to init storage: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	idx, err := search.NewIndexer()
	if err != nil {
		t.Fatalf("failed to create indexer: %v", err)
	}
	h, err := hub.New(store, tier.DefaultCatalog(), hub.WithIndexer(idx))
	if err != nil {
		t.Fatalf("failed to create hub: %v", err)
	}
	t.Cleanup(func() { h.Close() })

	return NewServer(h, opts...)
}

// generatorMap serves fixed generators by skill.
type generatorMap map[tier.Skill]hub.Generator

func (m generatorMap) Generator(skill tier.Skill) (hub.Generator, bool) {
	g, ok := m[skill]
	return g, ok
}

// session runs requests through Run and returns the decoded responses.
func session(t *testing.T, s *Server, requests ...string) []Response {
	t.Helper()

	var out bytes.Buffer
	if err := s.Run(strings.NewReader(strings.Join(requests, "\n")+"\n"), &out); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	var responses []Response
	scanner := bufio.NewScanner(&out)
	for scanner.Scan() {
		var resp Response
		if err := json.Unmarshal(scanner.Bytes(), &resp); err != nil {
			t.Fatalf("invalid response line %q: %v", scanner.Text(), err)
		}
		responses = append(responses, resp)
	}
	if len(responses) != len(requests) {
		t.Fatalf("expected %d responses, got %d", len(requests), len(responses))
	}
	return responses
}

func call(id int, method string, params string) string {
	if params == "" {
		return fmt.Sprintf(`{"jsonrpc":"2.0","id":%d,"method":%q}`, id, method)
	}
	return fmt.Sprintf(`{"jsonrpc":"2.0","id":%d,"method":%q,"params":%s}`, id, method, params)
}

// resultMap re-decodes a generic result into a map.
func resultMap(t *testing.T, resp Response) map[string]interface{} {
	t.Helper()
	if resp.Error != nil {
		t.Fatalf("unexpected error response: %+v", resp.Error)
	}
	m, ok := resp.Result.(map[string]interface{})
	if !ok {
		t.Fatalf("expected object result, got %T", resp.Result)
	}
	return m
}

func TestInitializeAndTiers(t *testing.T) {
	s := newTestServer(t)
	resps := session(t, s,
		call(1, "initialize", ""),
		call(2, "tiers.list", ""),
	)

	info := resultMap(t, resps[0])["serverInfo"].(map[string]interface{})
	if info["name"] != "skill-hub" {
		t.Errorf("unexpected server name %v", info["name"])
	}

	tiers := resultMap(t, resps[1])["tiers"].([]interface{})
	if len(tiers) != 3 {
		t.Errorf("expected 3 tiers, got %d", len(tiers))
	}
}

func TestProtocolErrors(t *testing.T) {
	s := newTestServer(t)
	resps := session(t, s,
		`{not json`,
		call(2, "outputs.teleport", `{}`),
		call(3, "usage.summary", `{}`),
		call(4, "usage.summary", ""),
	)

	want := []int{codeParseError, codeMethodNotFound, codeInvalidParams, codeInvalidParams}
	for i, resp := range resps {
		if resp.Error == nil || resp.Error.Code != want[i] {
			t.Errorf("response %d: expected code %d, got %+v", i, want[i], resp.Error)
		}
	}
}

func TestOutputLifecycle(t *testing.T) {
	s := newTestServer(t)
	resps := session(t, s,
		call(1, "quota.canProceed", `{"owner":"alice","skill":"CodeHelper"}`),
		call(2, "outputs.add", `{"owner":"alice","skill":"CodeHelper","text":"print(1)","metadata":{"language":"python"}}`),
		call(3, "outputs.list", `{"owner":"alice"}`),
	)

	admission := resultMap(t, resps[0])
	if admission["allowed"] != true || admission["remaining"] != float64(2) {
		t.Errorf("unexpected admission %v", admission)
	}

	added := resultMap(t, resps[1])["output"].(map[string]interface{})
	id := added["id"].(string)
	if id == "" {
		t.Fatal("expected output id")
	}

	list := resultMap(t, resps[2])["outputs"].([]interface{})
	if len(list) != 1 {
		t.Fatalf("expected 1 held output, got %d", len(list))
	}

	resps = session(t, s,
		call(4, "outputs.finalize", fmt.Sprintf(`{"id":%q,"action":"download"}`, id)),
		call(5, "outputs.finalize", fmt.Sprintf(`{"id":%q,"action":"download"}`, id)),
		call(6, "outputs.get", fmt.Sprintf(`{"id":%q}`, id)),
		call(7, "usage.summary", `{"owner":"alice"}`),
	)

	if status := resultMap(t, resps[0])["status"]; status != "finalized" {
		t.Errorf("expected finalized, got %v", status)
	}
	if status := resultMap(t, resps[1])["status"]; status != "already_finalized" {
		t.Errorf("expected already_finalized, got %v", status)
	}
	if resps[2].Error == nil || resps[2].Error.Code != codeNotFound {
		t.Errorf("expected not found for finalized output, got %+v", resps[2].Error)
	}

	summary := resultMap(t, resps[3])
	if summary["tier"] != "Free" || summary["held"] != float64(0) {
		t.Errorf("unexpected summary %v", summary)
	}
}

func TestPromoteSearchReinforceExport(t *testing.T) {
	s := newTestServer(t)
	resps := session(t, s,
		call(1, "outputs.add", `{"owner":"alice","skill":"GraphicsWizard","data":"iVBORw0KGgo=","description":"sunset poster"}`),
	)
	id := resultMap(t, resps[0])["output"].(map[string]interface{})["id"].(string)

	resps = session(t, s,
		call(2, "outputs.promote", fmt.Sprintf(`{"outputId":%q,"summary":"warm sunset poster","steps":["pick palette","render"]}`, id)),
		call(3, "outputs.promote", fmt.Sprintf(`{"outputId":%q}`, id)),
	)
	pattern := resultMap(t, resps[0])
	patternID := pattern["id"].(string)
	if pattern["contentType"] != "image" || pattern["successRate"] != float64(1) {
		t.Errorf("unexpected pattern %v", pattern)
	}
	if resps[1].Error == nil || resps[1].Error.Code != codeNotFound {
		t.Errorf("expected nothing to promote on second call, got %+v", resps[1].Error)
	}

	resps = session(t, s,
		call(4, "learning.search", `{"query":"sunset"}`),
		call(5, "learning.reinforce", fmt.Sprintf(`{"patternId":%q,"success":false}`, patternID)),
		call(6, "learning.reinforce", `{"patternId":"missing","success":true}`),
		call(7, "corpus.export", ""),
	)

	hits := resultMap(t, resps[0])["results"].([]interface{})
	if len(hits) != 1 {
		t.Errorf("expected 1 search hit, got %d", len(hits))
	}
	reinforced := resultMap(t, resps[1])
	if reinforced["usageCount"] != float64(1) || reinforced["successRate"] != float64(0) {
		t.Errorf("unexpected reinforce result %v", reinforced)
	}
	if resps[2].Error == nil || resps[2].Error.Code != codeNotFound {
		t.Errorf("expected not found for unknown pattern, got %+v", resps[2].Error)
	}
	if exported := resultMap(t, resps[3])["patterns"].([]interface{}); len(exported) != 1 {
		t.Errorf("expected 1 exported pattern, got %d", len(exported))
	}
}

func TestTierGatedMethods(t *testing.T) {
	s := newTestServer(t)
	resps := session(t, s,
		call(1, "analytics.report", `{"owner":"alice"}`),
		call(2, "outputs.finalize", `{"owner":"alice","ids":["a","b"],"action":"discard"}`),
		call(3, "session.setTier", `{"owner":"alice","tier":"Pro"}`),
		call(4, "analytics.report", `{"owner":"alice"}`),
		call(5, "outputs.finalize", `{"owner":"alice","ids":["a","b"],"action":"discard"}`),
		call(6, "session.setTier", `{"owner":"alice","tier":"Diamond"}`),
	)

	for _, i := range []int{0, 1} {
		if resps[i].Error == nil || resps[i].Error.Code != codeForbidden {
			t.Errorf("response %d: expected forbidden on Free, got %+v", i, resps[i].Error)
		}
	}
	resultMap(t, resps[2])
	resultMap(t, resps[3])
	results := resultMap(t, resps[4])["results"].([]interface{})
	if len(results) != 2 {
		t.Errorf("expected 2 batch results, got %d", len(results))
	}
	if resps[5].Error == nil || resps[5].Error.Code != codeNotFound {
		t.Errorf("expected unknown tier error, got %+v", resps[5].Error)
	}
}

func TestInvalidFinalizeAction(t *testing.T) {
	s := newTestServer(t)
	resps := session(t, s, call(1, "outputs.finalize", `{"id":"x","action":"learn"}`))
	if resps[0].Error == nil || resps[0].Error.Code != codeInvalidParams {
		t.Errorf("expected invalid params, got %+v", resps[0].Error)
	}
}

func TestSkillsGenerate(t *testing.T) {
	gens := generatorMap{
		tier.SkillGraphicsWizard: hub.GeneratorFunc(func(_ context.Context, _ tier.Skill, params map[string]any) (hub.Generated, error) {
			return hub.Generated{Content: outputs.TextContent("<svg/>"), Metadata: params, Filename: "logo.svg"}, nil
		}),
		tier.SkillAudioMaestro: hub.GeneratorFunc(func(context.Context, tier.Skill, map[string]any) (hub.Generated, error) {
			return hub.Generated{}, errors.New("synth offline")
		}),
	}
	s := newTestServer(t, WithGenerators(gens))

	resps := session(t, s,
		call(1, "skills.generate", `{"owner":"alice","skill":"GraphicsWizard","params":{"style":"flat"}}`),
		call(2, "skills.generate", `{"owner":"alice","skill":"GraphicsWizard"}`),
		call(3, "skills.generate", `{"owner":"alice","skill":"AudioMaestro"}`),
		call(4, "skills.generate", `{"owner":"alice","skill":"CodeHelper"}`),
		call(5, "usage.summary", `{"owner":"alice"}`),
	)

	first := resultMap(t, resps[0])
	if first["admission"].(map[string]interface{})["allowed"] != true {
		t.Fatalf("expected first generate admitted, got %v", first)
	}
	if out := first["output"].(map[string]interface{}); out["filename"] != "logo.svg" {
		t.Errorf("unexpected output %v", out)
	}

	// Free allows one GraphicsWizard generation a day.
	second := resultMap(t, resps[1])
	admission := second["admission"].(map[string]interface{})
	if admission["allowed"] != false || admission["suggestedTier"] != "Pro" {
		t.Errorf("expected denial with upgrade hint, got %v", admission)
	}

	if resps[2].Error == nil || resps[2].Error.Code != codeServerError {
		t.Errorf("expected server error for failed generator, got %+v", resps[2].Error)
	}
	if resps[3].Error == nil || resps[3].Error.Code != codeNotFound {
		t.Errorf("expected not found for unconfigured skill, got %+v", resps[3].Error)
	}

	summary := resultMap(t, resps[4])
	if summary["held"] != float64(1) {
		t.Errorf("expected exactly one held output, got %v", summary["held"])
	}
}
