package learning

import (
	"encoding/json"
	"fmt"
	"log"
	"strconv"

	"github.com/khanglvm/skill-hub/internal/outputs"
	"github.com/khanglvm/skill-hub/internal/storage"
	"github.com/khanglvm/skill-hub/internal/tier"
)

// Classify maps a skill to its content type. Unknown skills are general.
func Classify(skill tier.Skill) storage.ContentType {
	switch skill {
	case tier.SkillCodeHelper:
		return storage.ContentCode
	case tier.SkillGraphicsWizard:
		return storage.ContentImage
	case tier.SkillAudioMaestro:
		return storage.ContentAudio
	case tier.SkillAnalytics:
		return storage.ContentAnalytics
	case tier.SkillMiniPersona:
		return storage.ContentMiniPersona
	case tier.SkillDonationAutomation:
		return storage.ContentDonationAutomation
	default:
		return storage.ContentGeneral
	}
}

// DefaultSteps derives a minimal step list from an output's metadata.
// It is best-effort: unrecognized metadata is ignored and the result is
// never empty.
func DefaultSteps(out outputs.Output) []string {
	md := out.Metadata
	steps := []string{fmt.Sprintf("Receive %s request", out.Skill)}

	if lang, ok := stringField(md, "language"); ok {
		steps = append(steps, fmt.Sprintf("Generate %s source", lang))
	}
	if style, ok := stringField(md, "style"); ok {
		steps = append(steps, fmt.Sprintf("Apply %s style", style))
	}
	if w, okW := numberField(md, "width"); okW {
		if h, okH := numberField(md, "height"); okH {
			steps = append(steps, fmt.Sprintf("Render at %gx%g", w, h))
		}
	}
	if d, ok := numberField(md, "duration"); ok {
		steps = append(steps, fmt.Sprintf("Produce %g seconds of audio", d))
	}
	if genre, ok := stringField(md, "genre"); ok {
		steps = append(steps, fmt.Sprintf("Arrange in %s genre", genre))
	}
	if persona, ok := stringField(md, "persona"); ok {
		steps = append(steps, fmt.Sprintf("Adopt %s persona", persona))
	}

	if len(steps) == 1 {
		steps = append(steps, fmt.Sprintf("Generate %s content", Classify(out.Skill)))
	}
	return append(steps, "Review and approve output")
}

func defaultSummary(out outputs.Output) string {
	switch {
	case out.Description != "":
		return out.Description
	case out.Filename != "":
		return fmt.Sprintf("%s output %s", out.Skill, out.Filename)
	default:
		return fmt.Sprintf("Approved %s output", out.Skill)
	}
}

// metricKeys maps metadata keys to the metric they populate.
var metricKeys = map[string]func(*storage.Metrics, float64){
	"executionTime":  func(m *storage.Metrics, v float64) { m.ExecutionTimeMS = v },
	"renderTime":     func(m *storage.Metrics, v float64) { m.RenderTimeMS = v },
	"processingTime": func(m *storage.Metrics, v float64) { m.ProcessingTimeMS = v },
	"qualityScore":   func(m *storage.Metrics, v float64) { m.QualityScore = v },
}

// ExtractMetrics reads performance measurements from metadata. Times are
// milliseconds. Values that are not numeric are skipped with a warning.
func ExtractMetrics(md map[string]any) storage.Metrics {
	var m storage.Metrics
	for key, set := range metricKeys {
		if _, present := md[key]; !present {
			continue
		}
		v, ok := numberField(md, key)
		if !ok {
			log.Printf("Warning: ignoring non-numeric metric %s=%v", key, md[key])
			continue
		}
		set(&m, v)
	}
	return m
}

func stringField(md map[string]any, key string) (string, bool) {
	s, ok := md[key].(string)
	return s, ok && s != ""
}

// numberField accepts the numeric shapes metadata arrives in after JSON
// or CBOR decoding, plus numeric strings.
func numberField(md map[string]any, key string) (float64, bool) {
	switch v := md[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(v, 64)
		return f, err == nil
	default:
		return 0, false
	}
}
