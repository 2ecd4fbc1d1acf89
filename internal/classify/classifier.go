// Package classify labels media through an out-of-process vision model
// and stores the labels as catalog tags.
package classify

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
)

// Label is one classifier guess for an image
type Label struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

// Classifier labels the image stored at path
type Classifier interface {
	Classify(ctx context.Context, path string) ([]Label, error)
}

// parseLabels accepts either {"labels": [...]} or a bare array, optionally
// wrapped in a markdown code fence. Labels are lowercased, confidences
// clamped to [0, 1], and duplicates collapse to their best confidence.
func parseLabels(raw string) ([]Label, error) {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")
	raw = strings.TrimSpace(raw)

	var labels []Label
	if strings.HasPrefix(raw, "[") {
		if err := json.Unmarshal([]byte(raw), &labels); err != nil {
			return nil, err
		}
	} else {
		var wrapped struct {
			Labels []Label `json:"labels"`
		}
		if err := json.Unmarshal([]byte(raw), &wrapped); err != nil {
			return nil, err
		}
		labels = wrapped.Labels
	}

	best := make(map[string]float64, len(labels))
	for _, l := range labels {
		name := strings.ToLower(strings.TrimSpace(l.Label))
		if name == "" {
			continue
		}
		c := min(max(l.Confidence, 0), 1)
		if prev, ok := best[name]; !ok || c > prev {
			best[name] = c
		}
	}

	out := make([]Label, 0, len(best))
	for name, c := range best {
		out = append(out, Label{Label: name, Confidence: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Confidence != out[j].Confidence {
			return out[i].Confidence > out[j].Confidence
		}
		return out[i].Label < out[j].Label
	})
	return out, nil
}
