package notification

import "github.com/BreatheLabs/stillpoint/pkg/detector"

// Composer selects the human-readable nudge text for a positive verdict.
type Composer interface {
	Compose(verdict detector.Verdict) string
}

// Grounding lines, strongest first. Content rules: warm and optional in tone,
// breath or body focused, no advice, no questions about causes, no mention of
// anxiety or techniques, under 240 characters.
var groundingLines = []struct {
	minConfidence float64
	message       string
}{
	{0.85, "Hey, let's pause for a moment. One slow breath in through your nose, then let it out gently. You don't need to figure anything out right now."},
	{0.70, "Let's take a small break together. Breathe in slowly, breathe out slowly. Notice one thing you can feel where you are."},
	{0.0, "Just checking in. One gentle breath, in and out. You're okay right here."},
}

// TemplateComposer maps detector confidence onto the fixed grounding lines.
// Deterministic; no content generation happens here.
type TemplateComposer struct{}

var _ Composer = (*TemplateComposer)(nil)

func NewTemplateComposer() *TemplateComposer {
	return &TemplateComposer{}
}

func (c *TemplateComposer) Compose(verdict detector.Verdict) string {
	for _, line := range groundingLines {
		if verdict.Confidence >= line.minConfidence {
			return line.message
		}
	}
	return groundingLines[len(groundingLines)-1].message
}
