package detector

import "context"

// Verdict is the outcome of evaluating one episode's accumulated transcript.
type Verdict struct {
	Positive   bool
	Confidence float64 // in [0,1]
}

// Detector classifies accumulated transcript text for rumination signals.
// Implementations must be safe for concurrent use across sessions and must
// honor ctx deadlines: Evaluate runs on the silence-timer fire path and may
// not block unbounded.
type Detector interface {
	Evaluate(ctx context.Context, text string) (Verdict, error)
}
