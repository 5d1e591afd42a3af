package detector

import (
	"context"
	"fmt"
	"math"
	"strings"
	"unicode"

	"github.com/mitchellh/mapstructure"
	"golang.org/x/sync/errgroup"
)

const (
	defaultThreshold = 0.55
	defaultMinWords  = 10

	defaultRepetitionWeight = 0.4
	defaultLexiconWeight    = 0.4
	defaultSelfFocusWeight  = 0.2
)

// Config tunes the heuristic. Weights must sum to 1.0; zero values fall back
// to defaults.
type Config struct {
	Threshold        float64  `mapstructure:"threshold"`
	MinWords         int      `mapstructure:"min_words"`
	RepetitionWeight float64  `mapstructure:"repetition_weight"`
	LexiconWeight    float64  `mapstructure:"lexicon_weight"`
	SelfFocusWeight  float64  `mapstructure:"self_focus_weight"`
	ExtraPhrases     []string `mapstructure:"extra_phrases"`
}

// Rumination markers grouped the way the wearer's speech loops: worrying
// forward, relitigating the past, and going in circles.
var phraseBuckets = map[string][]string{
	"worry": {
		"what if", "i'm so worried", "i am so worried", "can't stop thinking",
		"cannot stop thinking", "i can't stop", "what's wrong with me",
		"everyone thinks", "they must think", "they probably think",
		"i can't handle", "something bad",
	},
	"regret": {
		"should have", "shouldn't have", "why did i", "why didn't i",
		"if only", "my fault", "i ruined", "i messed up", "i blew it",
		"i knew it", "so stupid of me", "what was i thinking",
	},
	"loop": {
		"over and over", "again and again", "keep thinking", "keeps thinking",
		"keep going back", "keeps coming back", "round and round",
		"out of my head", "on repeat", "stuck in my head", "can't let it go",
		"can't let go",
	},
}

var selfTokens = map[string]struct{}{
	"i": {}, "i'm": {}, "i've": {}, "i'd": {}, "i'll": {},
	"me": {}, "my": {}, "mine": {}, "myself": {},
}

// Heuristic is the default Detector: a pure lexicon and repetition scorer
// with no model behind it. Deterministic and safe for concurrent use.
type Heuristic struct {
	cfg     Config
	phrases []string
}

var _ Detector = (*Heuristic)(nil)

// NewHeuristic decodes and validates detector settings. Unset knobs take
// defaults; invalid ones are rejected rather than clamped.
func NewHeuristic(settings map[string]interface{}) (*Heuristic, error) {
	var cfg Config
	if err := mapstructure.Decode(settings, &cfg); err != nil {
		return nil, fmt.Errorf("failed to decode detector settings: %w", err)
	}

	if cfg.Threshold == 0 {
		cfg.Threshold = defaultThreshold
	}
	if cfg.Threshold < 0 || cfg.Threshold > 1 {
		return nil, fmt.Errorf("threshold must be between 0 and 1, got %f", cfg.Threshold)
	}
	if cfg.MinWords <= 0 {
		cfg.MinWords = defaultMinWords
	}
	if cfg.RepetitionWeight == 0 && cfg.LexiconWeight == 0 && cfg.SelfFocusWeight == 0 {
		cfg.RepetitionWeight = defaultRepetitionWeight
		cfg.LexiconWeight = defaultLexiconWeight
		cfg.SelfFocusWeight = defaultSelfFocusWeight
	}
	if cfg.RepetitionWeight < 0 || cfg.LexiconWeight < 0 || cfg.SelfFocusWeight < 0 {
		return nil, fmt.Errorf("weights must not be negative")
	}
	total := cfg.RepetitionWeight + cfg.LexiconWeight + cfg.SelfFocusWeight
	if math.Abs(total-1.0) > 1e-9 {
		return nil, fmt.Errorf("weights must sum to 1.0, got %f", total)
	}

	phrases := make([]string, 0, 48)
	for _, bucket := range phraseBuckets {
		phrases = append(phrases, bucket...)
	}
	for _, p := range cfg.ExtraPhrases {
		if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
			phrases = append(phrases, p)
		}
	}

	return &Heuristic{cfg: cfg, phrases: phrases}, nil
}

// Evaluate scores the episode text. Episodes shorter than MinWords are never
// positive; there is too little speech to judge.
func (h *Heuristic) Evaluate(ctx context.Context, text string) (Verdict, error) {
	normalized := strings.ToLower(text)
	words := tokenize(normalized)
	if len(words) < h.cfg.MinWords {
		return Verdict{}, nil
	}

	var repetition, lexicon, selfFocus float64
	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error {
		repetition = repetitionScore(words)
		return nil
	})
	g.Go(func() error {
		lexicon = h.lexiconScore(normalized)
		return nil
	})
	g.Go(func() error {
		selfFocus = selfFocusScore(words)
		return nil
	})
	if err := g.Wait(); err != nil {
		return Verdict{}, err
	}

	confidence := h.cfg.RepetitionWeight*repetition +
		h.cfg.LexiconWeight*lexicon +
		h.cfg.SelfFocusWeight*selfFocus
	confidence = math.Min(1, math.Max(0, confidence))

	return Verdict{
		Positive:   confidence >= h.cfg.Threshold,
		Confidence: confidence,
	}, nil
}

// tokenize splits on anything that is not a letter, digit or apostrophe, so
// "can't" survives as one token.
func tokenize(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r) && r != '\''
	})
}

// repetitionScore measures how much of the episode's word-trigram mass is
// repeated. A quarter of the trigrams repeating saturates the signal.
func repetitionScore(words []string) float64 {
	if len(words) < 3 {
		return 0
	}
	total := len(words) - 2
	counts := make(map[string]int, total)
	for i := 0; i < total; i++ {
		counts[words[i]+" "+words[i+1]+" "+words[i+2]]++
	}
	repeated := 0
	for _, c := range counts {
		if c > 1 {
			repeated += c
		}
	}
	return math.Min(1, 4*float64(repeated)/float64(total))
}

// lexiconScore counts distinct marker phrases present; four saturate it.
func (h *Heuristic) lexiconScore(normalized string) float64 {
	hits := 0
	for _, phrase := range h.phrases {
		if strings.Contains(normalized, phrase) {
			hits++
		}
	}
	return math.Min(1, float64(hits)/4)
}

// selfFocusScore measures first-person token density. Anxious self-talk runs
// one first-person token in five; that density saturates the signal.
func selfFocusScore(words []string) float64 {
	hits := 0
	for _, w := range words {
		if _, ok := selfTokens[w]; ok {
			hits++
		}
	}
	return math.Min(1, 5*float64(hits)/float64(len(words)))
}
