package schema

import (
	"context"

	goaway "github.com/TwiN/go-away"
)

// ProfanityChecker reports whether text is acceptable.
type ProfanityChecker interface {
	Validate(ctx context.Context, text string) (bool, error)
}

// DefaultHeat is the classifier threshold. Lower heat flags more words.
const DefaultHeat = 0.5

// explicitSeverity is the severity given to go-away's own dictionary.
const explicitSeverity = 0.8

// milder words go-away does not list, 0 (mild) to 1
var gradedWords = map[string]float64{
	"moron":  0.5,
	"idiot":  0.4,
	"hate":   0.4,
	"stupid": 0.3,
	"crap":   0.3,
	"damn":   0.2,
}

// substrings containing a graded word that are fine on their own
var gradedFalsePositives = []string{
	"oxymoron",
	"whatever",
	"whatsoever",
	"chateau",
	"shatter",
	"scrap",
}

// Detector flags text with go-away. Heat picks the dictionary: at or
// below explicitSeverity the default profanities apply, and graded words
// join once their severity reaches the heat.
type Detector struct {
	heat     float64
	detector *goaway.ProfanityDetector
}

func NewProfanityChecker(heat float64) *Detector {
	if heat <= 0 {
		heat = DefaultHeat
	}
	return NewProfanityCheckerWithWords(heat, dictionaryFor(heat))
}

// NewProfanityCheckerWithWords flags exactly the given words.
func NewProfanityCheckerWithWords(heat float64, words []string) *Detector {
	falsePositives := append(append([]string(nil), goaway.DefaultFalsePositives...), gradedFalsePositives...)
	detector := goaway.NewProfanityDetector().
		WithSanitizeLeetSpeak(true).
		WithSanitizeSpecialCharacters(true).
		WithSanitizeAccents(true).
		WithCustomDictionary(words, falsePositives, goaway.DefaultFalseNegatives)
	return &Detector{heat: heat, detector: detector}
}

func dictionaryFor(heat float64) []string {
	var words []string
	if heat <= explicitSeverity {
		words = append(words, goaway.DefaultProfanities...)
	}
	for word, severity := range gradedWords {
		if severity >= heat {
			words = append(words, word)
		}
	}
	return words
}

func (d *Detector) Validate(ctx context.Context, text string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return !d.detector.IsProfane(text), nil
}
