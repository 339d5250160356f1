package nlp

import (
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// exclusiveKeywords returns, per category, the keywords that contain no
// keyword of any other category.
func exclusiveKeywords(categories []Category) [][]string {
	out := make([][]string, len(categories))
	for i, c := range categories {
		for _, k := range c.Keywords {
			clash := false
			for j, other := range categories {
				if i == j {
					continue
				}
				for _, ok := range other.Keywords {
					if strings.Contains(k, ok) {
						clash = true
					}
				}
			}
			if !clash {
				out[i] = append(out[i], k)
			}
		}
	}
	return out
}

func TestClassifySingleCategoryProperty(t *testing.T) {
	categories := DefaultCategories()
	exclusive := exclusiveKeywords(categories)
	classifier := NewClassifier()

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("text built from one category's keywords classifies as that category", prop.ForAll(
		func(ci int, picks []int) bool {
			pool := exclusive[ci]
			if len(pool) == 0 {
				return true
			}
			parts := make([]string, 0, len(picks))
			for _, p := range picks {
				parts = append(parts, pool[p%len(pool)])
			}
			text := "请" + strings.Join(parts, "，")

			got := classifier.Classify(text)
			if got.Intent != categories[ci].Intent || got.Confidence <= 0 || len(got.MatchedKeywords) == 0 {
				return false
			}
			for _, m := range got.MatchedKeywords {
				if !contains(categories[ci].Keywords, m) {
					return false
				}
			}
			return true
		},
		gen.IntRange(0, len(categories)-1),
		gen.SliceOfN(3, gen.IntRange(0, 100)),
	))

	properties.Property("digits alone are unknown", prop.ForAll(
		func(s string) bool {
			got := classifier.Classify(s)
			return got.Intent == IntentUnknown && got.Confidence == 0 && len(got.MatchedKeywords) == 0
		},
		gen.NumString(),
	))

	properties.TestingRun(t)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func TestClassifyUnknownInputs(t *testing.T) {
	classifier := NewClassifier()

	for _, input := range []any{"", "   ", nil, 123, 4.5, []string{"转账"}} {
		got := classifier.ClassifyAny(input)
		assert.Equal(t, IntentUnknown, got.Intent, "input %v", input)
		assert.Zero(t, got.Confidence)
		assert.NotNil(t, got.MatchedKeywords)
		assert.Empty(t, got.MatchedKeywords)
	}
}

func TestClassifyScores(t *testing.T) {
	classifier := NewClassifier()

	got := classifier.Classify("向Alice转账10个SOL")
	require.Equal(t, IntentTransfer, got.Intent)
	assert.Equal(t, []string{"转账"}, got.MatchedKeywords)
	assert.InDelta(t, 1.0/11.0, got.Confidence, 1e-9)

	got = classifier.Classify("  Check My BALANCE please ")
	require.Equal(t, IntentQueryBalance, got.Intent)
	assert.ElementsMatch(t, []string{"balance", "my balance"}, got.MatchedKeywords)
	assert.InDelta(t, 2.0/9.0, got.Confidence, 1e-9)
}

func TestClassifyTieGoesToLaterCategory(t *testing.T) {
	classifier := NewClassifier(
		Category{Intent: IntentSettings, Keywords: []string{"alpha", "beta"}},
		Category{Intent: IntentHelp, Keywords: []string{"gamma", "delta"}},
	)

	got := classifier.Classify("alpha gamma")
	assert.Equal(t, IntentHelp, got.Intent)
	assert.Equal(t, 0.5, got.Confidence)
	assert.Equal(t, []string{"gamma"}, got.MatchedKeywords)
}

func TestClassifyFullWidthInput(t *testing.T) {
	classifier := NewClassifier()

	got := classifier.Classify("ＨＥＬＰ")
	assert.Equal(t, IntentHelp, got.Intent)
}

func TestNewClassifierDropsEmptyCategories(t *testing.T) {
	classifier := NewClassifier(
		Category{Intent: IntentSettings, Keywords: []string{" ", ""}},
		Category{Intent: IntentHelp, Keywords: []string{"Help"}},
	).(*Classifier)

	categories := classifier.Categories()
	require.Len(t, categories, 1)
	assert.Equal(t, []string{"help"}, categories[0].Keywords)
}
