package scanner

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/depscope/depscope/pkg/model"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		name     string
		hint     Hint
		internal bool
		want     model.Confidence
	}{
		{"dynamic wins over internal", HintDynamic, true, model.ConfidenceDynamic},
		{"dynamic wins over external", HintDynamic, false, model.ConfidenceDynamic},
		{"conditional internal", HintConditional, true, model.ConfidenceConditional},
		{"conditional outranks external", HintConditional, false, model.ConfidenceConditional},
		{"lexical internal resolves", HintLexical, true, model.ConfidenceResolved},
		{"lexical external", HintLexical, false, model.ConfidenceExternal},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Classify(tc.hint, tc.internal))
		})
	}
}

func TestPromote(t *testing.T) {
	// A repeated observation keeps the weaker classification.
	assert.Equal(t, model.ConfidenceDynamic, Promote(model.ConfidenceResolved, model.ConfidenceDynamic))
	assert.Equal(t, model.ConfidenceDynamic, Promote(model.ConfidenceDynamic, model.ConfidenceResolved))
	assert.Equal(t, model.ConfidenceConditional, Promote(model.ConfidenceConditional, model.ConfidenceResolved))
	assert.Equal(t, model.ConfidenceResolved, Promote(model.ConfidenceResolved, model.ConfidenceResolved))
}
