package scanner

import "github.com/depscope/depscope/pkg/model"

// Hint is the scanner-local part of a confidence decision. The scanner can
// see dispatch shape and branch nesting; whether a target resolves in-tree
// is only known to the sync engine once all files are indexed.
type Hint int

const (
	// HintLexical: a plain call whose final class depends on in-tree
	// resolution (resolved vs external).
	HintLexical Hint = iota
	// HintConditional: the reference sits inside a runtime branch.
	HintConditional
	// HintDynamic: the target is computed — string-based dispatch, a call on
	// a non-name expression, or reflection.
	HintDynamic
)

// Classify applies the fixed decision order for edge confidence:
// dynamic dispatch wins over everything, a branch-guarded call is
// conditional regardless of where its target lives, and only then does
// in-tree resolution split resolved from external.
func Classify(hint Hint, internal bool) model.Confidence {
	switch {
	case hint == HintDynamic:
		return model.ConfidenceDynamic
	case hint == HintConditional:
		return model.ConfidenceConditional
	case internal:
		return model.ConfidenceResolved
	default:
		return model.ConfidenceExternal
	}
}

// Promote narrows an edge's confidence without restructuring it. It returns
// the new class only when it is strictly more certain than the old one;
// otherwise the old class is kept. Order of certainty: resolved >
// conditional > dynamic > external.
func Promote(old, proposed model.Confidence) model.Confidence {
	if rank(proposed) > rank(old) {
		return proposed
	}
	return old
}

func rank(c model.Confidence) int {
	switch c {
	case model.ConfidenceResolved:
		return 3
	case model.ConfidenceConditional:
		return 2
	case model.ConfidenceDynamic:
		return 1
	default:
		return 0
	}
}
