// Package acceptance turns a bag of worker labels into an acceptance score
// and a binary accept/reject decision. It is a pure function, free of any
// persistence concern, so the state machine and its tests can call it
// directly over whatever labels they already have in hand.
package acceptance

// LabelSet is one worker's label submission relevant to acceptance.
// LangMismatch is a pointer so an absent value can default to 0 without
// being confused with an explicit 0.
type LabelSet struct {
	Spam         float64
	LangMismatch *float64
}

// Evaluate computes:
// acceptance = 1 - mean(spam) - mean(lang_mismatch), accepted when
// acceptance > threshold and len(labels) >= requiredReviews.
func Evaluate(labels []LabelSet, requiredReviews int, threshold float64) (score float64, accepted bool) {
	if len(labels) == 0 {
		return 1, false
	}

	var spamSum, langSum float64
	for _, l := range labels {
		spamSum += l.Spam
		if l.LangMismatch != nil {
			langSum += *l.LangMismatch
		}
	}

	n := float64(len(labels))
	score = 1 - spamSum/n - langSum/n
	accepted = score > threshold && len(labels) >= requiredReviews
	return score, accepted
}
