package router

import (
	"regexp"
	"strings"

	"legal-assistant-be/pkg/legal/state"
)

type crisisPattern struct {
	category state.RiskCategory
	re       *regexp.Regexp
}

// Checked in order; the first hit decides the category.
var crisisPatterns = []crisisPattern{
	{state.RiskSuicide, regexp.MustCompile(`(?i)\b(kill myself|end my life|want to die|suicide|self.?harm)\b`)},
	{state.RiskSuicide, regexp.MustCompile(`(?i)\b(can'?t go on|no reason to live|better off dead)\b`)},
	{state.RiskFamilyViolence, regexp.MustCompile(`(?i)\b(hit me|beat me|abused|domestic violence|scared of (my|him|her))\b`)},
	{state.RiskFamilyViolence, regexp.MustCompile(`(?i)\b(threatened to (kill|hurt)|avo|dvo|protection order)\b`)},
	{state.RiskChildWelfare, regexp.MustCompile(`(?i)\b(child (protection|services)|took my (kids|children))\b`)},
	{state.RiskChildWelfare, regexp.MustCompile(`(?i)\b(docs|facs|dcj) (took|removed|came|visited|(is|are) investigating)\b`)},
	{state.RiskChildWelfare, regexp.MustCompile(`(?i)\b(child abuse|hurt (my|the) (child|kid|baby))\b`)},
	{state.RiskCriminal, regexp.MustCompile(`(?i)\b(arrested|police (station|custody)|criminal charges?)\b`)},
	{state.RiskCriminal, regexp.MustCompile(`(?i)\bcharged by (the )?police\b`)},
	{state.RiskCriminal, regexp.MustCompile(`(?i)\bcharged with (an? )?(criminal )?(offence|crime|assault|theft|robbery|fraud|murder|manslaughter|stalking|trespass|possession|drink.?driving|dangerous driving|drug)`)},
	{state.RiskCriminal, regexp.MustCompile(`(?i)\b(going to (jail|prison|court for crime))\b`)},
}

var uncertainPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(court|hearing|deadline|tomorrow|next week)\b`),
	regexp.MustCompile(`(?i)\b(evicted?|kicked out|homeless)\b`),
	regexp.MustCompile(`(?i)\b(scared|afraid|worried|anxious)\b`),
	regexp.MustCompile(`(?i)\b(police|officer|crime)\b`),
	regexp.MustCompile(`(?i)\b(hurt|pain|danger)\b`),
}

// CrisisCategory reports a high-confidence crisis keyword hit.
func CrisisCategory(text string) (state.RiskCategory, bool) {
	for _, p := range crisisPatterns {
		if p.re.MatchString(text) {
			return p.category, true
		}
	}
	return state.RiskNone, false
}

// MightBeRisky reports words that warrant a model safety check.
func MightBeRisky(text string) bool {
	for _, re := range uncertainPatterns {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

var shortFollowUpRiskWords = []string{"help", "emergency", "scared", "hurt", "kill", "die", "suicide"}

// ShortFollowUpLength is the query length under which a non-risky follow-up
// skips the safety check.
const ShortFollowUpLength = 30

func isShortSafeFollowUp(query string) bool {
	if len(query) >= ShortFollowUpLength {
		return false
	}
	lower := strings.ToLower(query)
	for _, w := range shortFollowUpRiskWords {
		if strings.Contains(lower, w) {
			return false
		}
	}
	return !MightBeRisky(query)
}
