package router

import (
	"strings"
	"unicode"

	"legal-assistant-be/pkg/legal/graph"
	"legal-assistant-be/pkg/legal/state"
)

const (
	// BriefTrigger is sent by the client to start brief intake.
	BriefTrigger = "[GENERATE_BRIEF]"
	// GenerateNowTrigger asks intake to stop questioning and write the brief.
	GenerateNowTrigger = "[GENERATE_NOW]"

	// DefaultReadinessThreshold is the readiness at which deep analysis is offered.
	DefaultReadinessThreshold = 0.7
)

var (
	acceptPhrases  = []string{"yes", "sure", "ok", "analyze", "do it", "please", "go ahead"}
	declinePhrases = []string{"no", "not now", "skip", "later", "don't", "nope"}

	skipPhrases = []string{
		"i don't know", "i dont know", "not sure", "skip", "i'm not certain",
		"im not certain", "no idea", "unsure", "don't know", "dont know",
		"can't remember", "cant remember", "not certain",
	}
	generateNowPhrases = []string{"generate brief now", "generate now", "just generate", "skip all"}
)

// containsPhrase matches phrase on word boundaries, case-insensitively.
func containsPhrase(text, phrase string) bool {
	text = strings.ToLower(text)
	phrase = strings.ToLower(phrase)
	for from := 0; ; {
		i := strings.Index(text[from:], phrase)
		if i < 0 {
			return false
		}
		start := from + i
		end := start + len(phrase)
		if boundary(text, start-1) && boundary(text, end) {
			return true
		}
		from = start + 1
	}
}

func boundary(text string, i int) bool {
	if i < 0 || i >= len(text) {
		return true
	}
	r := rune(text[i])
	return !(unicode.IsLetter(r) || unicode.IsDigit(r) || r == '\'')
}

func containsAny(text string, phrases []string) bool {
	for _, p := range phrases {
		if containsPhrase(text, p) {
			return true
		}
	}
	return false
}

// ClassifyOfferReply interprets the answer to a deep-analysis offer.
// Anything not recognisably an acceptance declines.
func ClassifyOfferReply(text string) OfferLabel {
	if containsAny(text, acceptPhrases) {
		return OfferAccept
	}
	return OfferDecline
}

// IsExplicitDecline reports a reply that matches a decline phrase. It only
// feeds logging; unrecognised replies decline too.
func IsExplicitDecline(text string) bool {
	return containsAny(text, declinePhrases)
}

// IsSkipReply reports an intake answer meaning "I don't know".
func IsSkipReply(text string) bool {
	return containsAny(text, skipPhrases)
}

// IsGenerateNow reports a request to write the brief immediately.
func IsGenerateNow(text string) bool {
	return strings.Contains(text, GenerateNowTrigger) || containsAny(text, generateNowPhrases)
}

// HasBriefTrigger reports whether the raw message starts brief intake.
func HasBriefTrigger(text string) bool {
	return strings.Contains(text, BriefTrigger)
}

// Entry routes a conversational turn. The conversation phase is consulted
// before anything else; brief intake wins over a pending offer. A crisis
// disclosure inside intake still goes to the safety check.
func Entry() graph.Router[EntryLabel] {
	return graph.Router[EntryLabel]{
		Name:   "entry",
		Labels: []EntryLabel{EntryBrief, EntryAnalysisResponse, EntryCheck, EntrySkip},
		Route: func(st *state.State) EntryLabel {
			inIntake := st.Phase == state.PhaseAwaitingIntakeAnswer || st.Mode == state.ModeBrief
			switch {
			case inIntake && isCrisis(st.CurrentQuery):
				return EntryCheck
			case inIntake:
				return EntryBrief
			case st.Phase == state.PhaseAwaitingOfferReply:
				return EntryAnalysisResponse
			case st.FirstMessage:
				return EntryCheck
			case isShortSafeFollowUp(st.CurrentQuery):
				return EntrySkip
			}
			return EntryCheck
		},
	}
}

func isCrisis(text string) bool {
	_, ok := CrisisCategory(text)
	return ok
}

// Intake decides whether brief intake has enough to write the brief.
func Intake() graph.Router[IntakeLabel] {
	return graph.Router[IntakeLabel]{
		Name:   "brief_info",
		Labels: []IntakeLabel{IntakeGenerate, IntakeAsk},
		Route: func(st *state.State) IntakeLabel {
			if st.Intake.Complete || strings.Contains(st.CurrentQuery, GenerateNowTrigger) || len(st.Intake.MissingInfo) == 0 {
				return IntakeGenerate
			}
			return IntakeAsk
		},
	}
}

// AfterChat offers deep analysis once per session when readiness is high.
func AfterChat(threshold float64) graph.Router[ChatLabel] {
	if threshold <= 0 {
		threshold = DefaultReadinessThreshold
	}
	return graph.Router[ChatLabel]{
		Name:   "after_chat",
		Labels: []ChatLabel{ChatOfferAnalysis, ChatEnd},
		Route: func(st *state.State) ChatLabel {
			if st.Readiness >= threshold && !st.Offer.Offered {
				return ChatOfferAnalysis
			}
			return ChatEnd
		},
	}
}

// Offer follows the decision recorded when the offer reply was handled.
func Offer() graph.Router[OfferLabel] {
	return graph.Router[OfferLabel]{
		Name:   "analysis_offer",
		Labels: []OfferLabel{OfferAccept, OfferDecline},
		Route: func(st *state.State) OfferLabel {
			if st.Offer.Decision == state.OfferAccepted {
				return OfferAccept
			}
			return OfferDecline
		},
	}
}
