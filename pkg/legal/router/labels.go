// Package router holds the decision functions wired onto conditional edges.
// Every router returns a label from a closed set declared next to it.
package router

import (
	"legal-assistant-be/pkg/legal/graph"
	"legal-assistant-be/pkg/legal/state"
)

type SafetyLabel string

const (
	SafetyEscalate SafetyLabel = "escalate"
	SafetyContinue SafetyLabel = "continue"
)

type PathLabel string

const (
	PathSimple  PathLabel = "simple"
	PathComplex PathLabel = "complex"
)

type EntryLabel string

const (
	EntryBrief            EntryLabel = "brief"
	EntryAnalysisResponse EntryLabel = "analysis_response"
	EntryCheck            EntryLabel = "check"
	EntrySkip             EntryLabel = "skip"
)

type IntakeLabel string

const (
	IntakeGenerate IntakeLabel = "generate"
	IntakeAsk      IntakeLabel = "ask"
)

type ChatLabel string

const (
	ChatOfferAnalysis ChatLabel = "offer_analysis"
	ChatEnd           ChatLabel = "end"
)

type OfferLabel string

const (
	OfferAccept  OfferLabel = "accept"
	OfferDecline OfferLabel = "decline"
)

// AdaptiveSafety routes the adaptive graph after the safety gate. Once the
// gate asks for escalation the turn ends at the crisis response.
func AdaptiveSafety() graph.Router[SafetyLabel] {
	return graph.Router[SafetyLabel]{
		Name:   "safety",
		Labels: []SafetyLabel{SafetyEscalate, SafetyContinue},
		Route: func(st *state.State) SafetyLabel {
			if st.Safety != nil && st.Safety.RequiresEscalation {
				return SafetyEscalate
			}
			return SafetyContinue
		},
	}
}

// ConversationalSafety routes after the lightweight safety check.
func ConversationalSafety() graph.Router[SafetyLabel] {
	return graph.Router[SafetyLabel]{
		Name:   "safety_lite",
		Labels: []SafetyLabel{SafetyEscalate, SafetyContinue},
		Route: func(st *state.State) SafetyLabel {
			if st.SafetyResult == state.SafetyEscalate {
				return SafetyEscalate
			}
			return SafetyContinue
		},
	}
}

// Path forks the adaptive graph on the decision recorded by the complexity
// stage. A missing decision takes the policy default.
func Path() graph.Router[PathLabel] {
	return graph.Router[PathLabel]{
		Name:   "complexity",
		Labels: []PathLabel{PathSimple, PathComplex},
		Route: func(st *state.State) PathLabel {
			if st.Routing != nil && st.Routing.Path == state.PathComplex {
				return PathComplex
			}
			if st.Routing == nil {
				return PathLabel(DefaultOnClassifierFailure)
			}
			return PathSimple
		},
	}
}
