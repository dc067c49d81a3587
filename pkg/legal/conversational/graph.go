// Package conversational wires the multi-turn chat graph with its two
// suspendable sub-protocols: the deep-analysis offer and brief intake.
package conversational

import (
	"legal-assistant-be/pkg/legal/graph"
	"legal-assistant-be/pkg/legal/router"
	"legal-assistant-be/pkg/legal/stage"
)

const Name = "conversational"

const (
	NodeInitialize             graph.NodeID = "initialize"
	NodeSafetyCheck            graph.NodeID = "safety_check"
	NodeEscalationResponse     graph.NodeID = "escalation_response"
	NodeChatResponse           graph.NodeID = "chat_response"
	NodeAnalysisOffer          graph.NodeID = "analysis_offer"
	NodeHandleAnalysisResponse graph.NodeID = "handle_analysis_response"
	NodeDeepAnalysis           graph.NodeID = "deep_analysis"
	NodeAnalysisResponse       graph.NodeID = "analysis_response"
	NodeBriefCheckInfo         graph.NodeID = "brief_check_info"
	NodeBriefAskQuestions      graph.NodeID = "brief_ask_questions"
	NodeBriefGenerate          graph.NodeID = "brief_generate"
)

// Options tune routing without touching the stages.
type Options struct {
	// ReadinessThreshold is the readiness at which deep analysis is offered.
	ReadinessThreshold float64
}

// Build compiles the conversational graph over d.
func Build(d stage.Deps, opts Options) (*graph.Graph, error) {
	b := graph.NewBuilder(Name)
	b.AddNode(NodeInitialize, stage.NewConversationInitialize(d)).
		AddNode(NodeSafetyCheck, stage.NewSafetyCheck(d)).
		AddNode(NodeEscalationResponse, stage.NewCrisisResponse(d)).
		AddNode(NodeChatResponse, stage.NewChatResponse(d)).
		AddNode(NodeAnalysisOffer, stage.NewAnalysisOffer(d)).
		AddNode(NodeHandleAnalysisResponse, stage.NewHandleAnalysisResponse(d)).
		AddNode(NodeDeepAnalysis, stage.NewDeepAnalysis(d)).
		AddNode(NodeAnalysisResponse, stage.NewAnalysisResponse(d)).
		AddNode(NodeBriefCheckInfo, stage.NewBriefCheckInfo(d)).
		AddNode(NodeBriefAskQuestions, stage.NewBriefAskQuestions(d)).
		AddNode(NodeBriefGenerate, stage.NewBriefGenerate(d)).
		SetEntryPoint(NodeInitialize)

	graph.AddConditional(b, NodeInitialize, router.Entry(), map[router.EntryLabel]graph.NodeID{
		router.EntryBrief:            NodeBriefCheckInfo,
		router.EntryAnalysisResponse: NodeHandleAnalysisResponse,
		router.EntryCheck:            NodeSafetyCheck,
		router.EntrySkip:             NodeChatResponse,
	})

	graph.AddConditional(b, NodeSafetyCheck, router.ConversationalSafety(), map[router.SafetyLabel]graph.NodeID{
		router.SafetyEscalate: NodeEscalationResponse,
		router.SafetyContinue: NodeChatResponse,
	})
	b.AddTerminal(NodeEscalationResponse)

	graph.AddConditional(b, NodeChatResponse, router.AfterChat(opts.ReadinessThreshold), map[router.ChatLabel]graph.NodeID{
		router.ChatOfferAnalysis: NodeAnalysisOffer,
		router.ChatEnd:           graph.End,
	})
	b.AddSuspend(NodeAnalysisOffer)

	graph.AddConditional(b, NodeHandleAnalysisResponse, router.Offer(), map[router.OfferLabel]graph.NodeID{
		router.OfferAccept:  NodeDeepAnalysis,
		router.OfferDecline: NodeChatResponse,
	})
	b.AddEdge(NodeDeepAnalysis, NodeAnalysisResponse).
		AddTerminal(NodeAnalysisResponse)

	graph.AddConditional(b, NodeBriefCheckInfo, router.Intake(), map[router.IntakeLabel]graph.NodeID{
		router.IntakeGenerate: NodeBriefGenerate,
		router.IntakeAsk:      NodeBriefAskQuestions,
	})
	b.AddSuspend(NodeBriefAskQuestions)
	b.AddTerminal(NodeBriefGenerate)

	return b.Compile()
}

func MustBuild(d stage.Deps, opts Options) *graph.Graph {
	g, err := Build(d, opts)
	if err != nil {
		panic(err)
	}
	return g
}
