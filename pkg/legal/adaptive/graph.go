// Package adaptive wires the one-shot analysis graph: safety first, then a
// short path for simple questions and the full analysis chain for complex
// ones.
package adaptive

import (
	"legal-assistant-be/pkg/legal/graph"
	"legal-assistant-be/pkg/legal/router"
	"legal-assistant-be/pkg/legal/stage"
)

const Name = "adaptive"

// Node ids. Both strategy nodes run the same stage.
const (
	NodeInitialize          graph.NodeID = "initialize"
	NodeSafetyGate          graph.NodeID = "safety_gate"
	NodeEscalationResponse  graph.NodeID = "escalation_response"
	NodeIssueIdentification graph.NodeID = "issue_identification"
	NodeComplexityRouting   graph.NodeID = "complexity_routing"
	NodeJurisdiction        graph.NodeID = "jurisdiction"
	NodeSimpleStrategy      graph.NodeID = "simple_strategy"
	NodeSimpleResponse      graph.NodeID = "simple_response"
	NodeFactStructuring     graph.NodeID = "fact_structuring"
	NodeLegalElements       graph.NodeID = "legal_elements"
	NodeCasePrecedent       graph.NodeID = "case_precedent"
	NodeRiskAnalysis        graph.NodeID = "risk_analysis"
	NodeComplexStrategy     graph.NodeID = "complex_strategy"
	NodeEscalationBrief     graph.NodeID = "escalation_brief"
	NodeComplexResponse     graph.NodeID = "complex_response"
)

// Build compiles the adaptive graph over d.
func Build(d stage.Deps) (*graph.Graph, error) {
	b := graph.NewBuilder(Name)
	b.AddNode(NodeInitialize, stage.NewInitialize(d)).
		AddNode(NodeSafetyGate, stage.NewSafetyGate(d)).
		AddNode(NodeEscalationResponse, stage.NewEscalationResponse(d)).
		AddNode(NodeIssueIdentification, stage.NewIssueIdentification(d)).
		AddNode(NodeComplexityRouting, stage.NewComplexityRouting(d)).
		AddNode(NodeJurisdiction, stage.NewJurisdiction(d)).
		AddNode(NodeSimpleStrategy, stage.NewStrategy(d)).
		AddNode(NodeSimpleResponse, stage.NewSimpleResponse(d)).
		AddNode(NodeFactStructuring, stage.NewFactStructuring(d)).
		AddNode(NodeLegalElements, stage.NewLegalElements(d)).
		AddNode(NodeCasePrecedent, stage.NewCasePrecedent(d)).
		AddNode(NodeRiskAnalysis, stage.NewRiskAnalysis(d)).
		AddNode(NodeComplexStrategy, stage.NewStrategy(d)).
		AddNode(NodeEscalationBrief, stage.NewEscalationBrief(d)).
		AddNode(NodeComplexResponse, stage.NewComplexResponse(d)).
		SetEntryPoint(NodeInitialize)

	b.AddEdge(NodeInitialize, NodeSafetyGate)
	graph.AddConditional(b, NodeSafetyGate, router.AdaptiveSafety(), map[router.SafetyLabel]graph.NodeID{
		router.SafetyEscalate: NodeEscalationResponse,
		router.SafetyContinue: NodeIssueIdentification,
	})
	b.AddTerminal(NodeEscalationResponse)

	b.AddEdge(NodeIssueIdentification, NodeComplexityRouting).
		AddEdge(NodeComplexityRouting, NodeJurisdiction)
	graph.AddConditional(b, NodeJurisdiction, router.Path(), map[router.PathLabel]graph.NodeID{
		router.PathSimple:  NodeSimpleStrategy,
		router.PathComplex: NodeFactStructuring,
	})

	b.AddEdge(NodeSimpleStrategy, NodeSimpleResponse).
		AddTerminal(NodeSimpleResponse)

	b.AddEdge(NodeFactStructuring, NodeLegalElements).
		AddEdge(NodeLegalElements, NodeCasePrecedent).
		AddEdge(NodeCasePrecedent, NodeRiskAnalysis).
		AddEdge(NodeRiskAnalysis, NodeComplexStrategy).
		AddEdge(NodeComplexStrategy, NodeEscalationBrief).
		AddEdge(NodeEscalationBrief, NodeComplexResponse).
		AddTerminal(NodeComplexResponse)

	return b.Compile()
}

// MustBuild is Build for wiring at start up.
func MustBuild(d stage.Deps) *graph.Graph {
	g, err := Build(d)
	if err != nil {
		panic(err)
	}
	return g
}
