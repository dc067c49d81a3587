package state

import (
	"errors"
	"fmt"
)

var (
	ErrSlotAlreadySet = errors.New("stage output slot already populated this run")
	ErrDuplicateStage = errors.New("stage already completed this run")
	ErrOfferRevoked   = errors.New("analysis_offered cannot revert to false")
	ErrInvalidIntake  = errors.New("invalid brief intake update")
)

// IntakePatch updates the brief-intake sub-state. Nil fields are left alone;
// a non-nil empty slice clears the list. Reset zeroes the intake before the
// rest of the patch is applied.
type IntakePatch struct {
	Reset            bool
	Facts            *ExtractedFacts
	MissingInfo      []string
	UnknownInfo      []string
	Complete         *bool
	NeedsFullIntake  *bool
	PendingQuestions []string
	QuestionIndex    *int
	TotalQuestions   *int
	QuestionsAsked   *int
}

type OfferPatch struct {
	Offered  *bool
	Decision *OfferDecision
	Result   *AnalysisResult
}

// Update is the partial state a stage returns. Messages are appended, Stage
// is appended to StagesCompleted, slots are write-once per run and every
// other non-nil field overwrites the current value.
type Update struct {
	Stage    string
	Messages []Message

	Safety       *SafetyAssessment
	Issue        *IssueClassification
	Jurisdiction *JurisdictionResult
	Facts        *FactStructure
	Elements     *ElementsAnalysis
	Precedents   *PrecedentAnalysis
	Risk         *RiskAssessment
	Strategy     *StrategyRecommendation
	Brief        *EscalationBrief

	SessionID       *string
	UserState       *string
	DocumentURL     *string
	UIMode          *UIMode
	CurrentQuery    *string
	Mode            *Mode
	FirstMessage    *bool
	Routing         *RoutingDecision
	SafetyResult    *SafetyResult
	QuickReplies    []string
	SuggestBrief    *bool
	SuggestLawyer   *bool
	CrisisResources []Resource
	Readiness       *float64
	Error           *string

	Intake *IntakePatch
	Offer  *OfferPatch
	Event  PhaseEvent
}

// Ptr is a small helper for building updates.
func Ptr[T any](v T) *T { return &v }

type validator interface{ Validate() error }

func checkSlot[T any](name string, current, next *T) error {
	if next == nil {
		return nil
	}
	if current != nil {
		return fmt.Errorf("%w: %s", ErrSlotAlreadySet, name)
	}
	if v, ok := any(next).(validator); ok {
		if err := v.Validate(); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

// Merge folds upd into s. Either the whole update is applied or, when any
// part of it is rejected, nothing is.
func Merge(s *State, upd Update) error {
	if upd.Stage != "" && s.Completed(upd.Stage) {
		return fmt.Errorf("%w: %s", ErrDuplicateStage, upd.Stage)
	}

	checks := []error{
		checkSlot("safety_assessment", s.Safety, upd.Safety),
		checkSlot("issue_classification", s.Issue, upd.Issue),
		checkSlot("jurisdiction_result", s.Jurisdiction, upd.Jurisdiction),
		checkSlot("fact_structure", s.Facts, upd.Facts),
		checkSlot("elements_analysis", s.Elements, upd.Elements),
		checkSlot("precedent_analysis", s.Precedents, upd.Precedents),
		checkSlot("risk_assessment", s.Risk, upd.Risk),
		checkSlot("strategy_recommendation", s.Strategy, upd.Strategy),
		checkSlot("escalation_brief", s.Brief, upd.Brief),
	}
	for _, err := range checks {
		if err != nil {
			return err
		}
	}

	phase, err := NextPhase(s.Phase, upd.Event)
	if err != nil {
		return err
	}

	if o := upd.Offer; o != nil {
		if o.Offered != nil && !*o.Offered && s.Offer.Offered {
			return ErrOfferRevoked
		}
		if o.Result != nil {
			if err := o.Result.Validate(); err != nil {
				return fmt.Errorf("analysis_result: %w", err)
			}
		}
	}

	if in := upd.Intake; in != nil && in.Facts != nil {
		if err := in.Facts.Validate(); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidIntake, err)
		}
	}

	s.Messages = append(s.Messages, upd.Messages...)
	if upd.Stage != "" {
		s.StagesCompleted = append(s.StagesCompleted, upd.Stage)
		s.CurrentStage = upd.Stage
	}

	assignSlot(&s.Safety, upd.Safety)
	assignSlot(&s.Issue, upd.Issue)
	assignSlot(&s.Jurisdiction, upd.Jurisdiction)
	assignSlot(&s.Facts, upd.Facts)
	assignSlot(&s.Elements, upd.Elements)
	assignSlot(&s.Precedents, upd.Precedents)
	assignSlot(&s.Risk, upd.Risk)
	assignSlot(&s.Strategy, upd.Strategy)
	assignSlot(&s.Brief, upd.Brief)

	assign(&s.SessionID, upd.SessionID)
	assign(&s.UserState, upd.UserState)
	assign(&s.DocumentURL, upd.DocumentURL)
	assign(&s.UIMode, upd.UIMode)
	assign(&s.CurrentQuery, upd.CurrentQuery)
	assign(&s.Mode, upd.Mode)
	assign(&s.FirstMessage, upd.FirstMessage)
	assign(&s.SafetyResult, upd.SafetyResult)
	assign(&s.SuggestBrief, upd.SuggestBrief)
	assign(&s.SuggestLawyer, upd.SuggestLawyer)
	assign(&s.Readiness, upd.Readiness)
	assign(&s.Error, upd.Error)
	if upd.Routing != nil {
		s.Routing = upd.Routing
	}
	if upd.QuickReplies != nil {
		s.QuickReplies = upd.QuickReplies
	}
	if upd.CrisisResources != nil {
		s.CrisisResources = upd.CrisisResources
	}

	if in := upd.Intake; in != nil {
		applyIntake(&s.Intake, in)
	}
	if o := upd.Offer; o != nil {
		assign(&s.Offer.Offered, o.Offered)
		assign(&s.Offer.Decision, o.Decision)
		if o.Result != nil {
			s.Offer.Result = o.Result
		}
	}

	s.Phase = phase
	s.Offer.PendingResponse = phase == PhaseAwaitingOfferReply
	return nil
}

func applyIntake(b *BriefIntake, p *IntakePatch) {
	if p.Reset {
		*b = BriefIntake{}
	}
	if p.Facts != nil {
		b.Facts = p.Facts
	}
	if p.MissingInfo != nil {
		b.MissingInfo = p.MissingInfo
	}
	if p.UnknownInfo != nil {
		b.UnknownInfo = p.UnknownInfo
	}
	if p.PendingQuestions != nil {
		b.PendingQuestions = p.PendingQuestions
	}
	assign(&b.Complete, p.Complete)
	assign(&b.NeedsFullIntake, p.NeedsFullIntake)
	assign(&b.QuestionIndex, p.QuestionIndex)
	assign(&b.TotalQuestions, p.TotalQuestions)
	assign(&b.QuestionsAsked, p.QuestionsAsked)

	if b.Complete {
		b.PendingQuestions = []string{}
	}
}

func assign[T any](dst *T, src *T) {
	if src != nil {
		*dst = *src
	}
}

func assignSlot[T any](dst **T, src *T) {
	if src != nil {
		*dst = src
	}
}
