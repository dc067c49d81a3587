package state

import (
	"errors"
	"fmt"
)

// Phase is the conversation-level suspend state. It survives between turns
// and is consulted before the graph picks a route for a new message.
type Phase string

const (
	PhaseIdle                 Phase = "idle"
	PhaseAwaitingOfferReply   Phase = "awaiting_offer_reply"
	PhaseAwaitingIntakeAnswer Phase = "awaiting_intake_answer"
)

type PhaseEvent string

const (
	EventNone PhaseEvent = ""
	// EventOfferEmitted is raised when the turn ends on a deep-analysis offer.
	EventOfferEmitted PhaseEvent = "offer_emitted"
	// EventOfferAnswered is raised once the reply to an offer is classified.
	EventOfferAnswered PhaseEvent = "offer_answered"
	// EventQuestionAsked is raised when the turn ends on an intake question.
	EventQuestionAsked PhaseEvent = "question_asked"
	// EventIntakeFinished is raised when the brief is generated.
	EventIntakeFinished PhaseEvent = "intake_finished"
	// EventOfferPreempted drops a pending offer because the user started a brief.
	EventOfferPreempted PhaseEvent = "intake_preempted_offer"
)

var ErrIllegalTransition = errors.New("illegal phase transition")

type transitionKey struct {
	from  Phase
	event PhaseEvent
}

var transitions = map[transitionKey]Phase{
	{PhaseIdle, EventOfferEmitted}:                   PhaseAwaitingOfferReply,
	{PhaseAwaitingOfferReply, EventOfferAnswered}:    PhaseIdle,
	{PhaseAwaitingOfferReply, EventOfferPreempted}:   PhaseIdle,
	{PhaseIdle, EventQuestionAsked}:                  PhaseAwaitingIntakeAnswer,
	{PhaseAwaitingIntakeAnswer, EventQuestionAsked}:  PhaseAwaitingIntakeAnswer,
	{PhaseIdle, EventIntakeFinished}:                 PhaseIdle,
	{PhaseAwaitingIntakeAnswer, EventIntakeFinished}: PhaseIdle,
}

// NextPhase applies one event to the conversation machine.
func NextPhase(from Phase, ev PhaseEvent) (Phase, error) {
	if from == "" {
		from = PhaseIdle
	}
	if ev == EventNone {
		return from, nil
	}
	to, ok := transitions[transitionKey{from, ev}]
	if !ok {
		return from, fmt.Errorf("%w: %s on %s", ErrIllegalTransition, from, ev)
	}
	return to, nil
}
