// Package readiness scores how much of a legal situation the conversation
// has covered. The score drives the deep-analysis offer.
package readiness

import (
	"regexp"
	"strings"

	"legal-assistant-be/pkg/legal/state"
)

// Item is one entry of the checklist.
type Item string

const (
	ItemJurisdiction  Item = "jurisdiction"
	ItemLegalArea     Item = "legal_area"
	ItemUserRole      Item = "user_role"
	ItemKeyFacts      Item = "key_facts"
	ItemTimeline      Item = "timeline"
	ItemDesiredResult Item = "desired_outcome"
	ItemEvidence      Item = "evidence"
	ItemOtherParty    Item = "other_party"
)

// Checklist is the fixed order items are reported in.
var Checklist = []Item{
	ItemJurisdiction, ItemLegalArea, ItemUserRole, ItemKeyFacts,
	ItemTimeline, ItemDesiredResult, ItemEvidence, ItemOtherParty,
}

var (
	jurisdictionRe = regexp.MustCompile(`(?i)\b(nsw|vic|qld|wa|sa|tas|nt|act|new south wales|victoria|queensland|tasmania|western australia|south australia|northern territory|canberra|sydney|melbourne|brisbane|perth|adelaide|hobart|darwin)\b`)
	areaRe         = regexp.MustCompile(`(?i)\b(lease|rent|rental|bond|tenan\w*|landlord|evict\w*|fired|dismiss\w*|employ\w*|wages?|redundan\w*|divorce|custody|separat\w*|visa|contract|refund|warranty|debt|loan|will|estate|probate|injur\w*|accident|charged|fine|strata|neighbou?r)\b`)
	roleRe         = regexp.MustCompile(`(?i)\b(i am|i'm|im|as) (a|an|the)? ?(tenant|renter|landlord|employee|worker|employer|contractor|buyer|seller|consumer|parent|mother|father|owner|executor|beneficiary|borrower|lender)\b|\bmy (landlord|employer|boss|tenant|ex|partner|husband|wife|agent|manager)\b`)
	timelineRe     = regexp.MustCompile(`(?i)\b(\d{1,2}/\d{1,2}(/\d{2,4})?|\d{4}|january|february|march|april|may|june|july|august|september|october|november|december|yesterday|today|tomorrow|last (week|month|year)|next (week|month)|\d+ (days?|weeks?|months?|years?) ago|since)\b`)
	outcomeRe      = regexp.MustCompile(`(?i)\b(i want|i'd like|i would like|i need|hoping|hope to|my goal|get (my|it|the) \w+ back|compensation|refund|to stay|reinstate\w*)\b`)
	evidenceRe     = regexp.MustCompile(`(?i)\b(email|emails|letter|notice|contract|lease agreement|receipts?|invoices?|photos?|pictures?|texts?|messages?|screenshots?|records?|payslips?|documents?|witness\w*|recording)\b`)
	otherPartyRe   = regexp.MustCompile(`(?i)\b(landlord|agent|employer|boss|manager|company|business|ex|partner|husband|wife|neighbou?r|seller|builder|council|insurer|bank|police|tenant)\b`)
)

// Report is the outcome of a checklist pass.
type Report struct {
	Covered []Item
	Missing []Item
	Score   float64
}

// Assess runs the checklist over the user's side of the conversation.
func Assess(st *state.State) Report {
	var humans []string
	for _, m := range st.Messages {
		if m.Role == state.RoleHuman {
			humans = append(humans, m.Content)
		}
	}
	text := strings.Join(humans, "\n")

	checks := map[Item]bool{
		ItemJurisdiction:  st.UserState != "" || jurisdictionRe.MatchString(text),
		ItemLegalArea:     areaRe.MatchString(text),
		ItemUserRole:      roleRe.MatchString(text),
		ItemKeyFacts:      substantive(humans) >= 2,
		ItemTimeline:      timelineRe.MatchString(text),
		ItemDesiredResult: outcomeRe.MatchString(text),
		ItemEvidence:      evidenceRe.MatchString(text),
		ItemOtherParty:    otherPartyRe.MatchString(text),
	}

	var r Report
	for _, it := range Checklist {
		if checks[it] {
			r.Covered = append(r.Covered, it)
		} else {
			r.Missing = append(r.Missing, it)
		}
	}
	r.Score = float64(len(r.Covered)) / float64(len(Checklist))
	return r
}

// Score is Assess(st).Score.
func Score(st *state.State) float64 {
	return Assess(st).Score
}

// substantive counts messages long enough to carry a fact.
func substantive(msgs []string) int {
	n := 0
	for _, m := range msgs {
		if len(strings.Fields(m)) >= 6 {
			n++
		}
	}
	return n
}
