package state

// TurnView is what a caller sees after a turn. Stage outputs stay server side.
type TurnView struct {
	SessionID         string    `json:"session_id"`
	Messages          []Message `json:"messages"`
	QuickReplies      []string  `json:"quick_replies"`
	SuggestBrief      bool      `json:"suggest_brief"`
	SuggestLawyer     bool      `json:"suggest_lawyer"`
	AnalysisReadiness float64   `json:"analysis_readiness"`
	Phase             Phase     `json:"phase"`
}

// View collects assistant messages appended after index from.
func (s *State) View(from int) TurnView {
	if from < 0 || from > len(s.Messages) {
		from = len(s.Messages)
	}
	var out []Message
	for _, m := range s.Messages[from:] {
		if m.Role == RoleAssistant {
			out = append(out, m)
		}
	}
	replies := s.QuickReplies
	if replies == nil {
		replies = []string{}
	}
	return TurnView{
		SessionID:         s.SessionID,
		Messages:          out,
		QuickReplies:      replies,
		SuggestBrief:      s.SuggestBrief,
		SuggestLawyer:     s.SuggestLawyer,
		AnalysisReadiness: s.Readiness,
		Phase:             s.Phase,
	}
}
