package commands

import (
	"bufio"
	"io"
	"strings"

	"legal-assistant-be/pkg/legal/assistant"
	"legal-assistant-be/pkg/legal/state"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	sessionID string
	uiMode    string
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive conversation",
	Long: `Reads one message per line and prints the assistant's reply. Quick
replies are listed under each answer. An empty line or EOF ends the chat.`,
	RunE: runChat,
}

func init() {
	chatCmd.Flags().StringVar(&sessionID, "session", "", "resume an existing session id")
	chatCmd.Flags().StringVar(&uiMode, "mode", "chat", "chat for quick answers, analysis for a guided consultation")
}

func runChat(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	c, err := newContainer(ctx)
	if err != nil {
		return err
	}
	defer c.Close()

	out := cmd.OutOrStdout()
	prompt := color.New(color.FgCyan, color.Bold)
	reply := color.New(color.FgWhite)
	hint := color.New(color.FgYellow)
	faint := color.New(color.Faint)

	in := bufio.NewScanner(cmd.InOrStdin())
	document := documentURL
	for {
		prompt.Fprint(out, "you> ")
		if !in.Scan() {
			break
		}
		text := strings.TrimSpace(in.Text())
		if text == "" {
			break
		}

		view, err := c.Assistant.Chat(ctx, assistant.ChatRequest{
			SessionID:   sessionID,
			Message:     text,
			UserState:   userState,
			DocumentURL: document,
			UIMode:      state.UIMode(uiMode),
		})
		if err != nil {
			color.New(color.FgRed).Fprintf(out, "error: %v\n", err)
			continue
		}
		// the document is read once per conversation
		document = ""
		sessionID = view.SessionID

		printView(out, view, reply, hint, faint)
	}
	if sessionID != "" {
		faint.Fprintf(out, "\nsession %s\n", sessionID)
	}
	return in.Err()
}

func printView(out io.Writer, v state.TurnView, reply, hint, faint *color.Color) {
	for _, m := range v.Messages {
		reply.Fprintf(out, "\n%s\n", m.Content)
	}
	if len(v.QuickReplies) > 0 {
		hint.Fprintf(out, "\n  [%s]\n", strings.Join(v.QuickReplies, "] ["))
	}
	if v.SuggestLawyer {
		hint.Fprintln(out, "  You may want to speak with a lawyer about this.")
	}
	faint.Fprintf(out, "  phase=%s readiness=%.0f%%\n\n", v.Phase, v.AnalysisReadiness*100)
}
