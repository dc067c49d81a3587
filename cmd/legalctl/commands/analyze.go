package commands

import (
	"fmt"
	"strings"

	"legal-assistant-be/pkg/legal/assistant"
	"legal-assistant-be/pkg/legal/state"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze [question]",
	Short: "Run one adaptive analysis and print the route it took",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runAnalyze,
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	c, err := newContainer(ctx)
	if err != nil {
		return err
	}
	defer c.Close()

	res, err := c.Assistant.Analyze(ctx, assistant.AnalyzeRequest{
		Query:       strings.Join(args, " "),
		UserState:   userState,
		DocumentURL: documentURL,
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	pathColor := color.New(color.FgGreen, color.Bold)
	if res.Path == state.PathEscalate {
		pathColor = color.New(color.FgRed, color.Bold)
	}
	pathColor.Fprintf(out, "path: %s\n", res.Path)
	color.New(color.FgCyan).Fprintf(out, "stages: %s\n", strings.Join(res.StagesCompleted, " -> "))
	if len(res.Fallbacks) > 0 {
		color.New(color.FgYellow).Fprintf(out, "fallbacks: %s\n", strings.Join(res.Fallbacks, ", "))
	}
	if res.BriefID != "" {
		fmt.Fprintf(out, "brief: %s\n", res.BriefID)
	}
	fmt.Fprintf(out, "session: %s\n\n%s\n", res.SessionID, res.Response)
	return nil
}
