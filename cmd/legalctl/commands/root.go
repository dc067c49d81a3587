package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"legal-assistant-be/internal/bootstrap"
	"legal-assistant-be/internal/config"

	"github.com/spf13/cobra"
)

var (
	userState   string
	documentURL string
)

var rootCmd = &cobra.Command{
	Use:   "legalctl",
	Short: "Talk to the legal assistant from a terminal",
	Long: `legalctl drives the legal assistant without the HTTP service. It reads the
same environment as the server, so the configured model, search and session
backend are used.`,
	SilenceUsage: true,
}

func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&userState, "state", "", "user's state or territory (NSW, VIC, ...)")
	rootCmd.PersistentFlags().StringVar(&documentURL, "document", "", "URL of a document to consider")

	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(analyzeCmd)
}

// newContainer wires the assistant and starts the handoff consumer so
// generated briefs still reach intake.
func newContainer(ctx context.Context) (*bootstrap.Container, error) {
	cfg := config.Load()
	cfg.App.QuietConsole = true
	c, err := bootstrap.NewContainer(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := c.HandoffService.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "handoff consumer not started: %v\n", err)
	}
	return c, nil
}
