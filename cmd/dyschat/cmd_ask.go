package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"dyschat/internal/session"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// askCmd sends a single question and streams the answer to stdout
var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask a single question and stream the answer",
	Long: `Sends one question to ChatDys and prints the answer sections as they
stream in, then exits. For a conversation, run 'dyschat' without arguments.

Example:
  dyschat ask "What helps with POTS symptoms in hot weather?"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

func runAsk(cmd *cobra.Command, args []string) error {
	question := strings.Join(args, " ")

	comps, err := buildComponents()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Minute)
	defer cancel()

	view := &consoleView{}
	controller := session.NewController(cfg, comps.provider, comps.api, comps.queries, view)
	if err := controller.Bootstrap(ctx); err != nil {
		return err
	}

	s := controller.Session()
	if s == nil {
		return fmt.Errorf("not signed in; run 'dyschat login' first")
	}

	switch controller.Gate().State() {
	case session.GateRequired, session.GateInProgress:
		return fmt.Errorf("profile incomplete; run 'dyschat profile complete' or 'dyschat profile skip' first")
	}

	logger.Info("Sending question", zap.Int("length", len(question)))
	controller.Send(ctx, question)

	if !view.sawSection {
		// Preconditions failed or the stream errored; the view already
		// printed the reason to stderr.
		return fmt.Errorf("no answer received")
	}

	final := controller.Session()
	if final != nil && !final.IsPremium {
		fmt.Printf("\n%d of %d free questions left today.\n",
			session.Remaining(final, cfg.Limits.FreeDailyQuestions),
			cfg.Limits.FreeDailyQuestions)
	}
	return nil
}
