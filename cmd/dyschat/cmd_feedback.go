package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"dyschat/internal/backend"

	"github.com/spf13/cobra"
)

// feedbackTypes is the fixed catalog of accepted feedback categories.
var feedbackTypes = []string{"general", "bug", "feature", "content", "other"}

var (
	feedbackType  string
	feedbackEmail string
)

// feedbackCmd submits user feedback to the ChatDys team
var feedbackCmd = &cobra.Command{
	Use:   "feedback [message]",
	Short: "Send feedback to the ChatDys team",
	Long: `Sends feedback about ChatDys: general impressions, bug reports, feature
requests, or notes about answer content.

Example:
  dyschat feedback --type bug "The literature section repeated itself"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runFeedback,
}

func init() {
	feedbackCmd.Flags().StringVarP(&feedbackType, "type", "t", "general",
		"Feedback type: "+strings.Join(feedbackTypes, ", "))
	feedbackCmd.Flags().StringVar(&feedbackEmail, "email", "", "Contact email for follow-up")
}

func runFeedback(cmd *cobra.Command, args []string) error {
	valid := false
	for _, t := range feedbackTypes {
		if feedbackType == t {
			valid = true
			break
		}
	}
	if !valid {
		return fmt.Errorf("invalid feedback type %q (want one of %s)",
			feedbackType, strings.Join(feedbackTypes, ", "))
	}

	text := strings.TrimSpace(strings.Join(args, " "))
	if text == "" {
		return fmt.Errorf("feedback message is empty")
	}

	comps, err := buildComponents()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	// Feedback is accepted from signed-out users too; the token is
	// attached when available so the team can follow up.
	token := comps.provider.Token(ctx)

	fb := backend.Feedback{
		Type:  feedbackType,
		Text:  text,
		Email: strings.TrimSpace(feedbackEmail),
	}
	if fb.Email == "" {
		if id := comps.provider.Identity(); id != nil {
			fb.Email = id.Email
		}
	}

	if err := comps.api.SubmitFeedback(ctx, token, fb); err != nil {
		return fmt.Errorf("failed to send feedback: %w", err)
	}

	fmt.Println("✓ Feedback sent. Thank you!")
	return nil
}
