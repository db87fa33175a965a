package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"dyschat/internal/session"

	"github.com/spf13/cobra"
)

// profileCmd manages the health profile
var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Manage your health profile",
	Long: `View or complete the health profile attached to your ChatDys account.

Available subcommands:
  show       - Show the current profile state
  complete   - Complete the profile from the command line
  skip       - Dismiss the profile requirement for now
  conditions - List the supported condition names`,
}

var profileShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the current profile state",
	RunE:  runProfileShow,
}

var (
	profileFirstName  string
	profileLastName   string
	profilePhone      string
	profileLocation   string
	profileConditions []string
	profileHowHeard   string
)

var profileCompleteCmd = &cobra.Command{
	Use:   "complete",
	Short: "Complete your health profile",
	Long: `Completes the profile without the interactive wizard.

Condition names must come from the supported catalog; list them with
'dyschat profile conditions'.

Example:
  dyschat profile complete \
    --first-name Alex --last-name Rivera \
    --condition "POTS (Postural Orthostatic Tachycardia Syndrome)" \
    --condition "Brain Fog / Cognitive Dysfunction"`,
	RunE: runProfileComplete,
}

var profileSkipCmd = &cobra.Command{
	Use:   "skip",
	Short: "Dismiss the profile requirement",
	RunE:  runProfileSkip,
}

var profileConditionsCmd = &cobra.Command{
	Use:   "conditions",
	Short: "List the supported condition names",
	Run: func(cmd *cobra.Command, args []string) {
		for _, c := range session.Conditions {
			fmt.Println(c)
		}
	},
}

func init() {
	profileCompleteCmd.Flags().StringVar(&profileFirstName, "first-name", "", "First name (required)")
	profileCompleteCmd.Flags().StringVar(&profileLastName, "last-name", "", "Last name (required)")
	profileCompleteCmd.Flags().StringVar(&profilePhone, "phone", "", "Phone number")
	profileCompleteCmd.Flags().StringVar(&profileLocation, "location", "", "Location")
	profileCompleteCmd.Flags().StringArrayVar(&profileConditions, "condition", nil, "Condition name (repeatable, at least one required)")
	profileCompleteCmd.Flags().StringVar(&profileHowHeard, "how-heard", "", "How you heard about ChatDys")
	_ = profileCompleteCmd.MarkFlagRequired("first-name")
	_ = profileCompleteCmd.MarkFlagRequired("last-name")
	_ = profileCompleteCmd.MarkFlagRequired("condition")

	profileCmd.AddCommand(profileShowCmd)
	profileCmd.AddCommand(profileCompleteCmd)
	profileCmd.AddCommand(profileSkipCmd)
	profileCmd.AddCommand(profileConditionsCmd)
}

// bootstrapController builds a controller for the profile commands and
// synchronizes it with the backend.
func bootstrapController(ctx context.Context) (*session.Controller, error) {
	comps, err := buildComponents()
	if err != nil {
		return nil, err
	}
	controller := session.NewController(cfg, comps.provider, comps.api, comps.queries, &consoleView{})
	if err := controller.Bootstrap(ctx); err != nil {
		return nil, err
	}
	if controller.Session() == nil {
		return nil, fmt.Errorf("not signed in; run 'dyschat login' first")
	}
	return controller, nil
}

func runProfileShow(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	controller, err := bootstrapController(ctx)
	if err != nil {
		return err
	}
	s := controller.Session()

	fmt.Printf("User:      %s\n", s.DisplayName)
	fmt.Printf("Profile:   %s\n", controller.Gate().State())
	if len(s.Conditions) > 0 {
		fmt.Printf("Conditions:\n")
		for _, c := range s.Conditions {
			fmt.Printf("  - %s\n", c)
		}
	}
	return nil
}

func runProfileComplete(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
	defer cancel()

	controller, err := bootstrapController(ctx)
	if err != nil {
		return err
	}

	if controller.Gate().State() == session.GateCompleted {
		fmt.Println("Profile already completed.")
		return nil
	}
	controller.OpenOnboarding()

	form := session.ProfileForm{
		FirstName:       strings.TrimSpace(profileFirstName),
		LastName:        strings.TrimSpace(profileLastName),
		PhoneNumber:     strings.TrimSpace(profilePhone),
		Location:        strings.TrimSpace(profileLocation),
		Conditions:      profileConditions,
		HowHeardAboutUs: strings.TrimSpace(profileHowHeard),
	}

	if err := controller.SubmitOnboarding(ctx, form); err != nil {
		var verr *session.ValidationError
		if errors.As(err, &verr) {
			fmt.Println("Profile not saved:")
			for field, msg := range verr.Fields {
				fmt.Printf("  %s: %s\n", field, msg)
			}
			return fmt.Errorf("invalid profile")
		}
		return fmt.Errorf("failed to save profile: %w", err)
	}

	fmt.Println("✓ Profile completed.")
	return nil
}

func runProfileSkip(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
	defer cancel()

	controller, err := bootstrapController(ctx)
	if err != nil {
		return err
	}

	switch controller.Gate().State() {
	case session.GateCompleted:
		fmt.Println("Profile already completed; nothing to skip.")
		return nil
	case session.GateSkipped:
		fmt.Println("Profile already skipped.")
		return nil
	}

	controller.SkipOnboarding(ctx)
	fmt.Printf("Profile skipped (%s mode). Complete it any time with 'dyschat profile complete'.\n",
		cfg.Onboarding.SkipMode)
	return nil
}
