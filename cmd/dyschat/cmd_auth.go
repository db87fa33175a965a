package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"time"

	"dyschat/internal/session"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// loginCmd runs the interactive browser login flow
var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in to ChatDys via the browser",
	Long: `Sign in to your ChatDys account.

This command:
1. Opens the browser for the ChatDys login page
2. Waits for the redirect on a local callback port
3. Stores the tokens in ~/.dyschat/tokens.json
4. Syncs your session record with the backend`,
	RunE: runLogin,
}

// logoutCmd clears the stored credentials
var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Sign out and remove stored credentials",
	RunE:  runLogout,
}

// whoamiCmd shows the current identity and usage state
var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the signed-in user, plan, and remaining questions",
	RunE:  runWhoami,
}

func runLogin(cmd *cobra.Command, args []string) error {
	comps, err := buildComponents()
	if err != nil {
		return err
	}

	fmt.Println("Opening browser for ChatDys login...")
	ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Minute)
	defer cancel()

	if err := comps.provider.Login(ctx, openBrowser); err != nil {
		return fmt.Errorf("login failed: %w", err)
	}
	fmt.Println("✓ Signed in")

	// Reconcile the backend session record right away so the first chat
	// launch starts warm.
	view := &consoleView{}
	controller := session.NewController(cfg, comps.provider, comps.api, comps.queries, view)
	if err := controller.Bootstrap(ctx); err != nil {
		logger.Warn("Session bootstrap failed after login", zap.Error(err))
	}

	s := controller.Session()
	if s != nil {
		fmt.Printf("\nWelcome, %s\n", s.DisplayName)
		printPlan(s)
	}

	if controller.Gate().State() == session.GateRequired {
		fmt.Println("\nYour profile is incomplete. Run 'dyschat profile complete' or just start 'dyschat'.")
	}
	return nil
}

func runLogout(cmd *cobra.Command, args []string) error {
	comps, err := buildComponents()
	if err != nil {
		return err
	}
	if !comps.provider.Authenticated() {
		fmt.Println("Not signed in.")
		return nil
	}
	if err := comps.provider.Logout(); err != nil {
		return fmt.Errorf("logout failed: %w", err)
	}
	fmt.Println("✓ Signed out. Stored credentials removed.")
	fmt.Println("To end the browser session as well, visit:")
	fmt.Println("  " + comps.provider.LogoutURL(""))
	return nil
}

func runWhoami(cmd *cobra.Command, args []string) error {
	comps, err := buildComponents()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	view := &consoleView{}
	controller := session.NewController(cfg, comps.provider, comps.api, comps.queries, view)
	if err := controller.Bootstrap(ctx); err != nil {
		return err
	}

	s := controller.Session()
	if s == nil {
		fmt.Println("Not signed in. Run 'dyschat login'.")
		return nil
	}

	fmt.Printf("User:    %s\n", s.DisplayName)
	if s.Email != "" {
		fmt.Printf("Email:   %s\n", s.Email)
	}
	printPlan(s)
	fmt.Printf("Profile: %s\n", controller.Gate().State())
	if !s.BackendReachable {
		fmt.Println("\nWarning: backend unreachable, showing identity data only.")
	}
	return nil
}

func printPlan(s *session.Session) {
	if s.IsPremium {
		fmt.Println("Plan:    Premium (unlimited questions)")
		return
	}
	remaining := session.Remaining(s, cfg.Limits.FreeDailyQuestions)
	fmt.Printf("Plan:    Free (%d of %d questions left today)\n",
		remaining, cfg.Limits.FreeDailyQuestions)
}

// openBrowser opens the specified URL in the default browser.
func openBrowser(url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "windows":
		cmd = exec.Command("cmd", "/c", "start", url)
	case "darwin":
		cmd = exec.Command("open", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	return cmd.Start()
}

// consoleView is the plain-text session.View used by the one-shot
// commands. Section output goes to stdout, problems to stderr.
type consoleView struct {
	sawSection bool
}

func (v *consoleView) RenderSection(index int, title, content string, state session.SectionState) {
	if state == session.SectionLoading {
		return
	}
	if !v.sawSection {
		v.sawSection = true
	}
	fmt.Printf("\n%d. %s\n\n%s\n", index, title, content)
}

func (v *consoleView) RenderIdentity(s *session.Session) {}

func (v *consoleView) ShowError(msg string) {
	fmt.Fprintln(os.Stderr, "Error: "+msg)
}

func (v *consoleView) ShowWarning(msg string) {
	fmt.Fprintln(os.Stderr, "Warning: "+msg)
}

func (v *consoleView) ShowUpsell() {
	fmt.Fprintln(os.Stderr, "Upgrade to Premium at chatdys.com for unlimited questions.")
}
