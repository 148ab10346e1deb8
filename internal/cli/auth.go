package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newAuthCmd(a *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage authentication",
		Long:  `Sign in to the backend, create an account, or sign out.`,
	}

	login := &cobra.Command{
		Use:   "login",
		Short: "Sign in with email and password",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runLogin(cmd)
		},
	}
	login.Flags().String("email", "", "Account email")

	signup := &cobra.Command{
		Use:   "signup",
		Short: "Create a new account",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runSignUp(cmd)
		},
	}
	signup.Flags().String("email", "", "Account email")

	magic := &cobra.Command{
		Use:   "magic-link",
		Short: "Sign in with a one-time emailed token",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runMagicLink(cmd)
		},
	}
	magic.Flags().String("email", "", "Account email")
	magic.Flags().String("token", "", "Token from the email (prompted when empty)")

	logout := &cobra.Command{
		Use:   "logout",
		Short: "Sign out",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runLogout(cmd)
		},
	}

	status := &cobra.Command{
		Use:   "status",
		Short: "Show who is signed in",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runStatus(cmd)
		},
	}

	cmd.AddCommand(login, signup, magic, logout, status)
	return cmd
}

// email returns the --email flag or prompts for it
func (a *App) email(cmd *cobra.Command) (string, error) {
	email, _ := cmd.Flags().GetString("email")
	if email != "" {
		return email, nil
	}
	email, err := a.prompt(cmd, "Email: ")
	if err != nil {
		return "", err
	}
	if email == "" {
		return "", fmt.Errorf("email is required")
	}
	return email, nil
}

func (a *App) runLogin(cmd *cobra.Command) error {
	c, err := a.connect(cmd)
	if err != nil {
		return err
	}
	defer c.close()

	email, err := a.email(cmd)
	if err != nil {
		return err
	}
	password, err := a.promptPassword(cmd, "Password: ")
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), "🔄 Signing in...")
	if err := c.auth.SignInWithPassword(cmd.Context(), email, password); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "✅ Signed in as %s\n", email)
	return nil
}

func (a *App) runSignUp(cmd *cobra.Command) error {
	c, err := a.connect(cmd)
	if err != nil {
		return err
	}
	defer c.close()

	email, err := a.email(cmd)
	if err != nil {
		return err
	}
	password, err := a.promptPassword(cmd, "Password: ")
	if err != nil {
		return err
	}
	confirm, err := a.promptPassword(cmd, "Confirm Password: ")
	if err != nil {
		return err
	}
	if password != confirm {
		return fmt.Errorf("passwords do not match")
	}

	fmt.Fprintln(cmd.OutOrStdout(), "🔄 Creating account...")
	signedIn, err := c.auth.SignUp(cmd.Context(), email, password)
	if err != nil {
		return err
	}

	if !signedIn {
		fmt.Fprintf(cmd.OutOrStdout(), "📬 Check %s to confirm your account, then run: promanage auth login\n", email)
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✅ Account created, signed in as %s\n", email)
	return nil
}

func (a *App) runMagicLink(cmd *cobra.Command) error {
	c, err := a.connect(cmd)
	if err != nil {
		return err
	}
	defer c.close()

	email, err := a.email(cmd)
	if err != nil {
		return err
	}

	token, _ := cmd.Flags().GetString("token")
	if token == "" {
		fmt.Fprintf(cmd.OutOrStdout(), "🔄 Requesting magic link for %s...\n", email)
		devToken, err := c.auth.SendMagicLink(cmd.Context(), email)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "📬 Magic link sent! Check your email.")
		if devToken != "" {
			fmt.Fprintf(cmd.OutOrStdout(), "🔑 Development token: %s\n", devToken)
		}

		token, err = a.prompt(cmd, "Enter token: ")
		if err != nil {
			return err
		}
		if token == "" {
			return fmt.Errorf("token is required")
		}
	}

	fmt.Fprintln(cmd.OutOrStdout(), "🔄 Verifying token...")
	if err := c.auth.VerifyMagicLink(cmd.Context(), email, token); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✅ Signed in as %s\n", email)
	return nil
}

func (a *App) runLogout(cmd *cobra.Command) error {
	c, err := a.connect(cmd)
	if err != nil {
		return err
	}
	defer c.close()

	if c.root.Session() == nil {
		fmt.Fprintln(cmd.OutOrStdout(), "Not signed in.")
		return nil
	}

	if err := c.root.SignOut(cmd.Context()); err != nil {
		// The local session is gone either way
		fmt.Fprintf(cmd.OutOrStdout(), "Signed out locally (backend said: %v)\n", err)
		return nil
	}
	fmt.Fprintln(cmd.OutOrStdout(), "✅ Signed out.")
	return nil
}

func (a *App) runStatus(cmd *cobra.Command) error {
	c, err := a.connect(cmd)
	if err != nil {
		return err
	}
	defer c.close()

	sess := c.root.Session()
	if sess == nil {
		fmt.Fprintln(cmd.OutOrStdout(), "Not signed in.")
		return nil
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Signed in as %s\n", sess.User.Email)
	fmt.Fprintf(out, "User ID:  %s\n", sess.User.ID)
	fmt.Fprintf(out, "Backend:  %s\n", c.client.BaseURL())
	if sess.ExpiresAt != 0 {
		fmt.Fprintf(out, "Expires:  %s\n", sess.Expiry().Local().Format("Jan 2, 2006 15:04"))
	}
	return nil
}
