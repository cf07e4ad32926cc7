package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/marcus/riverwalk/internal/input"
	"github.com/marcus/riverwalk/internal/output"
	"github.com/marcus/riverwalk/internal/syncclient"
	"github.com/marcus/riverwalk/internal/syncconfig"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var authCmd = &cobra.Command{
	Use:     "auth",
	Short:   "Manage sync authentication",
	GroupID: "system",
}

// promptEmail asks for an email address on an interactive terminal.
func promptEmail() (string, error) {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return "", errors.New("--email is required")
	}
	var email string
	err := huh.NewForm(huh.NewGroup(
		huh.NewInput().
			Title("Email").
			Value(&email).
			Validate(func(s string) error {
				if !strings.Contains(s, "@") {
					return errors.New("enter an email address")
				}
				return nil
			}),
	)).WithTheme(huh.ThemeDracula()).Run()
	return strings.TrimSpace(email), err
}

var authSignupCmd = &cobra.Command{
	Use:   "signup",
	Short: "Create an account on the sync server and log in",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		email, _ := cmd.Flags().GetString("email")
		if email == "" {
			var err error
			if email, err = promptEmail(); err != nil {
				return fail(err)
			}
		}

		serverURL := syncconfig.GetServerURL()
		client := syncclient.New(serverURL, "", syncconfig.GetHTTPTimeout())
		resp, err := client.Signup(cmd.Context(), email)
		if err != nil {
			output.Error("signup: %v", err)
			return err
		}

		creds := &syncconfig.AuthCredentials{
			APIKey:    resp.APIKey,
			UserID:    resp.UserID,
			Email:     resp.Email,
			ServerURL: serverURL,
		}
		if err := syncconfig.SaveAuth(creds); err != nil {
			output.Error("save credentials: %v", err)
			return err
		}
		output.Success("signed up and logged in as %s", resp.Email)
		return nil
	},
}

var authLoginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in with an API key",
	Long: `Log in with an API key issued by the server administrator
(rwalk-server admin create-key). The key is checked against the server and
stored in the rwalk config directory.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, _ := cmd.Flags().GetString("key")
		key, err := input.ReadValue(raw)
		if err != nil {
			return fail(err)
		}
		if key == "" {
			return fail(errors.New("--key is required"))
		}

		serverURL := syncconfig.GetServerURL()
		client := syncclient.New(serverURL, key, syncconfig.GetHTTPTimeout())
		me, err := client.Me(cmd.Context())
		if err != nil {
			output.Error("verify key: %v", err)
			return err
		}

		creds := &syncconfig.AuthCredentials{
			APIKey:    key,
			UserID:    me.UserID,
			Email:     me.Email,
			ServerURL: serverURL,
		}
		if err := syncconfig.SaveAuth(creds); err != nil {
			output.Error("save credentials: %v", err)
			return err
		}
		output.Success("logged in as %s (scopes: %s)", me.Email, strings.Join(me.Scopes, ", "))
		return nil
	},
}

var authLogoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Remove stored credentials",
	Long: `Remove stored credentials. Records and queued changes in the local store
are kept and sync again after the next login.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := syncconfig.ClearAuth(); err != nil {
			output.Error("clear credentials: %v", err)
			return err
		}
		output.Success("logged out")
		return nil
	},
}

var authStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show who is logged in",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		creds, err := syncconfig.LoadAuth()
		if err != nil {
			output.Error("load credentials: %v", err)
			return err
		}
		if creds == nil || creds.APIKey == "" {
			fmt.Println("Not logged in. Run 'rwalk auth signup' or 'rwalk auth login --key <key>'.")
			return nil
		}

		fmt.Printf("Email:  %s\n", creds.Email)
		fmt.Printf("User:   %s\n", creds.UserID)
		fmt.Printf("Server: %s\n", syncconfig.GetServerURL())
		if len(creds.APIKey) > 12 {
			fmt.Printf("Key:    %s...\n", creds.APIKey[:12])
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), healthTimeout)
		defer cancel()
		client := syncclient.New(syncconfig.GetServerURL(), creds.APIKey, healthTimeout)
		me, err := client.Me(ctx)
		if err != nil {
			output.Warning("could not verify key: %v", err)
			return nil
		}
		fmt.Printf("Scopes: %s\n", strings.Join(me.Scopes, ", "))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(authCmd)
	authCmd.AddCommand(authSignupCmd, authLoginCmd, authLogoutCmd, authStatusCmd)

	authSignupCmd.Flags().StringP("email", "e", "", "Email address")
	authLoginCmd.Flags().StringP("key", "k", "", "API key (@file or - to read it from stdin)")
}
