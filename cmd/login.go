package cmd

import (
	"bufio"
	"io"
	"os"
	"strings"

	"github.com/habedi/wanderlist/pkg/clierr"
	"github.com/habedi/wanderlist/pkg/validation"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// loginCmd creates a new cobra.Command for logging into the Wanderlist API.
func loginCmd(a *app) *cobra.Command {
	var username string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Login to Wanderlist",
		Long:  "Login to Wanderlist with your username and password and save the session",
		RunE: func(cmd *cobra.Command, args []string) error {
			reader := bufio.NewReader(cmd.InOrStdin())
			var err error
			if username == "" {
				cmd.Println("Please enter your Wanderlist username and password.")
				if username, err = promptForInput(cmd, reader, "Username: "); err != nil {
					return clierr.New(clierr.Internal, "Failed to read username", err)
				}
			}
			password, err := promptForPassword(cmd, reader, "Password: ")
			if err != nil {
				return clierr.New(clierr.Internal, "Failed to read password", err)
			}

			if err := validateCredentials(username, password); err != nil {
				return clierr.New(clierr.Validation, err.Error(), err)
			}
			if err := a.client.Login(cmd.Context(), username, password); err != nil {
				return clierr.New(clierr.Auth, "Failed to login to Wanderlist.", err)
			}
			cmd.Println("Login was successful.")
			return nil
		},
	}

	cmd.Flags().StringVarP(&username, "username", "u", "", "Username to log in with (prompted when empty)")

	return cmd
}

// logoutCmd forgets the saved session.
func logoutCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the saved session",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.client.Logout(cmd.Context()); err != nil {
				return clierr.New(clierr.Internal, "Failed to remove the saved session.", err)
			}
			cmd.Println("Logged out.")
			return nil
		},
	}
}

// promptForInput prints prompt and returns the next trimmed line of input.
func promptForInput(cmd *cobra.Command, reader *bufio.Reader, prompt string) (string, error) {
	cmd.Print(prompt)
	input, err := reader.ReadString('\n')
	if err != nil && (err != io.EOF || input == "") {
		return "", err
	}
	return strings.TrimSpace(input), nil
}

// promptForPassword reads without echo when stdin is a terminal and falls
// back to a plain line otherwise, so a password can be piped in.
func promptForPassword(cmd *cobra.Command, reader *bufio.Reader, prompt string) (string, error) {
	if f, ok := cmd.InOrStdin().(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		cmd.Print(prompt)
		password, err := term.ReadPassword(int(f.Fd()))
		cmd.Println() // Print a newline for better formatting
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(password)), nil
	}
	return promptForInput(cmd, reader, prompt)
}

func validateCredentials(username, password string) error {
	if err := validation.ValidateNonEmptyString("username", username); err != nil {
		return err
	}
	return validation.ValidateNonEmptyString("password", password)
}
