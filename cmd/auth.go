package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"manualqa/internal"
)

var (
	loginEmail         string
	loginPasswordStdin bool
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in to ManualQA",
	Long: `Sign in with your ManualQA account. The session is stored in the
platform credential store and refreshed automatically.

Examples:
  manualqa login --email you@example.com
  echo "$PASSWORD" | manualqa login --email you@example.com --password-stdin`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := requireApp(cmd.Context())
		if err != nil {
			return err
		}

		in := bufio.NewReader(cmd.InOrStdin())
		email := strings.TrimSpace(loginEmail)
		if email == "" {
			fmt.Fprint(cmd.ErrOrStderr(), "Email: ")
			email, err = readLine(in)
			if err != nil {
				return err
			}
		}

		password, err := readPassword(cmd, in)
		if err != nil {
			return err
		}

		profile, err := a.Auth.SignIn(cmd.Context(), email, password)
		if err != nil {
			return err
		}
		printSuccess(cmd.OutOrStdout(), "Signed in as %s", profile.Email)
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Sign out and forget the saved session",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := requireApp(cmd.Context())
		if err != nil {
			return err
		}
		if !a.Auth.IsSignedIn() {
			printSuccess(cmd.OutOrStdout(), "Not signed in")
			return nil
		}
		if err := a.Auth.SignOut(cmd.Context()); err != nil {
			return err
		}
		printSuccess(cmd.OutOrStdout(), "Signed out")
		return nil
	},
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the signed-in user",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := requireSignedIn(cmd.Context())
		if err != nil {
			return err
		}
		user, _ := a.Auth.CurrentUser()
		bundle, _ := a.Sessions.Current()

		w := cmd.OutOrStdout()
		name := user.Email
		if user.Name != "" {
			name = fmt.Sprintf("%s <%s>", user.Name, user.Email)
		}
		fmt.Fprintln(w, titleStyle.Render(name))
		if user.ID != "" {
			fmt.Fprintf(w, "  %s %s\n", dimStyle.Render("User ID  "), user.ID)
		}
		if !bundle.Expiry.IsZero() {
			fmt.Fprintf(w, "  %s %s\n", dimStyle.Render("Expires  "), formatDate(bundle.Expiry))
		}
		fmt.Fprintf(w, "  %s %s\n", dimStyle.Render("Runtime  "), a.Resolver.Environment())
		return nil
	},
}

func init() {
	loginCmd.Flags().StringVarP(&loginEmail, "email", "e", "", "Account email")
	loginCmd.Flags().BoolVar(&loginPasswordStdin, "password-stdin", false, "Read the password from stdin")
}

func readLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("read input: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// readPassword reads from the terminal without echo, or from stdin with
// --password-stdin or when stdin is not a terminal
func readPassword(cmd *cobra.Command, in *bufio.Reader) (string, error) {
	if password := os.Getenv(internal.EnvPrefix + "PASSWORD"); password != "" && !loginPasswordStdin {
		return password, nil
	}

	fd := int(os.Stdin.Fd())
	if loginPasswordStdin || !term.IsTerminal(fd) {
		return readLine(in)
	}

	fmt.Fprint(cmd.ErrOrStderr(), "Password: ")
	raw, err := term.ReadPassword(fd)
	fmt.Fprintln(cmd.ErrOrStderr())
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return string(raw), nil
}
