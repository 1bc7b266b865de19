package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/abhisek/rehearse/internal/auth"
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Store an access token for the practice backend",
	Long: "Store an access token for the practice backend. The token is read from\n" +
		"--token, or from stdin when the flag is omitted.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		token, _ := cmd.Flags().GetString("token")
		if token == "" {
			line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
			if err != nil && line == "" {
				return fmt.Errorf("read token: %w", err)
			}
			token = line
		}
		token = strings.TrimSpace(token)
		if token == "" {
			return errors.New("empty token")
		}

		creds, err := newCredentials(token)
		if err != nil {
			return err
		}
		if email, _ := cmd.Flags().GetString("email"); email != "" {
			creds.User.Email = email
		}

		if err := auth.Save(cfg.CredentialsPath, creds); err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Signed in as %s.\n", displayUser(creds))
		if exp := creds.Expiry(); !exp.IsZero() {
			fmt.Fprintf(out, "Token expires %s.\n", exp.Local().Format(time.RFC1123))
		}
		return nil
	},
}

func init() {
	loginCmd.Flags().String("token", "", "Access token (JWT)")
	loginCmd.Flags().String("email", "", "Account email to show in messages")
}

// newCredentials reads sub and exp from token. Tokens that are not JWTs
// are stored as opaque bearer tokens.
func newCredentials(token string) (auth.Credentials, error) {
	creds := auth.Credentials{AccessToken: token, TokenType: "bearer"}

	claims, err := auth.ParseClaims(token)
	if err != nil {
		return creds, nil
	}
	creds.User.ID = claims.Subject
	if claims.ExpiresAt != nil {
		if !claims.ExpiresAt.After(time.Now()) {
			return creds, auth.ErrExpired
		}
		creds.ExpiresAt = claims.ExpiresAt.Unix()
	}
	return creds, nil
}

func displayUser(c auth.Credentials) string {
	switch {
	case c.User.Email != "":
		return c.User.Email
	case c.User.ID != "":
		return c.User.ID
	}
	return "an unnamed account"
}
