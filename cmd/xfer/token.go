package main

import (
	"bufio"
	"fmt"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/oauth2"
	"golang.org/x/term"

	"github.com/standalone-transfer/xfer/internal/token"
)

// Flags for the interactive authorization-code bootstrap. Kept local to
// this file since they have no meaning outside the token subcommand.
var (
	flagTokenProvider     string
	flagTokenClientID     string
	flagTokenClientSecret string
	flagTokenFile         string
	flagTokenEncrypt      bool
)

func newTokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Bootstrap a token file via the OAuth authorization-code flow",
		Long: `token prints an authorization URL for the chosen provider, reads back
the code the user pastes after approving access, exchanges it for an
access/refresh token pair, and writes the result to --file in the shape the
gdrive backend's token_file and the onedrive backend's token_path config
keys expect.`,
		RunE: runToken,
	}
	cmd.Flags().StringVar(&flagTokenProvider, "provider", "drive", "drive|onedrive")
	cmd.Flags().StringVar(&flagTokenClientID, "client-id", "", "OAuth client id")
	cmd.Flags().StringVar(&flagTokenClientSecret, "client-secret", "", "OAuth client secret")
	cmd.Flags().StringVar(&flagTokenFile, "file", "./token.json", "where to write the resulting token file")
	cmd.Flags().BoolVar(&flagTokenEncrypt, "encrypt", false, "prompt for a password and encrypt the token file at rest")
	return cmd
}

// providerOAuthConfig returns the authorization/token endpoints and scopes
// for the named provider, matching the endpoints backends/gdrive.New and
// backends/onedrive.New build internally.
func providerOAuthConfig(provider, clientID, clientSecret string) (*oauth2.Config, error) {
	switch provider {
	case "drive":
		return &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Endpoint: oauth2.Endpoint{
				AuthURL:  "https://accounts.google.com/o/oauth2/auth",
				TokenURL: "https://oauth2.googleapis.com/token",
			},
			Scopes:      []string{"https://www.googleapis.com/auth/drive"},
			RedirectURL: "urn:ietf:wg:oauth:2.0:oob",
		}, nil
	case "onedrive":
		return &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Endpoint: oauth2.Endpoint{
				AuthURL:  "https://login.microsoftonline.com/common/oauth2/v2.0/authorize",
				TokenURL: "https://login.microsoftonline.com/common/oauth2/v2.0/token",
			},
			Scopes:      []string{"Files.ReadWrite.All", "offline_access"},
			RedirectURL: "https://login.microsoftonline.com/common/oauth2/nativeclient",
		}, nil
	default:
		return nil, fmt.Errorf("token: unknown provider %q (want drive or onedrive)", provider)
	}
}

func runToken(cmd *cobra.Command, args []string) error {
	oauthCfg, err := providerOAuthConfig(flagTokenProvider, flagTokenClientID, flagTokenClientSecret)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "Visit the URL below, approve access, then paste the code it returns:")
	fmt.Fprintln(out, oauthCfg.AuthCodeURL("state", oauth2.AccessTypeOffline))
	fmt.Fprint(out, "Authorization code: ")

	code, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil {
		return fmt.Errorf("token: reading authorization code: %w", err)
	}
	code = strings.TrimSpace(code)

	tok, err := oauthCfg.Exchange(cmd.Context(), code)
	if err != nil {
		return fmt.Errorf("token: exchanging code: %w", err)
	}

	password := ""
	if flagTokenEncrypt {
		fmt.Fprint(out, "Token file password: ")
		raw, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Fprintln(out)
		if err != nil {
			return fmt.Errorf("token: reading password: %w", err)
		}
		password = string(raw)
	}

	expiresIn := int64(0)
	if !tok.Expiry.IsZero() {
		expiresIn = int64(time.Until(tok.Expiry).Seconds())
	}
	state := token.State{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		Scope:        strings.Join(oauthCfg.Scopes, " "),
		ExpiresIn:    expiresIn,
		AcquiredAt:   time.Now(),
	}
	if err := token.NewStore(flagTokenFile, password).Save(state); err != nil {
		return fmt.Errorf("token: saving token file: %w", err)
	}

	fmt.Fprintf(out, "Wrote token to %s\n", flagTokenFile)
	return nil
}
