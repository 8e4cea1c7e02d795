package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"golang.org/x/oauth2"
	goauth "golang.org/x/oauth2/google"
	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

// Options selects the spreadsheet and credentials. A service account wins
// over an OAuth client/token pair; inline JSON wins over a file path.
type Options struct {
	SpreadsheetID      string
	ServiceAccountFile string
	OAuthClientFile    string
	OAuthClientJSON    string
	OAuthTokenFile     string
	OAuthTokenJSON     string
}

func newSheetsService(ctx context.Context, opts Options) (*gsheet.Service, error) {
	if path := strings.TrimSpace(opts.ServiceAccountFile); path != "" {
		credentialsJSON, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		slog.InfoContext(ctx, "Using service account credentials", "path", path)
		return gsheet.NewService(ctx,
			goption.WithCredentialsJSON(credentialsJSON),
			goption.WithScopes(gsheet.SpreadsheetsScope))
	}

	client, err := oauthClient(ctx, opts)
	if err != nil {
		return nil, err
	}
	slog.InfoContext(ctx, "Using OAuth token credentials")
	return gsheet.NewService(ctx, goption.WithHTTPClient(client))
}

func oauthClient(ctx context.Context, opts Options) (*http.Client, error) {
	clientJSON, err := inlineOrFile(opts.OAuthClientJSON, opts.OAuthClientFile)
	if err != nil {
		return nil, fmt.Errorf("oauth client: %w", err)
	}
	tokenJSON, err := inlineOrFile(opts.OAuthTokenJSON, opts.OAuthTokenFile)
	if err != nil {
		return nil, fmt.Errorf("oauth token: %w", err)
	}

	cfg, err := goauth.ConfigFromJSON(clientJSON, gsheet.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("oauth config: %w", err)
	}
	tok, err := ParseToken(tokenJSON)
	if err != nil {
		return nil, err
	}
	return cfg.Client(ctx, tok), nil
}

// ParseToken decodes a token saved by oauth-init.
func ParseToken(data []byte) (*oauth2.Token, error) {
	var tok oauth2.Token
	if err := json.Unmarshal(data, &tok); err != nil {
		return nil, fmt.Errorf("decode oauth token: %w", err)
	}
	if tok.AccessToken == "" && tok.RefreshToken == "" {
		return nil, errors.New("oauth token has neither access nor refresh token")
	}
	return &tok, nil
}

func inlineOrFile(inline, path string) ([]byte, error) {
	if s := strings.TrimSpace(inline); s != "" {
		return []byte(s), nil
	}
	if path = strings.TrimSpace(path); path != "" {
		return os.ReadFile(path)
	}
	return nil, errors.New("no credentials configured")
}
