// Package auth loads service account credentials and builds the authenticated
// HTTP client used for console calls.
package auth

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"golang.org/x/oauth2/jwt"

	"github.com/JakeFAU/gsc-indexer/internal/indexer"
)

// Scopes requested for every token.
var Scopes = []string{
	"https://www.googleapis.com/auth/webmasters.readonly",
	"https://www.googleapis.com/auth/indexing",
}

// FileName is the credentials file looked up in the working and config directories.
const FileName = "service_account.json"

// Options selects where credentials come from, in priority order: explicit
// email and key, explicit file, ./service_account.json, ~/.gis/service_account.json.
type Options struct {
	ClientEmail     string
	PrivateKey      string
	CredentialsPath string
	// WorkDir and HomeDir default to the process working and home directories.
	WorkDir string
	HomeDir string
	// TokenURL overrides the OAuth token endpoint.
	TokenURL string
}

// Credentials is a resolved service account.
type Credentials struct {
	Config *jwt.Config
	// Source names where the credentials were found.
	Source string
}

// Resolve finds credentials according to opts. It returns an error wrapping
// indexer.ErrMissingCredentials when none can be found or parsed.
func Resolve(opts Options) (Credentials, error) {
	email := strings.TrimSpace(opts.ClientEmail)
	key := strings.TrimSpace(opts.PrivateKey)
	if email != "" && key != "" {
		cfg := &jwt.Config{
			Email:      email,
			PrivateKey: normalizePrivateKey(key),
			Scopes:     Scopes,
			TokenURL:   google.JWTTokenURL,
		}
		return finish(cfg, "flags", opts.TokenURL), nil
	}
	if email != "" || key != "" {
		return Credentials{}, fmt.Errorf("%w: client email and private key must be given together", indexer.ErrMissingCredentials)
	}

	if opts.CredentialsPath != "" {
		creds, err := fromFile(opts.CredentialsPath, opts.TokenURL)
		if err != nil {
			return Credentials{}, fmt.Errorf("%w: %w", indexer.ErrMissingCredentials, err)
		}
		return creds, nil
	}

	for _, path := range defaultPaths(opts) {
		creds, err := fromFile(path, opts.TokenURL)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return Credentials{}, fmt.Errorf("%w: %w", indexer.ErrMissingCredentials, err)
		}
		return creds, nil
	}
	return Credentials{}, indexer.ErrMissingCredentials
}

// HTTPClient returns a client that signs requests with a bearer token. Token
// exchanges and API calls both go through base.
func (c Credentials) HTTPClient(ctx context.Context, base http.RoundTripper) *http.Client {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, &http.Client{Transport: base})
	return c.Config.Client(ctx)
}

// TokenSource returns a refreshing token source, for callers that need the raw token.
func (c Credentials) TokenSource(ctx context.Context, base http.RoundTripper) oauth2.TokenSource {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, &http.Client{Transport: base})
	return c.Config.TokenSource(ctx)
}

func fromFile(path, tokenURL string) (Credentials, error) {
	// #nosec G304 -- the operator chooses the credentials file.
	data, err := os.ReadFile(path)
	if err != nil {
		return Credentials{}, fmt.Errorf("read %s: %w", path, err)
	}
	cfg, err := google.JWTConfigFromJSON(data, Scopes...)
	if err != nil {
		return Credentials{}, fmt.Errorf("parse %s: %w", path, err)
	}
	if cfg.Email == "" || len(cfg.PrivateKey) == 0 {
		return Credentials{}, fmt.Errorf("%s is missing client_email or private_key", path)
	}
	return finish(cfg, path, tokenURL), nil
}

func finish(cfg *jwt.Config, source, tokenURL string) Credentials {
	if tokenURL != "" {
		cfg.TokenURL = tokenURL
	}
	return Credentials{Config: cfg, Source: source}
}

func defaultPaths(opts Options) []string {
	var paths []string
	workDir := opts.WorkDir
	if workDir == "" {
		workDir, _ = os.Getwd()
	}
	if workDir != "" {
		paths = append(paths, filepath.Join(workDir, FileName))
	}
	homeDir := opts.HomeDir
	if homeDir == "" {
		homeDir, _ = os.UserHomeDir()
	}
	if homeDir != "" {
		paths = append(paths, filepath.Join(homeDir, ".gis", FileName))
	}
	return paths
}

// normalizePrivateKey turns escaped newlines from env vars and flags into real ones.
func normalizePrivateKey(key string) []byte {
	key = strings.ReplaceAll(key, "\\n", "\n")
	return []byte(key)
}
