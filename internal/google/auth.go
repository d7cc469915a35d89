// Package google builds authenticated HTTP clients for the Drive and Sheets
// APIs from either a service-account key or an installed-app OAuth client.
package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	googleoauth "golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

// ErrNoToken means the OAuth client has never been authorized on this host.
var ErrNoToken = errors.New("no cached oauth token; run the auth command first")

// Scopes are the permissions needed to upload frames and add sheets.
func Scopes() []string {
	return []string{drive.DriveFileScope, sheets.SpreadsheetsScope}
}

type Config struct {
	CredentialsFile string
	TokenFile       string
	Logger          *slog.Logger
}

type credentialKind int

const (
	kindOAuthClient credentialKind = iota
	kindServiceAccount
)

func readCredentials(path string) ([]byte, credentialKind, error) {
	if path == "" {
		return nil, 0, errors.New("google credentials file is not configured")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, 0, fmt.Errorf("read google credentials: %w", err)
	}

	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, 0, fmt.Errorf("parse google credentials: %w", err)
	}
	if probe.Type == "service_account" {
		return data, kindServiceAccount, nil
	}
	return data, kindOAuthClient, nil
}

// HTTPClient returns a client without user interaction. OAuth clients need a
// token previously saved by Authorize; refreshed tokens are written back.
func HTTPClient(ctx context.Context, cfg Config) (*http.Client, error) {
	data, kind, err := readCredentials(cfg.CredentialsFile)
	if err != nil {
		return nil, err
	}

	if kind == kindServiceAccount {
		jwt, err := googleoauth.JWTConfigFromJSON(data, Scopes()...)
		if err != nil {
			return nil, fmt.Errorf("parse service account key: %w", err)
		}
		return jwt.Client(ctx), nil
	}

	oc, err := googleoauth.ConfigFromJSON(data, Scopes()...)
	if err != nil {
		return nil, fmt.Errorf("parse oauth client: %w", err)
	}
	tok, err := LoadToken(cfg.TokenFile)
	if err != nil {
		return nil, err
	}

	src := &savingTokenSource{
		base:   oc.TokenSource(ctx, tok),
		path:   cfg.TokenFile,
		last:   tok.AccessToken,
		logger: logger(cfg),
	}
	return oauth2.NewClient(ctx, oauth2.ReuseTokenSource(tok, src)), nil
}

// ClientOptions wraps HTTPClient for the google.golang.org/api constructors.
func ClientOptions(ctx context.Context, cfg Config) ([]option.ClientOption, error) {
	client, err := HTTPClient(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return []option.ClientOption{option.WithHTTPClient(client)}, nil
}

// Authorize runs the installed-app flow on a loopback redirect and caches
// the token. open is handed the consent URL; it usually prints it.
func Authorize(ctx context.Context, cfg Config, open func(authURL string) error) error {
	data, kind, err := readCredentials(cfg.CredentialsFile)
	if err != nil {
		return err
	}
	if kind == kindServiceAccount {
		logger(cfg).Info("service account credentials need no authorization")
		return nil
	}

	oc, err := googleoauth.ConfigFromJSON(data, Scopes()...)
	if err != nil {
		return fmt.Errorf("parse oauth client: %w", err)
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return fmt.Errorf("listen for oauth redirect: %w", err)
	}
	oc.RedirectURL = fmt.Sprintf("http://%s/callback", ln.Addr().String())

	state := uuid.NewString()
	codes := make(chan string, 1)
	errs := make(chan error, 1)

	mux := http.NewServeMux()
	mux.HandleFunc("/callback", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("state") != state {
			http.Error(w, "state mismatch", http.StatusBadRequest)
			sendOnce(errs, errors.New("oauth state mismatch"))
			return
		}
		if e := q.Get("error"); e != "" {
			http.Error(w, e, http.StatusBadRequest)
			sendOnce(errs, fmt.Errorf("authorization denied: %s", e))
			return
		}
		io.WriteString(w, "Authorization complete. You can close this window.\n")
		sendOnce(codes, q.Get("code"))
	})

	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go srv.Serve(ln)
	defer srv.Close()

	authURL := oc.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
	if err := open(authURL); err != nil {
		return fmt.Errorf("open consent page: %w", err)
	}

	var code string
	select {
	case code = <-codes:
	case err := <-errs:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}

	tok, err := oc.Exchange(ctx, code)
	if err != nil {
		return fmt.Errorf("exchange authorization code: %w", err)
	}
	if err := SaveToken(cfg.TokenFile, tok); err != nil {
		return err
	}
	logger(cfg).Info("oauth token saved", "path", cfg.TokenFile)
	return nil
}

func sendOnce[T any](ch chan T, v T) {
	select {
	case ch <- v:
	default:
	}
}

func LoadToken(path string) (*oauth2.Token, error) {
	if path == "" {
		return nil, ErrNoToken
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNoToken
		}
		return nil, fmt.Errorf("read oauth token: %w", err)
	}
	var tok oauth2.Token
	if err := json.Unmarshal(data, &tok); err != nil {
		return nil, fmt.Errorf("parse oauth token: %w", err)
	}
	return &tok, nil
}

// SaveToken writes the token readable by the owner only.
func SaveToken(path string, tok *oauth2.Token) error {
	if path == "" {
		return errors.New("oauth token path is not configured")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create token dir: %w", err)
	}
	data, err := json.Marshal(tok)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write oauth token: %w", err)
	}
	return nil
}

// savingTokenSource persists every refreshed token so the next process
// starts from it.
type savingTokenSource struct {
	base   oauth2.TokenSource
	path   string
	logger *slog.Logger

	mu   sync.Mutex
	last string
}

func (s *savingTokenSource) Token() (*oauth2.Token, error) {
	tok, err := s.base.Token()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if tok.AccessToken != s.last {
		if err := SaveToken(s.path, tok); err != nil {
			s.logger.Warn("failed to persist refreshed token", "error", err)
		} else {
			s.last = tok.AccessToken
		}
	}
	return tok, nil
}

func logger(cfg Config) *slog.Logger {
	if cfg.Logger != nil {
		return cfg.Logger
	}
	return slog.Default()
}
