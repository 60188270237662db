package google

import (
	"context"
	"crypto/tls"
	"encoding/pem"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"golang.org/x/oauth2/jwt"
)

// ErrNoCredentials is returned when neither a service account key pair nor a
// credentials file is configured.
var ErrNoCredentials = errors.New("google calendar credentials not configured: set GOOGLE_SERVICE_ACCOUNT_EMAIL and GOOGLE_PRIVATE_KEY, or GOOGLE_APPLICATION_CREDENTIALS")

// Credentials identifies the service account slotbook acts as.
//
// The inline key pair takes precedence over CredentialsFile.
type Credentials struct {
	// ServiceAccountEmail is the client_email of the service account.
	ServiceAccountEmail string

	// PrivateKey is the PEM encoded key. Literal "\n" sequences, as found in
	// single-line env values, are expanded.
	PrivateKey string

	// CredentialsFile is a path to a service account JSON key file.
	CredentialsFile string

	// Subject is the user to impersonate with domain-wide delegation.
	// Empty means the service account acts as itself.
	Subject string

	// TokenURL overrides the OAuth token endpoint.
	TokenURL string
}

// Configured reports whether any credential source is set.
func (c Credentials) Configured() bool {
	return (c.ServiceAccountEmail != "" && c.PrivateKey != "") || c.CredentialsFile != ""
}

// Validate checks that the configured credentials can be parsed.
// It does not contact Google.
func (c Credentials) Validate() error {
	_, err := c.jwtConfig(DefaultScopes...)
	return err
}

// NormalizePrivateKey turns an env-style private key into PEM text.
func NormalizePrivateKey(key string) string {
	key = strings.TrimSpace(key)
	key = strings.Trim(key, `"`)
	return strings.ReplaceAll(key, `\n`, "\n")
}

func (c Credentials) jwtConfig(scopes ...string) (*jwt.Config, error) {
	var cfg *jwt.Config

	switch {
	case c.ServiceAccountEmail != "" && c.PrivateKey != "":
		key := NormalizePrivateKey(c.PrivateKey)
		if block, _ := pem.Decode([]byte(key)); block == nil {
			return nil, errors.New("google private key is not PEM encoded")
		}
		cfg = &jwt.Config{
			Email:      c.ServiceAccountEmail,
			PrivateKey: []byte(key),
			Scopes:     scopes,
			TokenURL:   google.JWTTokenURL,
		}

	case c.CredentialsFile != "":
		data, err := os.ReadFile(c.CredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read credentials file: %w", err)
		}
		cfg, err = google.JWTConfigFromJSON(data, scopes...)
		if err != nil {
			return nil, fmt.Errorf("failed to parse credentials file: %w", err)
		}

	default:
		return nil, ErrNoCredentials
	}

	cfg.Subject = c.Subject
	if c.TokenURL != "" {
		cfg.TokenURL = c.TokenURL
	}
	return cfg, nil
}

// TokenSource returns a reusing token source for the given scopes.
// Requests to the token endpoint go through base.
func (c Credentials) TokenSource(ctx context.Context, base http.RoundTripper, scopes ...string) (oauth2.TokenSource, error) {
	if len(scopes) == 0 {
		scopes = DefaultScopes
	}
	cfg, err := c.jwtConfig(scopes...)
	if err != nil {
		return nil, err
	}
	if base != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, &http.Client{Transport: base})
	}
	return cfg.TokenSource(ctx), nil
}

// HTTPClient returns an HTTP client that authenticates as the service account.
// The client is configured to use HTTP/1.1 to avoid HTTP/2 protocol errors,
// and every request it makes is traced.
func (c Credentials) HTTPClient(ctx context.Context, scopes ...string) (*http.Client, error) {
	base := NewTransport()
	ts, err := c.TokenSource(ctx, base, scopes...)
	if err != nil {
		return nil, err
	}
	return &http.Client{
		Transport: &oauth2.Transport{Source: ts, Base: base},
	}, nil
}

// NewTransport returns a traced HTTP/1.1 transport for Google API calls.
func NewTransport() http.RoundTripper {
	t := http.DefaultTransport.(*http.Transport).Clone()
	// Force HTTP/1.1 by disabling HTTP/2
	t.ForceAttemptHTTP2 = false
	t.TLSNextProto = map[string]func(string, *tls.Conn) http.RoundTripper{}
	return otelhttp.NewTransport(t)
}
