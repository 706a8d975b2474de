// Package verify authenticates requests sent to the skill endpoint.
//
// The voice platform signs every request body with a certificate published
// under s3.amazonaws.com/echo.api/. A request is accepted only if the chain
// URL is well formed, the chain validates, the leaf is issued for
// echo-api.amazon.com, the RSA SHA-256 signature matches the raw body, and the
// request timestamp is recent.
package verify

import (
	"context"
	"crypto"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"
)

// Header names set by the platform
const (
	HeaderCertChainURL = "SignatureCertChainUrl"
	HeaderSignature256 = "Signature-256"
)

const (
	certHost    = "s3.amazonaws.com"
	certPrefix  = "/echo.api/"
	signingName = "echo-api.amazon.com"
)

var (
	ErrMissingHeader  = errors.New("missing signature header")
	ErrInvalidCertURL = errors.New("invalid certificate chain url")
	ErrInvalidCert    = errors.New("invalid signing certificate")
	ErrBadSignature   = errors.New("signature mismatch")
	ErrStaleRequest   = errors.New("request timestamp outside tolerance")
)

// CertFetcher returns the parsed certificate chain published at a URL, leaf first
type CertFetcher interface {
	Fetch(ctx context.Context, chainURL string) ([]*x509.Certificate, error)
}

// ValidateCertURL checks the chain URL against the platform's publishing rules
func ValidateCertURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidCertURL, err)
	}
	if !strings.EqualFold(u.Scheme, "https") {
		return fmt.Errorf("%w: scheme %q", ErrInvalidCertURL, u.Scheme)
	}
	if !strings.EqualFold(u.Hostname(), certHost) {
		return fmt.Errorf("%w: host %q", ErrInvalidCertURL, u.Hostname())
	}
	if port := u.Port(); port != "" && port != "443" {
		return fmt.Errorf("%w: port %q", ErrInvalidCertURL, port)
	}
	if u.User != nil {
		return fmt.Errorf("%w: user info not allowed", ErrInvalidCertURL)
	}
	if u.RawQuery != "" || u.ForceQuery || u.Fragment != "" {
		return fmt.Errorf("%w: query or fragment not allowed", ErrInvalidCertURL)
	}
	if !strings.HasPrefix(path.Clean(u.Path), certPrefix) {
		return fmt.Errorf("%w: path %q", ErrInvalidCertURL, u.Path)
	}
	return nil
}

// CheckTimestamp rejects requests whose timestamp is further than tolerance from now
func CheckTimestamp(ts, now time.Time, tolerance time.Duration) error {
	diff := now.Sub(ts)
	if diff < 0 {
		diff = -diff
	}
	if diff > tolerance {
		return fmt.Errorf("%w: %s old", ErrStaleRequest, now.Sub(ts).Round(time.Second))
	}
	return nil
}

// Verifier checks request signatures
type Verifier struct {
	fetcher CertFetcher
	roots   *x509.CertPool
	now     func() time.Time
}

// Option configures a Verifier
type Option func(*Verifier)

// WithRoots replaces the system root pool
func WithRoots(roots *x509.CertPool) Option {
	return func(v *Verifier) { v.roots = roots }
}

// WithClock overrides the time source used for certificate validity
func WithClock(now func() time.Time) Option {
	return func(v *Verifier) { v.now = now }
}

// NewVerifier creates a verifier backed by fetcher
func NewVerifier(fetcher CertFetcher, opts ...Option) *Verifier {
	v := &Verifier{
		fetcher: fetcher,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Verify authenticates body using the signature headers in header
func (v *Verifier) Verify(ctx context.Context, header http.Header, body []byte) error {
	chainURL := header.Get(HeaderCertChainURL)
	if chainURL == "" {
		return fmt.Errorf("%w: %s", ErrMissingHeader, HeaderCertChainURL)
	}
	encoded := header.Get(HeaderSignature256)
	if encoded == "" {
		return fmt.Errorf("%w: %s", ErrMissingHeader, HeaderSignature256)
	}

	if err := ValidateCertURL(chainURL); err != nil {
		return err
	}

	signature, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return fmt.Errorf("%w: signature is not base64: %v", ErrBadSignature, err)
	}

	chain, err := v.fetcher.Fetch(ctx, chainURL)
	if err != nil {
		return fmt.Errorf("fetch certificate chain: %w", err)
	}

	leaf, err := v.verifyChain(chain)
	if err != nil {
		return err
	}

	pub, ok := leaf.PublicKey.(*rsa.PublicKey)
	if !ok {
		return fmt.Errorf("%w: leaf key is %T, want RSA", ErrInvalidCert, leaf.PublicKey)
	}

	digest := sha256.Sum256(body)
	if err := rsa.VerifyPKCS1v15(pub, crypto.SHA256, digest[:], signature); err != nil {
		return fmt.Errorf("%w: %v", ErrBadSignature, err)
	}
	return nil
}

func (v *Verifier) verifyChain(chain []*x509.Certificate) (*x509.Certificate, error) {
	if len(chain) == 0 {
		return nil, fmt.Errorf("%w: empty chain", ErrInvalidCert)
	}
	leaf := chain[0]

	now := v.now()
	if now.Before(leaf.NotBefore) || now.After(leaf.NotAfter) {
		return nil, fmt.Errorf("%w: leaf not valid at %s", ErrInvalidCert, now.UTC().Format(time.RFC3339))
	}

	intermediates := x509.NewCertPool()
	for _, cert := range chain[1:] {
		intermediates.AddCert(cert)
	}

	_, err := leaf.Verify(x509.VerifyOptions{
		DNSName:       signingName,
		Roots:         v.roots,
		Intermediates: intermediates,
		CurrentTime:   now,
		KeyUsages:     []x509.ExtKeyUsage{x509.ExtKeyUsageAny},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCert, err)
	}
	return leaf, nil
}

// Reason maps a verification error to a short metric label
func Reason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrMissingHeader):
		return "missing_header"
	case errors.Is(err, ErrInvalidCertURL):
		return "invalid_cert_url"
	case errors.Is(err, ErrInvalidCert):
		return "invalid_cert"
	case errors.Is(err, ErrBadSignature):
		return "bad_signature"
	case errors.Is(err, ErrStaleRequest):
		return "stale_request"
	default:
		return "cert_unavailable"
	}
}
