package verify

import (
	"context"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/lexiqai/speech-practice/internal/observability"
	"github.com/lexiqai/speech-practice/internal/resilience"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
)

const (
	breakerName     = "alexa_certs"
	maxChainBytes   = 64 << 10
	maxCachedChains = 16
)

// statusError is a non-200 response from the certificate host
type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("certificate chain download: status %d", e.code)
}

// isPeerRejection reports errors where the host answered but the chain was
// unusable. They say nothing about the host's health and must not trip the breaker.
func isPeerRejection(err error) bool {
	var se *statusError
	if errors.As(err, &se) {
		return se.code >= 400 && se.code < 500 && se.code != http.StatusTooManyRequests
	}
	return errors.Is(err, ErrInvalidCert)
}

// FetcherConfig holds configuration for HTTPCertFetcher
type FetcherConfig struct {
	Timeout      time.Duration // Per-request download timeout
	MaxFailures  int           // Consecutive failures before the breaker opens
	ResetTimeout time.Duration // Time the breaker stays open
	Retry        *resilience.RetryConfig
}

type cachedChain struct {
	certs   []*x509.Certificate
	expires time.Time
}

// HTTPCertFetcher downloads and caches certificate chains
type HTTPCertFetcher struct {
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
	retry   *resilience.RetryConfig
	now     func() time.Time
	logger  zerolog.Logger

	mu    sync.RWMutex
	cache map[string]cachedChain
}

// NewHTTPCertFetcher creates a fetcher. Zero config fields fall back to defaults.
func NewHTTPCertFetcher(cfg FetcherConfig) *HTTPCertFetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 30 * time.Second
	}
	if cfg.Retry == nil {
		cfg.Retry = resilience.DefaultRetryConfig()
	}

	logger := observability.GetLogger().With().Str("component", "cert_fetcher").Logger()
	maxFailures := uint32(cfg.MaxFailures)

	f := &HTTPCertFetcher{
		client: &http.Client{Timeout: cfg.Timeout},
		retry:  cfg.Retry,
		now:    time.Now,
		logger: logger,
		cache:  make(map[string]cachedChain),
	}
	f.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: 1,
		Timeout:     cfg.ResetTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled) || isPeerRejection(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Circuit breaker state changed")
			observability.UpdateCircuitBreakerState(name, int(to))
		},
	})
	observability.UpdateCircuitBreakerState(breakerName, int(gobreaker.StateClosed))
	return f
}

// Fetch returns the chain at chainURL, serving from cache until the leaf expires
func (f *HTTPCertFetcher) Fetch(ctx context.Context, chainURL string) ([]*x509.Certificate, error) {
	key := cacheKey(chainURL)
	f.mu.RLock()
	entry, ok := f.cache[key]
	f.mu.RUnlock()
	if ok && f.now().Before(entry.expires) {
		observability.RecordCertFetch("hit")
		return entry.certs, nil
	}

	res, err := f.breaker.Execute(func() (interface{}, error) {
		var certs []*x509.Certificate
		err := resilience.Retry(ctx, func(ctx context.Context) error {
			var err error
			certs, err = f.download(ctx, chainURL)
			return err
		}, f.retry, resilience.IsRetryableNetworkError)
		return certs, err
	})
	if err != nil {
		observability.RecordCertFetch("error")
		f.logger.Error().Err(err).Str("url", chainURL).Msg("Failed to fetch certificate chain")
		return nil, err
	}

	certs := res.([]*x509.Certificate)
	f.store(key, cachedChain{certs: certs, expires: certs[0].NotAfter})

	observability.RecordCertFetch("success")
	f.logger.Debug().Str("url", chainURL).Int("certs", len(certs)).Msg("Certificate chain cached")
	return certs, nil
}

func (f *HTTPCertFetcher) download(ctx context.Context, chainURL string) ([]*x509.Certificate, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, chainURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		err := &statusError{code: resp.StatusCode}
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return nil, resilience.NewRetryableError(err)
		}
		return nil, err
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxChainBytes))
	if err != nil {
		return nil, err
	}
	return ParseChain(data)
}

// store caches a chain, evicting expired entries first and an arbitrary one
// when the cache is still full
func (f *HTTPCertFetcher) store(key string, entry cachedChain) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.cache[key]; !ok && len(f.cache) >= maxCachedChains {
		now := f.now()
		for k, e := range f.cache {
			if !now.Before(e.expires) {
				delete(f.cache, k)
			}
		}
		for k := range f.cache {
			if len(f.cache) < maxCachedChains {
				break
			}
			delete(f.cache, k)
		}
	}
	f.cache[key] = entry
}

// cacheKey folds case and dot-segment variants of the same chain URL together
func cacheKey(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	return strings.ToLower(u.Scheme) + "://" + strings.ToLower(u.Host) + path.Clean(u.Path)
}

// ParseChain decodes every CERTIFICATE block in PEM data, preserving order
func ParseChain(data []byte) ([]*x509.Certificate, error) {
	var certs []*x509.Certificate
	for {
		var block *pem.Block
		block, data = pem.Decode(data)
		if block == nil {
			break
		}
		if block.Type != "CERTIFICATE" {
			continue
		}
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidCert, err)
		}
		certs = append(certs, cert)
	}
	if len(certs) == 0 {
		return nil, fmt.Errorf("%w: no certificates in chain", ErrInvalidCert)
	}
	return certs, nil
}

// State returns the breaker state
func (f *HTTPCertFetcher) State() gobreaker.State {
	return f.breaker.State()
}

// HealthCheck reports unhealthy while the breaker is open
func (f *HTTPCertFetcher) HealthCheck(ctx context.Context) (bool, error) {
	if f.breaker.State() == gobreaker.StateOpen {
		return false, fmt.Errorf("certificate fetch circuit is open")
	}
	return true, nil
}
