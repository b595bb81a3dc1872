package extender

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/certen/ksiverify/pkg/hashing"
	"github.com/certen/ksiverify/pkg/kerr"
	"github.com/certen/ksiverify/pkg/signature"
)

// HTTPExtender fetches calendar chains from an HTTP extending service,
// encoded as the standalone calendar-chain TLV shape (signature.EncodeCalendarChain).
type HTTPExtender struct {
	baseURI    string
	reg        *hashing.Registry
	httpClient *http.Client
	logger     *log.Logger
}

// Option configures an HTTPExtender.
type Option func(*HTTPExtender)

// WithLogger sets a custom logger.
func WithLogger(logger *log.Logger) Option {
	return func(e *HTTPExtender) { e.logger = logger }
}

// WithTimeout overrides the HTTP client's request timeout.
func WithTimeout(d time.Duration) Option {
	return func(e *HTTPExtender) { e.httpClient.Timeout = d }
}

// NewHTTPExtender builds an extender against baseURI (e.g. an extender
// service's "/extend" endpoint base).
func NewHTTPExtender(baseURI string, reg *hashing.Registry, opts ...Option) *HTTPExtender {
	e := &HTTPExtender{
		baseURI:    baseURI,
		reg:        reg,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     log.New(log.Writer(), "[Extender] ", log.LstdFlags),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extend implements Extender by issuing a GET request carrying the
// aggregation time and optional publication time as query parameters.
func (e *HTTPExtender) Extend(ctx context.Context, aggregationTime uint64, publicationTime *uint64) (*signature.CalendarChain, error) {
	u, err := url.Parse(e.baseURI)
	if err != nil {
		return nil, kerr.Wrap(kerr.Argument, "parsing extender base URI", err)
	}
	q := u.Query()
	q.Set("aggregation_time", strconv.FormatUint(aggregationTime, 10))
	if publicationTime != nil {
		q.Set("publication_time", strconv.FormatUint(*publicationTime, 10))
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, kerr.Wrap(kerr.Argument, "building extender request", err)
	}
	requestID := uuid.New().String()
	req.Header.Set("X-Request-Id", requestID)

	e.logger.Printf("extending request_id=%s aggregation_time=%d publication_time=%v", requestID, aggregationTime, publicationTime)
	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, kerr.Wrap(kerr.IO, fmt.Sprintf("extender request %s failed", requestID), err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, kerr.Wrap(kerr.IO, "reading extender response", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, kerr.New(kerr.IO, fmt.Sprintf("extender returned HTTP %d", resp.StatusCode))
	}

	return signature.ParseCalendarChain(e.reg, body)
}
