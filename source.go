package austrianelevation

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const httpUserAgent = "go-austrianelevation/1.0"

// A RowSource fetches row files from a remote location.
type RowSource interface {
	FetchRow(ctx context.Context, key RowKey) ([]byte, error)
}

// A RowSourceFunc is a function that implements RowSource.
type RowSourceFunc func(ctx context.Context, key RowKey) ([]byte, error)

func (f RowSourceFunc) FetchRow(ctx context.Context, key RowKey) ([]byte, error) {
	return f(ctx, key)
}

// An HTTPStatusError is returned when a row file request does not return
// http.StatusOK.
type HTTPStatusError struct {
	URL        string
	StatusCode int
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("%s: %d %s", e.URL, e.StatusCode, http.StatusText(e.StatusCode))
}

// An HTTPSource fetches row files over HTTP.
type HTTPSource struct {
	baseURL    string
	httpClient *http.Client
	userAgent  string
}

// An HTTPSourceOption sets an option on an HTTPSource.
type HTTPSourceOption func(*HTTPSource)

// NewHTTPSource returns a new HTTPSource that fetches row files below baseURL.
func NewHTTPSource(baseURL string, options ...HTTPSourceOption) *HTTPSource {
	s := &HTTPSource{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: 60 * time.Second},
		userAgent:  httpUserAgent,
	}
	for _, option := range options {
		option(s)
	}
	return s
}

func WithHTTPClient(httpClient *http.Client) HTTPSourceOption {
	return func(s *HTTPSource) {
		s.httpClient = httpClient
	}
}

func WithUserAgent(userAgent string) HTTPSourceOption {
	return func(s *HTTPSource) {
		s.userAgent = userAgent
	}
}

// URL returns the URL of the row file for key.
func (s *HTTPSource) URL(key RowKey) string {
	return fmt.Sprintf("%s/%d/master/%d.txt", s.baseURL, key.Database, key.Y)
}

// FetchRow fetches the row file for key. It does not retry.
func (s *HTTPSource) FetchRow(ctx context.Context, key RowKey) ([]byte, error) {
	url := s.URL(key)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", s.userAgent)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &HTTPStatusError{
			URL:        url,
			StatusCode: resp.StatusCode,
		}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", url, err)
	}
	return data, nil
}
