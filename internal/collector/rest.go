package collector

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"ExtremaSentinel/internal/model"
)

// RESTFetcher implements Fetcher against a plain JSON bars endpoint:
// GET {base}/api/v1/bars?symbol=&interval=&from=&to=
type RESTFetcher struct {
	BaseURL string
	APIKey  string
	Client  *http.Client
	Clock   func() time.Time
}

// NewRESTFetcher creates a new fetcher with optional proxy support.
func NewRESTFetcher(baseURL, apiKey, proxyURL string) *RESTFetcher {
	transport := &http.Transport{}
	if proxyURL != "" {
		if u, err := url.Parse(proxyURL); err == nil {
			transport.Proxy = http.ProxyURL(u)
		}
	}
	return &RESTFetcher{
		BaseURL: strings.TrimRight(baseURL, "/"),
		APIKey:  apiKey,
		Client: &http.Client{
			Timeout:   30 * time.Second,
			Transport: transport,
		},
		Clock: time.Now,
	}
}

func (f *RESTFetcher) Name() string { return "rest" }

// restBar is the expected JSON shape. Either Timestamp (unix seconds) or Time
// is set; a Time without a zone offset is read as UTC.
type restBar struct {
	Timestamp int64           `json:"timestamp"`
	Time      string          `json:"time"`
	Open      decimal.Decimal `json:"open"`
	High      decimal.Decimal `json:"high"`
	Low       decimal.Decimal `json:"low"`
	Close     decimal.Decimal `json:"close"`
	Volume    int64           `json:"volume"`
}

var naiveLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
}

// ParseBarTime parses a provider timestamp. Zone-less values are UTC.
func ParseBarTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	for _, layout := range naiveLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

func (f *RESTFetcher) FetchBars(ctx context.Context, symbol string, interval, lookback time.Duration) ([]model.Bar, error) {
	now := f.Clock()
	q := url.Values{}
	q.Set("symbol", symbol)
	q.Set("interval", interval.String())
	q.Set("from", now.Add(-lookback).UTC().Format(time.RFC3339))
	q.Set("to", now.UTC().Format(time.RFC3339))
	endpoint := fmt.Sprintf("%s/api/v1/bars?%s", f.BaseURL, q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	if f.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+f.APIKey)
	}
	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: fetch bars: %v", ErrSourceUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("%w: fetch bars: status %d, body: %s", ErrSourceUnavailable, resp.StatusCode, string(body))
	}

	var raw []restBar
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: decode bars: %v", ErrSourceUnavailable, err)
	}
	bars := make([]model.Bar, 0, len(raw))
	for _, rb := range raw {
		t := time.Unix(rb.Timestamp, 0).UTC()
		if rb.Time != "" {
			parsed, err := ParseBarTime(rb.Time)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
			}
			t = parsed
		}
		bars = append(bars, model.Bar{
			Time:   t,
			Open:   rb.Open,
			High:   rb.High,
			Low:    rb.Low,
			Close:  rb.Close,
			Volume: rb.Volume,
		})
	}
	return bars, nil
}
