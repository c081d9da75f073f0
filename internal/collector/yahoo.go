package collector

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"ExtremaSentinel/internal/logger"
	"ExtremaSentinel/internal/model"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const yahooBaseURL = "https://query1.finance.yahoo.com"

// YahooFetcher implements Fetcher using the Yahoo Finance chart API.
type YahooFetcher struct {
	BaseURL        string
	Client         *http.Client
	SymbolMap      map[string]string // maps internal symbol to Yahoo ticker
	PricePrecision int32
	limiter        *rate.Limiter
}

// NewYahooFetcher creates a new Yahoo Finance fetcher. requestsPerMinute <= 0
// disables client-side throttling.
func NewYahooFetcher(proxyURL string, requestsPerMinute int) *YahooFetcher {
	transport := &http.Transport{}
	if proxyURL != "" {
		if u, err := url.Parse(proxyURL); err == nil {
			transport.Proxy = http.ProxyURL(u)
		}
	}
	f := &YahooFetcher{
		BaseURL: yahooBaseURL,
		Client: &http.Client{
			Timeout:   30 * time.Second,
			Transport: transport,
		},
		SymbolMap: map[string]string{
			"NIFTY":  "^NSEI",
			"SENSEX": "^BSESN",
			"SPX500": "^GSPC",
		},
		PricePrecision: 4,
	}
	if requestsPerMinute > 0 {
		f.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(requestsPerMinute)), 1)
	}
	return f
}

func (f *YahooFetcher) Name() string { return "yahoo" }

func (f *YahooFetcher) yahooSymbol(symbol string) string {
	if mapped, ok := f.SymbolMap[symbol]; ok {
		return mapped
	}
	return symbol
}

// yahooChart is the response structure from the Yahoo Finance chart API.
type yahooChart struct {
	Chart struct {
		Result []struct {
			Meta struct {
				ExchangeTimezoneName string `json:"exchangeTimezoneName"`
			} `json:"meta"`
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Open   []*float64 `json:"open"`
					High   []*float64 `json:"high"`
					Low    []*float64 `json:"low"`
					Close  []*float64 `json:"close"`
					Volume []*float64 `json:"volume"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// YahooInterval maps a bar duration to the chart API interval parameter.
func YahooInterval(d time.Duration) (string, error) {
	switch d {
	case time.Minute:
		return "1m", nil
	case 2 * time.Minute:
		return "2m", nil
	case 5 * time.Minute:
		return "5m", nil
	case 15 * time.Minute:
		return "15m", nil
	case 30 * time.Minute:
		return "30m", nil
	case time.Hour:
		return "60m", nil
	case 90 * time.Minute:
		return "90m", nil
	case 24 * time.Hour:
		return "1d", nil
	}
	return "", fmt.Errorf("yahoo: unsupported interval %s", d)
}

// yahooRange picks the smallest chart range covering lookback.
func yahooRange(lookback time.Duration) string {
	day := 24 * time.Hour
	switch {
	case lookback <= day:
		return "1d"
	case lookback <= 5*day:
		return "5d"
	case lookback <= 31*day:
		return "1mo"
	case lookback <= 92*day:
		return "3mo"
	case lookback <= 183*day:
		return "6mo"
	case lookback <= 366*day:
		return "1y"
	}
	return "2y"
}

// FetchBars returns bars in UTC, oldest first. Null rows are skipped.
func (f *YahooFetcher) FetchBars(ctx context.Context, symbol string, interval, lookback time.Duration) ([]model.Bar, error) {
	iv, err := YahooInterval(interval)
	if err != nil {
		return nil, err
	}
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%w: yahoo rate limit wait: %v", ErrSourceUnavailable, err)
		}
	}

	u := fmt.Sprintf("%s/v8/finance/chart/%s?interval=%s&range=%s",
		f.BaseURL, url.PathEscape(f.yahooSymbol(symbol)), iv, yahooRange(lookback))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0")

	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: yahoo fetch: %v", ErrSourceUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: yahoo read body: %v", ErrSourceUnavailable, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: yahoo: status %d, body: %s", ErrSourceUnavailable, resp.StatusCode, string(body))
	}

	var chart yahooChart
	if err := json.Unmarshal(body, &chart); err != nil {
		return nil, fmt.Errorf("%w: yahoo decode: %v", ErrSourceUnavailable, err)
	}
	if chart.Chart.Error != nil {
		return nil, fmt.Errorf("%w: yahoo api error: %s", ErrSourceUnavailable, chart.Chart.Error.Description)
	}
	if len(chart.Chart.Result) == 0 || len(chart.Chart.Result[0].Indicators.Quote) == 0 {
		return nil, nil
	}

	result := chart.Chart.Result[0]
	quote := result.Indicators.Quote[0]
	bars := make([]model.Bar, 0, len(result.Timestamp))
	skipped := 0

	for i, ts := range result.Timestamp {
		o, h, l, c := at(quote.Open, i), at(quote.High, i), at(quote.Low, i), at(quote.Close, i)
		if o == nil || h == nil || l == nil || c == nil {
			skipped++
			continue
		}
		var vol int64
		if v := at(quote.Volume, i); v != nil {
			vol = int64(*v)
		}
		bars = append(bars, model.Bar{
			Time:   time.Unix(ts, 0).UTC(),
			Open:   f.price(*o),
			High:   f.price(*h),
			Low:    f.price(*l),
			Close:  f.price(*c),
			Volume: vol,
		})
	}
	if skipped > 0 {
		logger.GetLogger().WithComponent("collector").WithFields(logger.Fields{
			"symbol":  symbol,
			"skipped": skipped,
		}).Debug("yahoo returned null bars")
	}
	return bars, nil
}

func (f *YahooFetcher) price(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v).Round(f.PricePrecision)
}

func at(vals []*float64, i int) *float64 {
	if i >= len(vals) {
		return nil
	}
	return vals[i]
}
