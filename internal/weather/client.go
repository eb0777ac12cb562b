package weather

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"
)

const oneCallPath = "/data/3.0/onecall"

// UpstreamError reports an unreachable weather provider or a response the
// client could not use.
type UpstreamError struct {
	Status int // HTTP status from the provider, 0 if none was received
	Err    error
}

func (e *UpstreamError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("weather provider returned %d: %v", e.Status, e.Err)
	}
	return fmt.Sprintf("weather provider: %v", e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// Report holds the current conditions the API exposes.
type Report struct {
	UVIndex     float64
	Temperature float64
	Forecast    string
}

// oneCall is the subset of the One Call 3.0 payload the client reads.
type oneCall struct {
	Current *struct {
		Temp    *float64 `json:"temp"`
		UVI     *float64 `json:"uvi"`
		Weather []struct {
			Main        string `json:"main"`
			Description string `json:"description"`
		} `json:"weather"`
	} `json:"current"`
	Daily []struct {
		UVI     *float64 `json:"uvi"`
		Summary string   `json:"summary"`
	} `json:"daily"`
}

type Client struct {
	apiKey  string
	baseURL string
	units   string
	http    *http.Client
	log     *zap.Logger
}

type ClientOptions struct {
	APIKey     string
	BaseURL    string
	Units      string
	Timeout    time.Duration
	HTTPClient *http.Client
}

func NewClient(opts ClientOptions, log *zap.Logger) *Client {
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: opts.Timeout}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		apiKey:  opts.APIKey,
		baseURL: opts.BaseURL,
		units:   opts.Units,
		http:    hc,
		log:     log.Named("weather"),
	}
}

// Lookup queries current conditions for a coordinate. Every call goes to the
// provider; nothing is cached and failures are not retried.
func (c *Client) Lookup(ctx context.Context, lat, lon float64) (*Report, error) {
	q := url.Values{}
	q.Set("lat", strconv.FormatFloat(lat, 'f', -1, 64))
	q.Set("lon", strconv.FormatFloat(lon, 'f', -1, 64))
	q.Set("appid", c.apiKey)
	q.Set("exclude", "minutely,hourly,alerts")
	if c.units != "" {
		q.Set("units", c.units)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+oneCallPath+"?"+q.Encode(), nil)
	if err != nil {
		return nil, &UpstreamError{Err: err}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		var uerr *url.Error
		if errors.As(err, &uerr) {
			// the request URL carries the API key
			err = uerr.Err
		}
		c.log.Error("weather request failed", zap.Error(err))
		return nil, &UpstreamError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, &UpstreamError{Status: resp.StatusCode, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.log.Error("weather provider error", zap.Int("status", resp.StatusCode), zap.ByteString("body", body))
		return nil, &UpstreamError{Status: resp.StatusCode, Err: errors.New(providerMessage(body, resp.Status))}
	}

	var payload oneCall
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, &UpstreamError{Status: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	report, err := payload.report()
	if err != nil {
		c.log.Error("unexpected weather response format", zap.Error(err))
		return nil, &UpstreamError{Status: resp.StatusCode, Err: err}
	}
	return report, nil
}

func (p *oneCall) report() (*Report, error) {
	if len(p.Daily) == 0 || p.Daily[0].UVI == nil {
		return nil, errors.New("unexpected response format: missing daily[0].uvi")
	}
	if p.Current == nil || p.Current.Temp == nil {
		return nil, errors.New("unexpected response format: missing current.temp")
	}

	forecast := p.Daily[0].Summary
	if forecast == "" && len(p.Current.Weather) > 0 {
		forecast = p.Current.Weather[0].Description
		if forecast == "" {
			forecast = p.Current.Weather[0].Main
		}
	}

	return &Report{
		UVIndex:     *p.Daily[0].UVI,
		Temperature: *p.Current.Temp,
		Forecast:    forecast,
	}, nil
}

// providerMessage extracts the "message" field OpenWeatherMap puts in error bodies.
func providerMessage(body []byte, fallback string) string {
	var e struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &e) == nil && e.Message != "" {
		return e.Message
	}
	return fallback
}
