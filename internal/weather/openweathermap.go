package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/awaistahir/heatpilot/internal/engine"
)

const openWeatherAPIBase = "https://api.openweathermap.org/data/2.5/forecast"

// Client fetches weather forecasts from OpenWeatherMap.
type Client struct {
	httpClient *http.Client
	apiKey     string
	latitude   float64
	longitude  float64
}

// NewClient creates an OpenWeatherMap client for a location.
func NewClient(apiKey string, lat, lon float64) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		apiKey:     apiKey,
		latitude:   lat,
		longitude:  lon,
	}
}

// owmForecastResponse represents the 5-day/3-hour forecast API response.
type owmForecastResponse struct {
	List []struct {
		Dt   int64 `json:"dt"`
		Main struct {
			Temp     float64 `json:"temp"`
			Humidity float64 `json:"humidity"`
		} `json:"main"`
		Wind struct {
			Speed float64 `json:"speed"`
		} `json:"wind"`
		Clouds struct {
			All float64 `json:"all"`
		} `json:"clouds"`
	} `json:"list"`
}

// Forecast fetches the forecast and expands the provider's 3-hour blocks
// into an hourly sequence covering the requested horizon, ordered by
// increasing time.
func (c *Client) Forecast(ctx context.Context, hours int) ([]engine.ForecastEntry, error) {
	params := url.Values{}
	params.Add("lat", fmt.Sprintf("%.4f", c.latitude))
	params.Add("lon", fmt.Sprintf("%.4f", c.longitude))
	params.Add("appid", c.apiKey)
	params.Add("units", "metric")

	fullURL := fmt.Sprintf("%s?%s", openWeatherAPIBase, params.Encode())

	req, err := http.NewRequestWithContext(ctx, "GET", fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching forecast: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("weather API returned status %d: %s", resp.StatusCode, string(body))
	}

	var owmResp owmForecastResponse
	if err := json.NewDecoder(resp.Body).Decode(&owmResp); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	if len(owmResp.List) == 0 {
		return nil, fmt.Errorf("weather API returned empty forecast")
	}

	blocks := make([]engine.ForecastEntry, 0, len(owmResp.List))
	for _, item := range owmResp.List {
		blocks = append(blocks, engine.ForecastEntry{
			Timestamp:   time.Unix(item.Dt, 0),
			Temperature: item.Main.Temp,
			Humidity:    item.Main.Humidity,
			WindSpeed:   item.Wind.Speed,
			Clouds:      item.Clouds.All,
		})
	}

	return Hourly(blocks, time.Now(), hours), nil
}

// Hourly expands coarse forecast blocks into one entry per hour starting at
// from, each hour taking the values of the closest block.
func Hourly(blocks []engine.ForecastEntry, from time.Time, hours int) []engine.ForecastEntry {
	if len(blocks) == 0 || hours <= 0 {
		return nil
	}

	entries := make([]engine.ForecastEntry, 0, hours)
	for h := 0; h < hours; h++ {
		at := from.Add(time.Duration(h) * time.Hour)
		closest := blocks[0]
		minDiff := absDuration(blocks[0].Timestamp.Sub(at))
		for _, b := range blocks[1:] {
			if diff := absDuration(b.Timestamp.Sub(at)); diff < minDiff {
				minDiff = diff
				closest = b
			}
		}
		entry := closest
		entry.Timestamp = at
		entries = append(entries, entry)
	}

	return entries
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
