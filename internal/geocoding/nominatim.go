package geocoding

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// requestTimeout bounds each upstream lookup.
const requestTimeout = 5 * time.Second

// userAgent identifies this service to Nominatim, as its usage policy
// requires.
const userAgent = "lodo-directory/1.0"

// ErrNoResult is returned when the geocoder finds no match for an address.
var ErrNoResult = fmt.Errorf("no geocoding result")

// Client resolves addresses against a Nominatim instance.
type Client struct {
	baseURL    string
	httpClient *http.Client
	cache      *Cache
	logger     zerolog.Logger
}

// NewClient creates a geocoding client. cache may be nil to disable caching.
func NewClient(baseURL string, cache *Cache, logger zerolog.Logger) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: requestTimeout},
		cache:      cache,
		logger:     logger.With().Str("component", "geocoding").Logger(),
	}
}

// Geocode resolves a city/region/country triple to coordinates.
func (c *Client) Geocode(ctx context.Context, city, region, country string) (float64, float64, error) {
	address := strings.Join([]string{city, region, country}, ", ")

	if c.cache != nil {
		lat, lng, ok, err := c.cache.Get(address)
		if err != nil {
			c.logger.Warn().Err(err).Msg("geocode cache read failed")
		} else if ok {
			return lat, lng, nil
		}
	}

	lat, lng, err := c.lookup(ctx, city, region, country)
	if err != nil {
		return 0, 0, err
	}

	if c.cache != nil {
		if err := c.cache.Put(address, lat, lng); err != nil {
			c.logger.Warn().Err(err).Msg("geocode cache write failed")
		}
	}

	c.logger.Debug().Str("address", address).Float64("lat", lat).Float64("lng", lng).Msg("address geocoded")
	return lat, lng, nil
}

func (c *Client) lookup(ctx context.Context, city, region, country string) (float64, float64, error) {
	params := url.Values{}
	params.Set("format", "jsonv2")
	params.Set("limit", "1")
	params.Set("city", city)
	params.Set("state", region)
	params.Set("country", country)

	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/search?"+params.Encode(), nil)
	if err != nil {
		return 0, 0, fmt.Errorf("build geocode request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, 0, fmt.Errorf("geocode request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, 0, fmt.Errorf("geocode request returned status %d", resp.StatusCode)
	}

	var results []struct {
		Lat string `json:"lat"`
		Lon string `json:"lon"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return 0, 0, fmt.Errorf("decode geocode response: %w", err)
	}
	if len(results) == 0 {
		return 0, 0, ErrNoResult
	}

	lat, err := strconv.ParseFloat(results[0].Lat, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("parse geocode latitude: %w", err)
	}
	lng, err := strconv.ParseFloat(results[0].Lon, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("parse geocode longitude: %w", err)
	}

	return lat, lng, nil
}
