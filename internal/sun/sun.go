// Package sun looks up civil twilight times from the sunrise-sunset.org API.
package sun

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/carlmjohnson/requests"
)

// DefaultURL is the public sunrise-sunset.org endpoint.
const DefaultURL = "https://api.sunrise-sunset.org/json"

// ErrLookupFailed is returned when the API answers with a non-OK status.
var ErrLookupFailed = errors.New("sun: lookup failed")

type response struct {
	Results struct {
		CivilTwilightBegin string `json:"civil_twilight_begin"`
		CivilTwilightEnd   string `json:"civil_twilight_end"`
	} `json:"results"`
	Status string `json:"status"`
}

// Client queries the API. The zero value is not usable; use New.
type Client struct {
	url string
	hc  *http.Client
}

// New creates a client for url, or DefaultURL when empty.
func New(url string, timeout time.Duration) *Client {
	if url == "" {
		url = DefaultURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{url: url, hc: &http.Client{Timeout: timeout}}
}

// Twilight returns civil twilight begin and end for date at lat/lon, in UTC.
func (c *Client) Twilight(ctx context.Context, lat, lon float64, date time.Time) (sunrise, sunset time.Time, err error) {
	var resp response
	err = requests.URL(c.url).
		Param("lat", strconv.FormatFloat(lat, 'f', 6, 64)).
		Param("lng", strconv.FormatFloat(lon, 'f', 6, 64)).
		Param("date", date.Format("2006-01-02")).
		Param("formatted", "0").
		Client(c.hc).
		ToJSON(&resp).
		Fetch(ctx)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("fetch twilight: %w", err)
	}
	if resp.Status != "OK" {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: status %q", ErrLookupFailed, resp.Status)
	}
	sunrise, err = time.Parse(time.RFC3339, resp.Results.CivilTwilightBegin)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("parse twilight begin: %w", err)
	}
	sunset, err = time.Parse(time.RFC3339, resp.Results.CivilTwilightEnd)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("parse twilight end: %w", err)
	}
	return sunrise.UTC(), sunset.UTC(), nil
}
