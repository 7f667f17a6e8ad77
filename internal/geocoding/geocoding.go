/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package geocoding

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/canopyfield/canopy/config"
	"github.com/go-resty/resty/v2"
)

// ErrNoResult is returned when the geocoder knows no place at a coordinate.
var ErrNoResult = errors.New("no address found for coordinates")

type feature struct {
	Text      string `json:"text"`
	PlaceName string `json:"place_name"`
}

type featureCollection struct {
	Features []feature `json:"features"`
}

// Mapbox reverse geocodes coordinates with the Mapbox places API.
type Mapbox struct {
	http  *resty.Client
	token string
}

func NewMapbox(cnf config.GeocodingConfig) *Mapbox {
	baseURL := cnf.BaseURL
	if baseURL == "" {
		baseURL = config.DEFAULT_MAPBOX_URL
	}
	timeout := time.Duration(cnf.TimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Mapbox{
		http: resty.New().
			SetBaseURL(strings.TrimRight(baseURL, "/")).
			SetTimeout(timeout).
			SetHeader("Accept", "application/json"),
		token: cnf.MapboxToken,
	}
}

// ReverseGeocode returns the place, locality, region and country names for
// the coordinate joined by ", ".
func (m *Mapbox) ReverseGeocode(ctx context.Context, lat, lon float64) (string, error) {
	var result featureCollection
	resp, err := m.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"types":        "place,locality,region,country",
			"access_token": m.token,
		}).
		SetResult(&result).
		Get(fmt.Sprintf("/geocoding/v5/mapbox.places/%f,%f.json", lon, lat))
	if err != nil {
		return "", fmt.Errorf("reverse geocode: %w", err)
	}
	if !resp.IsSuccess() {
		return "", fmt.Errorf("reverse geocode: status %d", resp.StatusCode())
	}

	parts := make([]string, 0, len(result.Features))
	for _, f := range result.Features {
		if f.Text != "" {
			parts = append(parts, f.Text)
		}
	}
	if len(parts) == 0 {
		return "", ErrNoResult
	}
	return strings.Join(parts, ", "), nil
}
