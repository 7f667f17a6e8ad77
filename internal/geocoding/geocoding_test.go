package geocoding

import (
	"context"
	"net/http"
	"testing"

	"github.com/canopyfield/canopy/config"
	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const placesURL = "https://api.mapbox.com/geocoding/v5/mapbox.places/-74.006000,40.712800.json"

func newTestMapbox(t *testing.T) *Mapbox {
	t.Helper()
	m := NewMapbox(config.GeocodingConfig{MapboxToken: "pk.test"})
	httpmock.ActivateNonDefault(m.http.GetClient())
	t.Cleanup(httpmock.DeactivateAndReset)
	return m
}

func TestReverseGeocode(t *testing.T) {
	m := newTestMapbox(t)

	httpmock.RegisterResponder(http.MethodGet, placesURL,
		func(req *http.Request) (*http.Response, error) {
			assert.Equal(t, "pk.test", req.URL.Query().Get("access_token"))
			assert.Equal(t, "place,locality,region,country", req.URL.Query().Get("types"))
			return httpmock.NewJsonResponse(http.StatusOK, map[string]interface{}{
				"features": []map[string]string{
					{"text": "Manhattan"},
					{"text": "New York"},
					{"text": "United States"},
				},
			})
		})

	address, err := m.ReverseGeocode(context.Background(), 40.7128, -74.006)
	require.NoError(t, err)
	assert.Equal(t, "Manhattan, New York, United States", address)
}

func TestReverseGeocode_NoFeatures(t *testing.T) {
	m := newTestMapbox(t)
	httpmock.RegisterResponder(http.MethodGet, placesURL,
		httpmock.NewJsonResponderOrPanic(http.StatusOK, map[string]interface{}{"features": []interface{}{}}))

	_, err := m.ReverseGeocode(context.Background(), 40.7128, -74.006)
	assert.ErrorIs(t, err, ErrNoResult)
}

func TestReverseGeocode_HTTPError(t *testing.T) {
	m := newTestMapbox(t)
	httpmock.RegisterResponder(http.MethodGet, placesURL, httpmock.NewStringResponder(http.StatusUnauthorized, "{}"))

	_, err := m.ReverseGeocode(context.Background(), 40.7128, -74.006)
	assert.Error(t, err)
}
