package main

import (
	"context"
	"testing"

	"github.com/canopyfield/canopy/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildOptions_Empty(t *testing.T) {
	app := &canopyInstance{}
	opts, err := buildOptions(context.Background(), app, &config.Configuration{})
	require.NoError(t, err)
	assert.Nil(t, opts.Remote)
	assert.Nil(t, opts.Geocoder)
	assert.Nil(t, opts.Uploader)
	assert.Nil(t, opts.Redis)
}

func TestBuildOptions_ConfiguredSystems(t *testing.T) {
	app := &canopyInstance{}
	cfg := &config.Configuration{
		Dynamics:  config.DynamicsConfig{Url: "https://contoso.crm.dynamics.com", ApiVersion: "9.2", EntityName: "new_treeinspections"},
		Geocoding: config.GeocodingConfig{MapboxToken: "pk.test", BaseURL: "https://api.mapbox.com"},
		Storage:   config.StorageConfig{Bucket: "tree-inspection-images", Endpoint: "http://localhost:9000", Region: "us-east-1"},
	}
	opts, err := buildOptions(context.Background(), app, cfg)
	require.NoError(t, err)
	assert.NotNil(t, opts.Remote)
	assert.NotNil(t, opts.Geocoder)
	assert.NotNil(t, opts.Uploader)
}

func TestSetupCanopy(t *testing.T) {
	cfg := &config.Configuration{DataSource: config.DataSourceConfig{Dns: ":memory:"}}
	config.MockConfig(cfg)

	app := &canopyInstance{}
	require.NoError(t, setupCanopy(context.Background(), app, cfg))
	defer app.close()

	assert.NotNil(t, app.canopy)
	assert.False(t, app.canopy.RemoteConfigured())
}

func TestNewCLI_Commands(t *testing.T) {
	cli := NewCLI()
	names := []string{}
	for _, c := range cli.cmd.Commands() {
		names = append(names, c.Name())
	}
	assert.Subset(t, names, []string{"start", "sync", "pull", "workers", "migrate"})
}
