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

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/canopyfield/canopy"
	"github.com/canopyfield/canopy/config"
	"github.com/canopyfield/canopy/database"
	"github.com/canopyfield/canopy/model"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

type TestRequest struct {
	Payload  io.Reader
	Router   *gin.Engine
	Response interface{}
	Method   string
	Route    string
	Header   map[string]string
}

func SetUpTestRequest(s TestRequest) (*httptest.ResponseRecorder, error) {
	req := httptest.NewRequest(s.Method, s.Route, s.Payload)
	for key, value := range s.Header {
		req.Header.Set(key, value)
	}
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	s.Router.ServeHTTP(resp, req)

	if s.Response == nil {
		return resp, nil
	}
	err := json.NewDecoder(resp.Body).Decode(s.Response)
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func toPayload(t *testing.T, v interface{}) io.Reader {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return bytes.NewReader(b)
}

type stubRemote struct {
	mu      sync.Mutex
	created int
	records []model.Inspection
}

func (s *stubRemote) Create(_ context.Context, _ model.Inspection) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.created++
	return fmt.Sprintf("R%d", s.created), nil
}

func (s *stubRemote) Update(_ context.Context, _ string, _ model.Inspection) error {
	return nil
}

func (s *stubRemote) List(_ context.Context) ([]model.Inspection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.Inspection(nil), s.records...), nil
}

type stubGeocoder struct{}

func (stubGeocoder) ReverseGeocode(_ context.Context, _, _ float64) (string, error) {
	return "Manhattan, New York", nil
}

func setupRouter(t *testing.T, conf *config.Configuration) (*gin.Engine, *canopy.Canopy, *stubRemote) {
	t.Helper()
	if conf == nil {
		conf = &config.Configuration{}
	}
	conf.DataSource.Dns = ":memory:"
	config.MockConfig(conf)

	db, err := database.NewDataSource(conf)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = db.Close()
	})

	remote := &stubRemote{}
	c, err := canopy.NewCanopy(db, canopy.Options{
		Remote:       remote,
		Geocoder:     stubGeocoder{},
		Connectivity: canopy.NewMonitor(false),
	})
	require.NoError(t, err)

	return NewAPI(c).Router(), c, remote
}
