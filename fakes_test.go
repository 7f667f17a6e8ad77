package canopy

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/canopyfield/canopy/config"
	"github.com/canopyfield/canopy/database"
	"github.com/canopyfield/canopy/internal/apierror"
	"github.com/canopyfield/canopy/model"
	"github.com/stretchr/testify/require"
)

type fakeRemote struct {
	mu      sync.Mutex
	nextID  int
	created []model.Inspection
	updated map[string][]model.Inspection
	records []model.Inspection
	failFor map[string]error
	failAll error

	// byOfflineID dedupes creates the way the Dynamics adapter does.
	byOfflineID map[string]string
	deduped     int

	// entered receives once per call and block, when set, holds the call
	// until it is closed.
	entered chan string
	block   chan struct{}
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		updated:     make(map[string][]model.Inspection),
		failFor:     make(map[string]error),
		byOfflineID: make(map[string]string),
	}
}

func (f *fakeRemote) wait(id string) {
	if f.entered != nil {
		f.entered <- id
	}
	if f.block != nil {
		<-f.block
	}
}

func (f *fakeRemote) Create(_ context.Context, rec model.Inspection) (string, error) {
	f.wait(rec.InspectionID)
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failure(rec.InspectionID); err != nil {
		return "", err
	}
	if id, ok := f.byOfflineID[rec.InspectionID]; ok {
		f.deduped++
		return id, nil
	}
	f.nextID++
	f.created = append(f.created, rec)
	id := fmt.Sprintf("R%d", f.nextID)
	f.byOfflineID[rec.InspectionID] = id
	return id, nil
}

func (f *fakeRemote) Update(_ context.Context, remoteID string, rec model.Inspection) error {
	f.wait(rec.InspectionID)
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failure(rec.InspectionID); err != nil {
		return err
	}
	f.updated[remoteID] = append(f.updated[remoteID], rec)
	return nil
}

func (f *fakeRemote) List(_ context.Context) ([]model.Inspection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll != nil {
		return nil, f.failAll
	}
	return append([]model.Inspection(nil), f.records...), nil
}

func (f *fakeRemote) failure(id string) error {
	if f.failAll != nil {
		return f.failAll
	}
	return f.failFor[id]
}

func (f *fakeRemote) setFailure(id string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.failFor, id)
		return
	}
	f.failFor[id] = err
}

func (f *fakeRemote) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := len(f.created) + f.deduped
	for _, u := range f.updated {
		n += len(u)
	}
	return n
}

// flakyDatasource fails MarkSynced a set number of times.
type flakyDatasource struct {
	*database.Datasource
	mu                 sync.Mutex
	markSyncedFailures int
}

func (d *flakyDatasource) MarkSynced(ctx context.Context, id, remoteID string, version time.Time) (bool, error) {
	d.mu.Lock()
	if d.markSyncedFailures > 0 {
		d.markSyncedFailures--
		d.mu.Unlock()
		return false, apierror.NewAPIError(apierror.ErrStorageUnavailable, "Failed to mark inspection synced", errors.New("database is locked"))
	}
	d.mu.Unlock()
	return d.Datasource.MarkSynced(ctx, id, remoteID, version)
}

type fakeGeocoder struct {
	mu      sync.Mutex
	calls   int
	address string
	err     error
}

func (g *fakeGeocoder) ReverseGeocode(_ context.Context, lat, lon float64) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	if g.err != nil {
		return "", g.err
	}
	return g.address, nil
}

func (g *fakeGeocoder) set(address string, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.address = address
	g.err = err
}

func (g *fakeGeocoder) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

type fakeUploader struct {
	mu       sync.Mutex
	uploaded []string
}

func (u *fakeUploader) UploadImage(_ context.Context, data []byte, fileName string) (string, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if len(data) == 0 {
		return "", errors.New("empty image")
	}
	u.uploaded = append(u.uploaded, fileName)
	return "https://cdn.example.com/" + fileName, nil
}

type fakeEvents struct {
	mu     sync.Mutex
	events []string
}

func (e *fakeEvents) Publish(event string, _ interface{}) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, event)
	return nil
}

func (e *fakeEvents) count(event string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, got := range e.events {
		if got == event {
			n++
		}
	}
	return n
}

type testEnv struct {
	canopy   *Canopy
	ds       *database.Datasource
	remote   *fakeRemote
	geocoder *fakeGeocoder
	uploader *fakeUploader
	events   *fakeEvents
	monitor  *Monitor
}

func newTestDatasource(t *testing.T) *database.Datasource {
	t.Helper()
	ds, err := database.NewDataSource(&config.Configuration{DataSource: config.DataSourceConfig{Dns: ":memory:"}})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = ds.Close()
	})
	return ds
}

func mockConfig(threshold int) {
	config.MockConfig(&config.Configuration{
		Sync:    config.SyncConfig{AttentionThreshold: threshold},
		Address: config.AddressConfig{TTLHours: 24, Precision: 4, MemoSize: 100},
	})
}

func newTestEnv(t *testing.T, online bool) *testEnv {
	t.Helper()
	mockConfig(3)

	env := &testEnv{
		ds:       newTestDatasource(t),
		remote:   newFakeRemote(),
		geocoder: &fakeGeocoder{address: "Manhattan, New York"},
		uploader: &fakeUploader{},
		events:   &fakeEvents{},
		monitor:  NewMonitor(online),
	}
	c, err := NewCanopy(env.ds, Options{
		Remote:       env.remote,
		Geocoder:     env.geocoder,
		Uploader:     env.uploader,
		Events:       env.events,
		Connectivity: env.monitor,
	})
	require.NoError(t, err)
	env.canopy = c
	return env
}

func newRecord(id string) *model.Inspection {
	return &model.Inspection{
		InspectionID:   id,
		Title:          "Leaning oak " + id,
		Details:        "Split at main union",
		Location:       model.Location{Address: "Broadway", Latitude: 40.7128, Longitude: -74.006},
		Images:         []string{},
		Inspector:      model.Inspector{ID: "u1", Name: "Ada"},
		CommunityBoard: "CB 1",
	}
}

func (env *testEnv) create(t *testing.T, id string) *model.Inspection {
	t.Helper()
	rec, err := env.canopy.CreateInspection(context.Background(), newRecord(id))
	require.NoError(t, err)
	return rec
}
