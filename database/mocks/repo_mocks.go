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
package mocks

import (
	"context"
	"time"

	"github.com/canopyfield/canopy/model"
	"github.com/stretchr/testify/mock"
)

// MockDataSource is a mock implementation of the IDataSource interface
type MockDataSource struct {
	mock.Mock
}

// Inspection methods

func (m *MockDataSource) PutInspection(ctx context.Context, rec *model.Inspection) (bool, error) {
	args := m.Called(ctx, rec)
	return args.Bool(0), args.Error(1)
}

func (m *MockDataSource) PutInspectionAndEnqueue(ctx context.Context, rec *model.Inspection, op model.WriteOperation, at time.Time) (bool, model.PendingWrite, error) {
	args := m.Called(ctx, rec, op, at)
	return args.Bool(0), args.Get(1).(model.PendingWrite), args.Error(2)
}

func (m *MockDataSource) GetInspection(ctx context.Context, id string) (model.Inspection, bool, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(model.Inspection), args.Bool(1), args.Error(2)
}

func (m *MockDataSource) ListInspections(ctx context.Context) ([]model.Inspection, error) {
	args := m.Called(ctx)
	return args.Get(0).([]model.Inspection), args.Error(1)
}

func (m *MockDataSource) ListInspectionsByStatus(ctx context.Context, status model.InspectionStatus) ([]model.Inspection, error) {
	args := m.Called(ctx, status)
	return args.Get(0).([]model.Inspection), args.Error(1)
}

func (m *MockDataSource) DeleteInspection(ctx context.Context, id string) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func (m *MockDataSource) SetSyncState(ctx context.Context, id string, state model.SyncState) error {
	args := m.Called(ctx, id, state)
	return args.Error(0)
}

func (m *MockDataSource) MarkSynced(ctx context.Context, id, remoteID string, version time.Time) (bool, error) {
	args := m.Called(ctx, id, remoteID, version)
	return args.Bool(0), args.Error(1)
}

func (m *MockDataSource) ReplaceImages(ctx context.Context, id string, images []string, version time.Time) (bool, error) {
	args := m.Called(ctx, id, images, version)
	return args.Bool(0), args.Error(1)
}

func (m *MockDataSource) ResetSyncing(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

// Pending write methods

func (m *MockDataSource) UpsertPendingWrite(ctx context.Context, recordID string, op model.WriteOperation, at time.Time) (model.PendingWrite, error) {
	args := m.Called(ctx, recordID, op, at)
	return args.Get(0).(model.PendingWrite), args.Error(1)
}

func (m *MockDataSource) GetPendingWrite(ctx context.Context, recordID string) (model.PendingWrite, bool, error) {
	args := m.Called(ctx, recordID)
	return args.Get(0).(model.PendingWrite), args.Bool(1), args.Error(2)
}

func (m *MockDataSource) ListPendingWrites(ctx context.Context) ([]model.PendingWrite, error) {
	args := m.Called(ctx)
	return args.Get(0).([]model.PendingWrite), args.Error(1)
}

func (m *MockDataSource) DeletePendingWrite(ctx context.Context, recordID string) error {
	args := m.Called(ctx, recordID)
	return args.Error(0)
}

func (m *MockDataSource) CompletePendingWrite(ctx context.Context, recordID string, revision int64) (bool, error) {
	args := m.Called(ctx, recordID, revision)
	return args.Bool(0), args.Error(1)
}

func (m *MockDataSource) RecordPendingWriteFailure(ctx context.Context, recordID, lastError string, permanent bool, at time.Time) error {
	args := m.Called(ctx, recordID, lastError, permanent, at)
	return args.Error(0)
}

func (m *MockDataSource) ResetPendingWrite(ctx context.Context, recordID string) error {
	args := m.Called(ctx, recordID)
	return args.Error(0)
}

// Address cache methods

func (m *MockDataSource) GetAddress(ctx context.Context, key string) (model.AddressEntry, bool, error) {
	args := m.Called(ctx, key)
	return args.Get(0).(model.AddressEntry), args.Bool(1), args.Error(2)
}

func (m *MockDataSource) PutAddress(ctx context.Context, entry model.AddressEntry) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func (m *MockDataSource) EnqueueAddressLookup(ctx context.Context, lookup model.PendingAddressLookup) error {
	args := m.Called(ctx, lookup)
	return args.Error(0)
}

func (m *MockDataSource) ListAddressLookups(ctx context.Context) ([]model.PendingAddressLookup, error) {
	args := m.Called(ctx)
	return args.Get(0).([]model.PendingAddressLookup), args.Error(1)
}

func (m *MockDataSource) DeleteAddressLookup(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

func (m *MockDataSource) RecordAddressLookupFailure(ctx context.Context, key, lastError string) error {
	args := m.Called(ctx, key, lastError)
	return args.Error(0)
}

func (m *MockDataSource) Close() error {
	args := m.Called()
	return args.Error(0)
}
