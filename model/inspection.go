package model

import (
	"reflect"
	"strings"
	"time"
)

type InspectionStatus string

const (
	StatusPending    InspectionStatus = "Pending"
	StatusInProgress InspectionStatus = "In-Progress"
	StatusCompleted  InspectionStatus = "Completed"
)

// Valid reports whether s is one of the known inspection statuses.
func (s InspectionStatus) Valid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusCompleted:
		return true
	}
	return false
}

type SyncState string

const (
	SyncStateUnsynced SyncState = "unsynced"
	SyncStateSyncing  SyncState = "syncing"
	SyncStateSynced   SyncState = "synced"
)

type Location struct {
	Address   string  `json:"address"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type Inspector struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type Inspection struct {
	InspectionID   string                 `json:"inspection_id"`
	Title          string                 `json:"title"`
	Details        string                 `json:"details"`
	Status         InspectionStatus       `json:"status"`
	Location       Location               `json:"location"`
	Images         []string               `json:"images"`
	ScheduledDate  time.Time              `json:"scheduled_date"`
	CreatedAt      time.Time              `json:"created_at"`
	UpdatedAt      time.Time              `json:"updated_at"`
	Inspector      Inspector              `json:"inspector"`
	CommunityBoard string                 `json:"community_board"`
	Synced         bool                   `json:"synced"`
	RemoteID       string                 `json:"remote_id,omitempty"`
	SyncState      SyncState              `json:"sync_state"`
	MetaData       map[string]interface{} `json:"meta_data,omitempty"`
}

// InspectionPatch carries the editable details of an inspection. Nil fields
// are left untouched.
type InspectionPatch struct {
	Title          *string
	Details        *string
	Location       *Location
	Images         []string
	ScheduledDate  *time.Time
	CommunityBoard *string
	MetaData       map[string]interface{}
}

// Apply merges the patch into rec and reports whether any field changed.
func (p InspectionPatch) Apply(rec *Inspection) bool {
	changed := false
	if p.Title != nil && *p.Title != rec.Title {
		rec.Title = *p.Title
		changed = true
	}
	if p.Details != nil && *p.Details != rec.Details {
		rec.Details = *p.Details
		changed = true
	}
	if p.Location != nil && *p.Location != rec.Location {
		rec.Location = *p.Location
		changed = true
	}
	if p.Images != nil && !reflect.DeepEqual(p.Images, rec.Images) {
		rec.Images = append([]string(nil), p.Images...)
		changed = true
	}
	if p.ScheduledDate != nil && !p.ScheduledDate.Equal(rec.ScheduledDate) {
		rec.ScheduledDate = *p.ScheduledDate
		changed = true
	}
	if p.CommunityBoard != nil && *p.CommunityBoard != rec.CommunityBoard {
		rec.CommunityBoard = *p.CommunityBoard
		changed = true
	}
	if p.MetaData != nil && !reflect.DeepEqual(p.MetaData, rec.MetaData) {
		rec.MetaData = p.MetaData
		changed = true
	}
	return changed
}

// PrimaryImage returns the first image, which the remote system treats as
// the inspection's primary photo.
func (i *Inspection) PrimaryImage() string {
	if len(i.Images) == 0 {
		return ""
	}
	return i.Images[0]
}

// IsUploadedImage reports whether an image reference already points at
// object storage rather than carrying an inline payload.
func IsUploadedImage(ref string) bool {
	return strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://")
}
