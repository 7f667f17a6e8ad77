package model

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGenerateUUIDWithSuffix(t *testing.T) {
	id := GenerateUUIDWithSuffix("insp")
	assert.True(t, strings.HasPrefix(id, "insp_"))
	assert.Len(t, id, len("insp_")+36)
	assert.NotEqual(t, id, GenerateUUIDWithSuffix("insp"))
}

func TestQuantizeCoordinates(t *testing.T) {
	assert.Equal(t, "40.7128,-74.0060", QuantizeCoordinates(40.71281, -74.00601, 4))
	assert.Equal(t, QuantizeCoordinates(40.712801, -74.006012, 4), QuantizeCoordinates(40.712849, -74.006049, 4))
	assert.NotEqual(t, QuantizeCoordinates(40.7128, -74.0060, 4), QuantizeCoordinates(40.7130, -74.0060, 4))
	assert.Equal(t, "0.000,0.000", QuantizeCoordinates(-0.00001, 0.00001, 3))
}

func TestFallbackAddress(t *testing.T) {
	assert.Equal(t, "Area near 40.713, -74.006", FallbackAddress(40.71281, -74.00601))
}

func TestInspectionStatusValid(t *testing.T) {
	assert.True(t, StatusPending.Valid())
	assert.True(t, StatusInProgress.Valid())
	assert.True(t, StatusCompleted.Valid())
	assert.False(t, InspectionStatus("Done").Valid())
}

func TestInspectionPatchApply(t *testing.T) {
	rec := Inspection{Title: "Oak", Details: "leaning", Images: []string{"a"}}

	title := "Oak"
	assert.False(t, InspectionPatch{Title: &title}.Apply(&rec))

	details := "split trunk"
	assert.True(t, InspectionPatch{Details: &details}.Apply(&rec))
	assert.Equal(t, "split trunk", rec.Details)

	assert.True(t, InspectionPatch{Images: []string{"a", "b"}}.Apply(&rec))
	assert.Equal(t, []string{"a", "b"}, rec.Images)

	when := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	assert.True(t, InspectionPatch{ScheduledDate: &when}.Apply(&rec))
	assert.False(t, InspectionPatch{ScheduledDate: &when}.Apply(&rec))
}

func TestAddressEntryFresh(t *testing.T) {
	now := time.Now()
	entry := AddressEntry{ResolvedAt: now.Add(-23 * time.Hour)}
	assert.True(t, entry.Fresh(now, 24*time.Hour))
	entry.ResolvedAt = now.Add(-25 * time.Hour)
	assert.False(t, entry.Fresh(now, 24*time.Hour))
}

func TestIsUploadedImage(t *testing.T) {
	assert.True(t, IsUploadedImage("https://cdn.example.com/a.jpg"))
	assert.False(t, IsUploadedImage("data:image/jpeg;base64,AAAA"))
}
