package model

import (
	"testing"

	"github.com/canopyfield/canopy/model"
	"github.com/stretchr/testify/assert"
)

func TestValidateCreateInspection(t *testing.T) {
	valid := func() CreateInspection {
		return CreateInspection{
			Title:     "Leaning oak",
			Location:  Location{Latitude: 40.7128, Longitude: -74.006},
			Inspector: Inspector{ID: "u1", Name: "Ada"},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*CreateInspection)
		wantErr bool
	}{
		{name: "Valid", mutate: func(*CreateInspection) {}},
		{name: "Valid with status", mutate: func(i *CreateInspection) { i.Status = "In-Progress" }},
		{name: "Missing title", mutate: func(i *CreateInspection) { i.Title = "" }, wantErr: true},
		{name: "Unknown status", mutate: func(i *CreateInspection) { i.Status = "Done" }, wantErr: true},
		{name: "Latitude out of range", mutate: func(i *CreateInspection) { i.Location.Latitude = -91 }, wantErr: true},
		{name: "Longitude out of range", mutate: func(i *CreateInspection) { i.Location.Longitude = 181 }, wantErr: true},
		{name: "Missing inspector", mutate: func(i *CreateInspection) { i.Inspector = Inspector{} }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := valid()
			tt.mutate(&req)
			err := req.ValidateCreateInspection()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateUpdateInspection(t *testing.T) {
	title := "Fallen elm"
	blank := ""
	assert.NoError(t, (&UpdateInspection{}).ValidateUpdateInspection())
	assert.NoError(t, (&UpdateInspection{Title: &title}).ValidateUpdateInspection())
	assert.Error(t, (&UpdateInspection{Title: &blank}).ValidateUpdateInspection())
	assert.Error(t, (&UpdateInspection{Location: &Location{Latitude: 95}}).ValidateUpdateInspection())
}

func TestValidateUpdateStatus(t *testing.T) {
	assert.NoError(t, (&UpdateStatus{Status: "Completed"}).ValidateUpdateStatus())
	assert.Error(t, (&UpdateStatus{}).ValidateUpdateStatus())
	assert.Error(t, (&UpdateStatus{Status: "completed"}).ValidateUpdateStatus())
}

func TestValidateConnectivityReport(t *testing.T) {
	online := false
	assert.NoError(t, (&ConnectivityReport{Online: &online}).ValidateConnectivityReport())
	assert.Error(t, (&ConnectivityReport{}).ValidateConnectivityReport())
}

func TestToPatch(t *testing.T) {
	title := "Fallen elm"
	patch := (&UpdateInspection{Title: &title, Location: &Location{Address: "Broadway", Latitude: 1, Longitude: 2}}).ToPatch()
	assert.Equal(t, &title, patch.Title)
	assert.Equal(t, &model.Location{Address: "Broadway", Latitude: 1, Longitude: 2}, patch.Location)
	assert.Nil(t, patch.Details)
}

func TestToInspection(t *testing.T) {
	rec := (&CreateInspection{InspectionID: "A1", Title: "Oak", Status: "Completed", Inspector: Inspector{ID: "u1"}}).ToInspection()
	assert.Equal(t, "A1", rec.InspectionID)
	assert.Equal(t, model.StatusCompleted, rec.Status)
	assert.Equal(t, "u1", rec.Inspector.ID)
}
