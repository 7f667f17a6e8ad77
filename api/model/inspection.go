package model

import "time"

type Location struct {
	Address   string  `json:"address"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type Inspector struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type CreateInspection struct {
	InspectionID   string                 `json:"inspection_id"`
	Title          string                 `json:"title"`
	Details        string                 `json:"details"`
	Status         string                 `json:"status"`
	Location       Location               `json:"location"`
	Images         []string               `json:"images"`
	ScheduledDate  time.Time              `json:"scheduled_date"`
	Inspector      Inspector              `json:"inspector"`
	CommunityBoard string                 `json:"community_board"`
	CreatedAt      time.Time              `json:"created_at"`
	MetaData       map[string]interface{} `json:"meta_data"`
}

type UpdateInspection struct {
	Title          *string                `json:"title"`
	Details        *string                `json:"details"`
	Location       *Location              `json:"location"`
	Images         []string               `json:"images"`
	ScheduledDate  *time.Time             `json:"scheduled_date"`
	CommunityBoard *string                `json:"community_board"`
	MetaData       map[string]interface{} `json:"meta_data"`
}

type UpdateStatus struct {
	Status string `json:"status"`
}

type ConnectivityReport struct {
	Online *bool `json:"online"`
}
