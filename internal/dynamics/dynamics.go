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

package dynamics

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/canopyfield/canopy/config"
	"github.com/canopyfield/canopy/internal/apierror"
	"github.com/canopyfield/canopy/model"
	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2/clientcredentials"
)

var statusCodes = map[model.InspectionStatus]int{
	model.StatusPending:    1,
	model.StatusInProgress: 2,
	model.StatusCompleted:  3,
}

var entityIDPattern = regexp.MustCompile(`\(([^)]+)\)\s*$`)

// entity is the field set of a tree inspection row in Dataverse.
type entity struct {
	Name             string  `json:"new_name"`
	OfflineID        string  `json:"new_offlineid"`
	Latitude         float64 `json:"new_latitude"`
	Longitude        float64 `json:"new_longitude"`
	Address          string  `json:"new_address"`
	Status           int     `json:"new_status"`
	InspectorID      string  `json:"new_inspectorid"`
	InspectorName    string  `json:"new_inspectorname"`
	Description      string  `json:"new_description"`
	CommunityBoard   string  `json:"new_communityboard"`
	PrimaryImageURL  string  `json:"new_primaryimageurl"`
	AdditionalImages string  `json:"new_additionalimages"`
	SyncStatus       string  `json:"new_syncstatus"`
	LastSyncedOn     string  `json:"new_lastsyncedon"`
	ScheduledDate    string  `json:"new_scheduleddate,omitempty"`
	ModifiedOn       string  `json:"modifiedon,omitempty"`
	CreatedOn        string  `json:"createdon,omitempty"`
}

type collection struct {
	Value    []json.RawMessage `json:"value"`
	NextLink string            `json:"@odata.nextLink"`
}

// Client talks to the Dynamics 365 Web API.
type Client struct {
	http       *resty.Client
	entitySet  string
	primaryKey string
	now        func() time.Time
}

// NewClient builds a client for the configured environment. With client
// credentials set, requests carry a token from the configured token URL.
func NewClient(ctx context.Context, cnf config.DynamicsConfig) *Client {
	httpClient := &http.Client{}
	if cnf.ClientID != "" && cnf.TokenURL != "" {
		creds := clientcredentials.Config{
			ClientID:     cnf.ClientID,
			ClientSecret: cnf.ClientSecret,
			TokenURL:     cnf.TokenURL,
			Scopes:       []string{cnf.Url + "/.default"},
		}
		httpClient = creds.Client(ctx)
	}

	timeout := time.Duration(cnf.TimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	apiVersion := cnf.ApiVersion
	if apiVersion == "" {
		apiVersion = config.DEFAULT_DYNAMICS_API
	}
	entitySet := cnf.EntityName
	if entitySet == "" {
		entitySet = config.DEFAULT_DYNAMICS_ENTITY
	}

	client := resty.NewWithClient(httpClient).
		SetBaseURL(fmt.Sprintf("%s/api/data/v%s", strings.TrimRight(cnf.Url, "/"), apiVersion)).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json").
		SetHeader("Content-Type", "application/json; charset=utf-8").
		SetHeader("OData-MaxVersion", "4.0").
		SetHeader("OData-Version", "4.0")

	return &Client{
		http:       client,
		entitySet:  entitySet,
		primaryKey: strings.TrimSuffix(entitySet, "s") + "id",
		now:        time.Now,
	}
}

// Create stores rec remotely and returns its remote id. A row already
// carrying rec's offline id is returned instead of creating a duplicate.
func (c *Client) Create(ctx context.Context, rec model.Inspection) (string, error) {
	existing, err := c.findByOfflineID(ctx, rec.InspectionID)
	if err != nil {
		return "", err
	}
	if existing != "" {
		logrus.WithFields(logrus.Fields{"record_id": rec.InspectionID, "remote_id": existing}).Info("inspection already exists remotely")
		return existing, nil
	}

	var created map[string]interface{}
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Prefer", "return=representation").
		SetBody(c.toEntity(rec)).
		SetResult(&created).
		Post("/" + c.entitySet)
	if err := classify(resp, err, "create inspection"); err != nil {
		return "", err
	}

	if id, ok := created[c.primaryKey].(string); ok && id != "" {
		return id, nil
	}
	if m := entityIDPattern.FindStringSubmatch(resp.Header().Get("OData-EntityId")); m != nil {
		return m[1], nil
	}
	return "", apierror.NewAPIError(apierror.ErrRemoteUnavailable, "Remote create returned no id", nil)
}

// Update overwrites the remote row. It never creates one.
func (c *Client) Update(ctx context.Context, remoteID string, rec model.Inspection) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("If-Match", "*").
		SetBody(c.toEntity(rec)).
		Patch(fmt.Sprintf("/%s(%s)", c.entitySet, remoteID))
	return classify(resp, err, "update inspection")
}

// List returns every remote inspection, following server paging.
func (c *Client) List(ctx context.Context) ([]model.Inspection, error) {
	var records []model.Inspection
	next := "/" + c.entitySet
	for next != "" {
		var page collection
		resp, err := c.http.R().SetContext(ctx).SetResult(&page).Get(next)
		if err := classify(resp, err, "list inspections"); err != nil {
			return nil, err
		}
		for _, raw := range page.Value {
			rec, err := c.fromEntity(raw)
			if err != nil {
				return nil, apierror.NewAPIError(apierror.ErrRemoteUnavailable, "Failed to decode remote inspection", err)
			}
			records = append(records, rec)
		}
		next = page.NextLink
	}
	return records, nil
}

func (c *Client) findByOfflineID(ctx context.Context, offlineID string) (string, error) {
	var page collection
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("$filter", fmt.Sprintf("new_offlineid eq '%s'", strings.ReplaceAll(offlineID, "'", "''"))).
		SetQueryParam("$select", c.primaryKey).
		SetResult(&page).
		Get("/" + c.entitySet)
	if err := classify(resp, err, "look up inspection"); err != nil {
		return "", err
	}
	for _, raw := range page.Value {
		var row map[string]interface{}
		if err := json.Unmarshal(raw, &row); err != nil {
			continue
		}
		if id, ok := row[c.primaryKey].(string); ok && id != "" {
			return id, nil
		}
	}
	return "", nil
}

func (c *Client) toEntity(rec model.Inspection) entity {
	e := entity{
		Name:           rec.Title,
		OfflineID:      rec.InspectionID,
		Latitude:       rec.Location.Latitude,
		Longitude:      rec.Location.Longitude,
		Address:        rec.Location.Address,
		Status:         statusCodes[rec.Status],
		InspectorID:    rec.Inspector.ID,
		InspectorName:  rec.Inspector.Name,
		Description:    rec.Details,
		CommunityBoard: rec.CommunityBoard,
		SyncStatus:     "Synced",
		LastSyncedOn:   c.now().UTC().Format(time.RFC3339),
	}
	if e.Status == 0 {
		e.Status = statusCodes[model.StatusPending]
	}
	if len(rec.Images) > 0 {
		e.PrimaryImageURL = rec.Images[0]
		e.AdditionalImages = strings.Join(rec.Images[1:], ",")
	}
	if !rec.ScheduledDate.IsZero() {
		e.ScheduledDate = rec.ScheduledDate.UTC().Format(time.RFC3339)
	}
	return e
}

func (c *Client) fromEntity(raw json.RawMessage) (model.Inspection, error) {
	var e entity
	if err := json.Unmarshal(raw, &e); err != nil {
		return model.Inspection{}, err
	}
	var row map[string]interface{}
	if err := json.Unmarshal(raw, &row); err != nil {
		return model.Inspection{}, err
	}
	remoteID, _ := row[c.primaryKey].(string)

	rec := model.Inspection{
		InspectionID:   e.OfflineID,
		Title:          e.Name,
		Details:        e.Description,
		Status:         model.StatusPending,
		Location:       model.Location{Address: e.Address, Latitude: e.Latitude, Longitude: e.Longitude},
		Images:         []string{},
		Inspector:      model.Inspector{ID: e.InspectorID, Name: e.InspectorName},
		CommunityBoard: e.CommunityBoard,
		RemoteID:       remoteID,
		ScheduledDate:  parseTime(e.ScheduledDate),
		CreatedAt:      parseTime(e.CreatedOn),
		UpdatedAt:      parseTime(e.ModifiedOn),
	}
	if rec.InspectionID == "" && remoteID != "" {
		rec.InspectionID = "dyn_" + remoteID
	}
	for status, code := range statusCodes {
		if code == e.Status {
			rec.Status = status
		}
	}
	if e.PrimaryImageURL != "" {
		rec.Images = append(rec.Images, e.PrimaryImageURL)
	}
	for _, img := range strings.Split(e.AdditionalImages, ",") {
		if img = strings.TrimSpace(img); img != "" {
			rec.Images = append(rec.Images, img)
		}
	}
	return rec, nil
}

// classify turns a transport error or non-2xx answer into an APIError.
// Client errors other than timeouts and throttling are permanent.
func classify(resp *resty.Response, err error, action string) error {
	if err != nil {
		return apierror.NewAPIError(apierror.ErrRemoteUnavailable, fmt.Sprintf("Failed to %s", action), err)
	}
	if resp.IsSuccess() {
		return nil
	}

	code := resp.StatusCode()
	detail := fmt.Errorf("status %d: %s", code, strings.TrimSpace(resp.String()))
	if code >= 400 && code < 500 && code != http.StatusRequestTimeout && code != http.StatusTooManyRequests {
		return apierror.NewAPIError(apierror.ErrRemoteRejected, fmt.Sprintf("Remote system rejected %s", action), detail)
	}
	return apierror.NewAPIError(apierror.ErrRemoteUnavailable, fmt.Sprintf("Failed to %s", action), detail)
}

func parseTime(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}
