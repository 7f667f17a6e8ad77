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

package model

import (
	"errors"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/canopyfield/canopy/model"
)

var statuses = []interface{}{
	string(model.StatusPending),
	string(model.StatusInProgress),
	string(model.StatusCompleted),
}

func validateLocation(value interface{}) error {
	loc, ok := value.(Location)
	if !ok {
		if ptr, isPtr := value.(*Location); isPtr && ptr != nil {
			loc = *ptr
		} else {
			return nil
		}
	}
	return validation.ValidateStruct(&loc,
		validation.Field(&loc.Latitude, validation.Min(-90.0), validation.Max(90.0)),
		validation.Field(&loc.Longitude, validation.Min(-180.0), validation.Max(180.0)),
	)
}

func notBlank(value interface{}) error {
	s, ok := value.(*string)
	if !ok || s == nil {
		return nil
	}
	if *s == "" {
		return errors.New("cannot be blank")
	}
	return nil
}

func (i *CreateInspection) ValidateCreateInspection() error {
	return validation.ValidateStruct(i,
		validation.Field(&i.Title, validation.Required),
		validation.Field(&i.Status, validation.In(statuses...)),
		validation.Field(&i.Location, validation.By(validateLocation)),
		validation.Field(&i.Inspector, validation.By(func(value interface{}) error {
			inspector, _ := value.(Inspector)
			if inspector.ID == "" {
				return errors.New("inspector id is required")
			}
			return nil
		})),
	)
}

func (u *UpdateInspection) ValidateUpdateInspection() error {
	return validation.ValidateStruct(u,
		validation.Field(&u.Title, validation.By(notBlank)),
		validation.Field(&u.Location, validation.By(validateLocation)),
	)
}

func (s *UpdateStatus) ValidateUpdateStatus() error {
	return validation.ValidateStruct(s,
		validation.Field(&s.Status, validation.Required, validation.In(statuses...)),
	)
}

func (r *ConnectivityReport) ValidateConnectivityReport() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Online, validation.NotNil),
	)
}

func (i *CreateInspection) ToInspection() *model.Inspection {
	return &model.Inspection{
		InspectionID: i.InspectionID,
		Title:        i.Title,
		Details:      i.Details,
		Status:       model.InspectionStatus(i.Status),
		Location: model.Location{
			Address:   i.Location.Address,
			Latitude:  i.Location.Latitude,
			Longitude: i.Location.Longitude,
		},
		Images:         i.Images,
		ScheduledDate:  i.ScheduledDate,
		Inspector:      model.Inspector{ID: i.Inspector.ID, Name: i.Inspector.Name},
		CommunityBoard: i.CommunityBoard,
		CreatedAt:      i.CreatedAt,
		MetaData:       i.MetaData,
	}
}

func (u *UpdateInspection) ToPatch() model.InspectionPatch {
	patch := model.InspectionPatch{
		Title:          u.Title,
		Details:        u.Details,
		Images:         u.Images,
		ScheduledDate:  u.ScheduledDate,
		CommunityBoard: u.CommunityBoard,
		MetaData:       u.MetaData,
	}
	if u.Location != nil {
		patch.Location = &model.Location{
			Address:   u.Location.Address,
			Latitude:  u.Location.Latitude,
			Longitude: u.Location.Longitude,
		}
	}
	return patch
}
