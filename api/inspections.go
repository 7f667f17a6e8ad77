package api

import (
	"net/http"

	model2 "github.com/canopyfield/canopy/api/model"
	"github.com/canopyfield/canopy/model"
	"github.com/gin-gonic/gin"
)

func (a Api) CreateInspection(c *gin.Context) {
	var newInspection model2.CreateInspection
	if err := c.ShouldBindJSON(&newInspection); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}

	err := newInspection.ValidateCreateInspection()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}

	resp, err := a.canopy.CreateInspection(c.Request.Context(), newInspection.ToInspection())
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

func (a Api) GetInspection(c *gin.Context) {
	id, ok := requiredParam(c, "id")
	if !ok {
		return
	}

	resp, err := a.canopy.GetInspection(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// GetAllInspections lists inspections newest first, optionally filtered by
// ?status=.
func (a Api) GetAllInspections(c *gin.Context) {
	resp, err := a.canopy.ListInspections(c.Request.Context(), model.InspectionStatus(c.Query("status")))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (a Api) UpdateInspection(c *gin.Context) {
	id, ok := requiredParam(c, "id")
	if !ok {
		return
	}

	var update model2.UpdateInspection
	if err := c.ShouldBindJSON(&update); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}
	if err := update.ValidateUpdateInspection(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}

	resp, err := a.canopy.UpdateInspection(c.Request.Context(), id, update.ToPatch())
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (a Api) UpdateInspectionStatus(c *gin.Context) {
	id, ok := requiredParam(c, "id")
	if !ok {
		return
	}

	var update model2.UpdateStatus
	if err := c.ShouldBindJSON(&update); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}
	if err := update.ValidateUpdateStatus(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}

	resp, err := a.canopy.UpdateInspectionStatus(c.Request.Context(), id, model.InspectionStatus(update.Status))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (a Api) DeleteInspection(c *gin.Context) {
	id, ok := requiredParam(c, "id")
	if !ok {
		return
	}

	if err := a.canopy.DeleteInspection(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "inspection deleted"})
}
