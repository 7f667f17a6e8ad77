package api

import (
	"context"
	"net/http"

	"github.com/canopyfield/canopy/model"
	"github.com/gin-gonic/gin"
)

// TriggerSync runs a manual pass and returns its summary. The pass is
// detached from the request so a client disconnect does not abort it
// halfway through the queue.
func (a Api) TriggerSync(c *gin.Context) {
	summary, err := a.canopy.Sync(context.WithoutCancel(c.Request.Context()), model.SyncReasonManual)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, summary)
}

func (a Api) GetSyncStatus(c *gin.Context) {
	resp, err := a.canopy.SyncStatus(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (a Api) GetPendingWrites(c *gin.Context) {
	resp, err := a.canopy.PendingWrites(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (a Api) RequeuePendingWrite(c *gin.Context) {
	id, ok := requiredParam(c, "id")
	if !ok {
		return
	}

	resp, err := a.canopy.RequeuePendingWrite(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (a Api) PullRemote(c *gin.Context) {
	summary, err := a.canopy.PullRemote(context.WithoutCancel(c.Request.Context()))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, summary)
}
