package api

import (
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

func (a Api) ResolveAddress(c *gin.Context) {
	lat, err := strconv.ParseFloat(c.Query("lat"), 64)
	if err != nil || lat < -90 || lat > 90 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "lat must be a number between -90 and 90"})
		return
	}
	lon, err := strconv.ParseFloat(c.Query("lon"), 64)
	if err != nil || lon < -180 || lon > 180 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "lon must be a number between -180 and 180"})
		return
	}

	c.JSON(http.StatusOK, a.canopy.ResolveAddress(c.Request.Context(), lat, lon))
}

func (a Api) GetPendingAddressLookups(c *gin.Context) {
	resp, err := a.canopy.PendingAddressLookups(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// StreamAddressUpdates pushes an "address" server-sent event each time a
// queued lookup resolves, until the client goes away.
func (a Api) StreamAddressUpdates(c *gin.Context) {
	updates, unsubscribe := a.canopy.SubscribeAddresses()
	defer unsubscribe()

	c.Stream(func(w io.Writer) bool {
		select {
		case <-c.Request.Context().Done():
			return false
		case update, ok := <-updates:
			if !ok {
				return false
			}
			c.SSEvent("address", update)
			return true
		}
	})
}
