package api

import (
	"net/http"

	model2 "github.com/canopyfield/canopy/api/model"
	"github.com/gin-gonic/gin"
)

func (a Api) GetConnectivity(c *gin.Context) {
	monitor := a.canopy.Connectivity()
	c.JSON(http.StatusOK, gin.H{"online": monitor.Online(), "changed_at": monitor.ChangedAt()})
}

// ReportConnectivity lets the app push its own view of the network. Going
// online wakes the sync agent.
func (a Api) ReportConnectivity(c *gin.Context) {
	var report model2.ConnectivityReport
	if err := c.ShouldBindJSON(&report); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}
	if err := report.ValidateConnectivityReport(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}

	a.canopy.SetOnline(*report.Online)
	monitor := a.canopy.Connectivity()
	c.JSON(http.StatusOK, gin.H{"online": monitor.Online(), "changed_at": monitor.ChangedAt()})
}
