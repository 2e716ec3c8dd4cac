package approuters

import (
	"github.com/gin-gonic/gin"

	"converse/internal/configuration"
)

func MonitorRouters(router *gin.Engine, container *configuration.Container) {
	monitor := router.Group("/api/monitor")
	{
		monitor.GET("/stats", container.MonitorHandler.GetHubStats)
	}
}
