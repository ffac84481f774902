package handler

import "github.com/gin-gonic/gin"

// RegisterRoutes mounts the attendance API on group.
func RegisterRoutes(group *gin.RouterGroup, attendance *AttendanceHandler, exports *ExportHandler) {
	classes := group.Group("/classes")
	classes.GET("", attendance.ListClasses)
	classes.POST("", attendance.AddClass)
	classes.DELETE("/:name", attendance.RemoveClass)
	classes.GET("/:name/students", attendance.ListStudents)

	group.POST("/checkins", attendance.CheckIn)
	group.GET("/audit", attendance.Audit)
	group.GET("/reports/summary", attendance.Summary)
	group.POST("/roster/import", attendance.ImportRoster)
	group.POST("/reload", attendance.Reload)

	if exports != nil {
		group.POST("/audit/export", exports.ExportAudit)
		group.POST("/reports/summary/export", exports.ExportSummary)
		group.GET("/export/:token", exports.Download)
	}
}
