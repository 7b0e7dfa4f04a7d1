package api

import (
	httpSwagger "github.com/swaggo/http-swagger"

	_ "go-ocr-throughput/docs"
	"go-ocr-throughput/internal/api/handler"
	"go-ocr-throughput/pkg/router"
)

func RegisterRoutes(r *router.Router) {
	r.GET("/api/v1/runs", handler.ListRuns)
	// More specific routes first
	r.GET("/api/v1/runs/*/errors", handler.GetRunErrors)
	r.GET("/api/v1/runs/*/units", handler.GetRunUnits)
	r.GET("/api/v1/runs/*/files", handler.GetRunFiles)
	r.GET("/api/v1/runs/*/files/*", handler.DownloadFile)
	// Generic run route last
	r.GET("/api/v1/runs/*", handler.GetRun)

	r.GET("/swagger/*", router.HandlerFunc(httpSwagger.WrapHandler))
}
