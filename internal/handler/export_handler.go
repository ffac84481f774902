package handler

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/noah-isme/checkin/internal/models"
	"github.com/noah-isme/checkin/internal/service"
	appErrors "github.com/noah-isme/checkin/pkg/errors"
	"github.com/noah-isme/checkin/pkg/response"
)

type exportService interface {
	ExportSummary(ctx context.Context, format service.ExportFormat) (*service.ExportResult, error)
	ExportAudit(ctx context.Context, day time.Time, order models.AuditOrder, format service.ExportFormat) (*service.ExportResult, error)
	ResolveDownload(ctx context.Context, token string) (*service.Download, error)
}

// ExportHandler writes reports to disk and serves them through signed links.
type ExportHandler struct {
	exports exportService
	logger  *zap.Logger
	now     func() time.Time
}

// NewExportHandler constructs an export handler.
func NewExportHandler(exports exportService, logger *zap.Logger) *ExportHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportHandler{exports: exports, logger: logger, now: time.Now}
}

// ExportSummary godoc
// @Summary Write the login-count report
// @Tags Reports
// @Produce json
// @Param format query string false "txt, csv or pdf"
// @Success 201 {object} response.Envelope
// @Router /reports/summary/export [post]
func (h *ExportHandler) ExportSummary(c *gin.Context) {
	format, err := service.ParseExportFormat(c.Query("format"))
	if err != nil {
		response.Error(c, err)
		return
	}
	result, err := h.exports.ExportSummary(c.Request.Context(), format)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}

// ExportAudit godoc
// @Summary Write the audit log of one day
// @Tags Reports
// @Produce json
// @Param date query string false "Day (YYYY-MM-DD), defaults to today"
// @Param sort query string false "Audit ordering"
// @Param format query string false "txt, csv or pdf"
// @Success 201 {object} response.Envelope
// @Router /audit/export [post]
func (h *ExportHandler) ExportAudit(c *gin.Context) {
	day, order, err := parseAuditParams(c.Query("date"), c.Query("sort"), h.now)
	if err != nil {
		response.Error(c, err)
		return
	}
	format, err := service.ParseExportFormat(c.Query("format"))
	if err != nil {
		response.Error(c, err)
		return
	}
	result, err := h.exports.ExportAudit(c.Request.Context(), day, order, format)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}

// Download godoc
// @Summary Download a generated export
// @Tags Reports
// @Param token path string true "Signed token"
// @Success 200 {file} file
// @Router /export/{token} [get]
func (h *ExportHandler) Download(c *gin.Context) {
	download, err := h.exports.ResolveDownload(c.Request.Context(), c.Param("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	defer download.File.Close() //nolint:errcheck

	info, err := download.File.Stat()
	if err != nil {
		response.Error(c, appErrors.Storage(err, "export unreadable"))
		return
	}
	h.logger.Debug("export downloaded", zap.String("file", download.Filename))
	c.Header("Cache-Control", "no-store")
	c.DataFromReader(http.StatusOK, info.Size(), contentType(download.Format), download.File, map[string]string{
		"Content-Disposition": fmt.Sprintf("attachment; filename=%q", download.Filename),
	})
}

func contentType(format service.ExportFormat) string {
	switch format {
	case service.ExportFormatCSV:
		return "text/csv; charset=utf-8"
	case service.ExportFormatPDF:
		return "application/pdf"
	case service.ExportFormatText:
		return "text/plain; charset=utf-8"
	default:
		return "application/octet-stream"
	}
}
