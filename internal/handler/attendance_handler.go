package handler

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/noah-isme/checkin/internal/models"
	"github.com/noah-isme/checkin/internal/roster"
	"github.com/noah-isme/checkin/internal/service"
	appErrors "github.com/noah-isme/checkin/pkg/errors"
	"github.com/noah-isme/checkin/pkg/response"
)

type attendanceService interface {
	Load(ctx context.Context) (*models.AttendanceLog, error)
	ListClasses(ctx context.Context) ([]string, error)
	ListStudents(ctx context.Context, class string) ([]string, error)
	CheckIn(ctx context.Context, class, name string, ts time.Time) (*models.CheckInEntry, error)
	AddClass(ctx context.Context, name string) error
	RemoveClass(ctx context.Context, name string) error
	ImportRoster(ctx context.Context, records []models.RosterRecord) (*models.RosterImportResult, error)
	TodaysCheckIns(ctx context.Context, referenceDate time.Time, order models.AuditOrder) ([]models.CheckInEntry, error)
	SummaryReport(ctx context.Context) ([]models.ClassSummary, error)
}

type attendanceMetrics interface {
	RecordCheckIn(class string)
	RecordRosterImport(studentsCreated int)
}

type rosterExporter interface {
	ExportRoster(ctx context.Context, records []models.RosterRecord) (*service.ExportResult, error)
}

// CheckInRequest is the body of POST /checkins.
type CheckInRequest struct {
	Class string `json:"class" binding:"required"`
	Name  string `json:"name" binding:"required"`
}

// AddClassRequest is the body of POST /classes.
type AddClassRequest struct {
	Name string `json:"name" binding:"required"`
}

// AttendanceHandler exposes the check-in store over HTTP.
type AttendanceHandler struct {
	service    attendanceService
	exports    rosterExporter
	metrics    attendanceMetrics
	logger     *zap.Logger
	prefixSkip int
	now        func() time.Time
}

// NewAttendanceHandler constructs the handler. exports and metrics may be nil.
func NewAttendanceHandler(svc attendanceService, exports rosterExporter, metrics attendanceMetrics, prefixSkip int, logger *zap.Logger) *AttendanceHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AttendanceHandler{
		service:    svc,
		exports:    exports,
		metrics:    metrics,
		logger:     logger,
		prefixSkip: prefixSkip,
		now:        time.Now,
	}
}

// ListClasses godoc
// @Summary List classes in document order
// @Tags Classes
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /classes [get]
func (h *AttendanceHandler) ListClasses(c *gin.Context) {
	classes, err := h.service.ListClasses(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, classes)
}

// AddClass godoc
// @Summary Add an empty class
// @Tags Classes
// @Accept json
// @Produce json
// @Param payload body AddClassRequest true "Class name"
// @Success 201 {object} response.Envelope
// @Router /classes [post]
func (h *AttendanceHandler) AddClass(c *gin.Context) {
	var req AddClassRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, err.Error()))
		return
	}
	name := strings.TrimSpace(req.Name)
	if err := h.service.AddClass(c.Request.Context(), name); err != nil {
		response.Error(c, err)
		return
	}
	h.logger.Info("class added", zap.String("class", name))
	response.Created(c, gin.H{"name": name})
}

// RemoveClass godoc
// @Summary Delete a class and its attendance history
// @Tags Classes
// @Param name path string true "Class name"
// @Success 204
// @Router /classes/{name} [delete]
func (h *AttendanceHandler) RemoveClass(c *gin.Context) {
	name := c.Param("name")
	if err := h.service.RemoveClass(c.Request.Context(), name); err != nil {
		response.Error(c, err)
		return
	}
	h.logger.Info("class removed", zap.String("class", name))
	response.NoContent(c)
}

// ListStudents godoc
// @Summary List students of a class
// @Tags Classes
// @Produce json
// @Param name path string true "Class name"
// @Success 200 {object} response.Envelope
// @Router /classes/{name}/students [get]
func (h *AttendanceHandler) ListStudents(c *gin.Context) {
	students, err := h.service.ListStudents(c.Request.Context(), c.Param("name"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, students)
}

// CheckIn godoc
// @Summary Record a check-in at the current time
// @Tags Check-ins
// @Accept json
// @Produce json
// @Param payload body CheckInRequest true "Class and student"
// @Success 201 {object} response.Envelope
// @Router /checkins [post]
func (h *AttendanceHandler) CheckIn(c *gin.Context) {
	var req CheckInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, err.Error()))
		return
	}
	entry, err := h.service.CheckIn(c.Request.Context(), req.Class, req.Name, h.now())
	if err != nil {
		response.Error(c, err)
		return
	}
	if h.metrics != nil {
		h.metrics.RecordCheckIn(entry.Class)
	}
	h.logger.Info("check-in recorded", zap.String("class", entry.Class), zap.String("student", entry.Student))
	response.Created(c, entry)
}

// Audit godoc
// @Summary List check-ins of one day
// @Tags Reports
// @Produce json
// @Param date query string false "Day (YYYY-MM-DD), defaults to today"
// @Param sort query string false "date_time_desc, date_time_asc, student_name or course"
// @Success 200 {object} response.Envelope
// @Router /audit [get]
func (h *AttendanceHandler) Audit(c *gin.Context) {
	day, order, err := h.auditParams(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	entries, err := h.service.TodaysCheckIns(c.Request.Context(), day, order)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, entries, map[string]interface{}{
		"date":  day.Format(models.DateLayout),
		"sort":  string(order),
		"total": len(entries),
	})
}

func (h *AttendanceHandler) auditParams(c *gin.Context) (time.Time, models.AuditOrder, error) {
	return parseAuditParams(c.Query("date"), c.Query("sort"), h.now)
}

func parseAuditParams(rawDate, rawSort string, now func() time.Time) (time.Time, models.AuditOrder, error) {
	day := now()
	if rawDate = strings.TrimSpace(rawDate); rawDate != "" {
		parsed, err := time.ParseInLocation(models.DateLayout, rawDate, time.Local)
		if err != nil {
			return time.Time{}, "", appErrors.Clone(appErrors.ErrValidation, "date must be formatted YYYY-MM-DD")
		}
		day = parsed
	}
	order, ok := models.ParseAuditOrder(rawSort)
	if !ok {
		return time.Time{}, "", appErrors.Clone(appErrors.ErrValidation, "unknown sort option "+strconv.Quote(rawSort))
	}
	return day, order, nil
}

// Summary godoc
// @Summary Check-in totals per student per class
// @Tags Reports
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /reports/summary [get]
func (h *AttendanceHandler) Summary(c *gin.Context) {
	summaries, err := h.service.SummaryReport(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, summaries)
}

// ImportRoster godoc
// @Summary Import a class roster from CSV or XLSX
// @Tags Roster
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "Roster file"
// @Param skip query int false "Course prefix length to drop (0-10)"
// @Success 200 {object} response.Envelope
// @Router /roster/import [post]
func (h *AttendanceHandler) ImportRoster(c *gin.Context) {
	skip := h.prefixSkip
	if raw := c.Query("skip"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "skip must be an integer"))
			return
		}
		skip = v
	}

	header, err := c.FormFile("file")
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "roster file is required"))
		return
	}
	file, err := header.Open()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "roster file unreadable"))
		return
	}
	defer file.Close() //nolint:errcheck

	rows, err := roster.Read(header.Filename, file)
	if err != nil {
		response.Error(c, err)
		return
	}
	records, err := roster.Parse(rows, skip)
	if err != nil {
		response.Error(c, err)
		return
	}

	ctx := c.Request.Context()
	result, err := h.service.ImportRoster(ctx, records)
	if err != nil {
		response.Error(c, err)
		return
	}
	if h.metrics != nil {
		h.metrics.RecordRosterImport(result.StudentsCreated)
	}
	h.logger.Info("roster imported",
		zap.String("file", header.Filename),
		zap.Int("records", result.Records),
		zap.Int("classes_created", result.ClassesCreated),
		zap.Int("students_created", result.StudentsCreated),
	)

	meta := map[string]interface{}{}
	if h.exports != nil {
		exported, err := h.exports.ExportRoster(ctx, records)
		if err != nil {
			// The import itself is already persisted.
			h.logger.Warn("roster sheet export failed", zap.Error(err))
		} else {
			meta["export"] = exported
		}
	}
	response.OK(c, result, meta)
}

// Reload godoc
// @Summary Re-read the attendance document from disk
// @Tags Admin
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /reload [post]
func (h *AttendanceHandler) Reload(c *gin.Context) {
	log, err := h.service.Load(c.Request.Context())
	if err != nil {
		h.logger.Error("attendance document reload failed", zap.Error(err))
		response.Error(c, err)
		return
	}
	h.logger.Info("attendance document reloaded", zap.Int("classes", log.Len()))
	response.OK(c, gin.H{"classes": log.Len()})
}
