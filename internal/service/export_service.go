package service

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/checkin/internal/models"
	"github.com/noah-isme/checkin/internal/roster"
	appErrors "github.com/noah-isme/checkin/pkg/errors"
	"github.com/noah-isme/checkin/pkg/export"
	"github.com/noah-isme/checkin/pkg/storage"
)

// Default file names inside the data directory.
const (
	DefaultReportName = "attendance_log.txt"
	DefaultRosterName = "converted_attendance_export.csv"
	exportsDir        = "exports"
)

// ReportNameFor names the text report after the attendance document, swapping
// its extension for .txt.
func ReportNameFor(document string) string {
	if document == "" {
		return DefaultReportName
	}
	return strings.TrimSuffix(document, filepath.Ext(document)) + ".txt"
}

// ExportFormat selects how a report is rendered.
type ExportFormat string

const (
	ExportFormatText ExportFormat = "txt"
	ExportFormatCSV  ExportFormat = "csv"
	ExportFormatPDF  ExportFormat = "pdf"
)

// ParseExportFormat validates a requested format; empty input selects text.
func ParseExportFormat(raw string) (ExportFormat, error) {
	switch f := ExportFormat(strings.ToLower(strings.TrimSpace(raw))); f {
	case "":
		return ExportFormatText, nil
	case ExportFormatText, ExportFormatCSV, ExportFormatPDF:
		return f, nil
	default:
		return "", appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported format %q", raw))
	}
}

type reportSource interface {
	SummaryReport(ctx context.Context) ([]models.ClassSummary, error)
	TodaysCheckIns(ctx context.Context, referenceDate time.Time, order models.AuditOrder) ([]models.CheckInEntry, error)
}

type fileStorage interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
	CleanupOlderThan(dir string, ttl time.Duration) ([]string, error)
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
}

// ExportConfig tunes export behaviour.
type ExportConfig struct {
	APIPrefix  string
	ResultTTL  time.Duration
	ReportName string
	RosterName string
}

// ExportResult describes a file written by the export service.
type ExportResult struct {
	ID           string       `json:"id"`
	RelativePath string       `json:"path"`
	Format       ExportFormat `json:"format"`
	URL          string       `json:"url,omitempty"`
	ExpiresAt    *time.Time   `json:"expires_at,omitempty"`
}

// ExportService renders reports and persists them next to the attendance document.
type ExportService struct {
	source  reportSource
	storage fileStorage
	csv     csvRenderer
	pdf     pdfRenderer
	signer  *storage.SignedURLSigner
	logger  *zap.Logger
	cfg     ExportConfig
	now     func() time.Time
}

// NewExportService constructs an ExportService. A nil signer disables download links.
func NewExportService(source reportSource, store fileStorage, signer *storage.SignedURLSigner, cfg ExportConfig, logger *zap.Logger, csv csvRenderer, pdf pdfRenderer) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	if cfg.ReportName == "" {
		cfg.ReportName = DefaultReportName
	}
	if cfg.RosterName == "" {
		cfg.RosterName = DefaultRosterName
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &ExportService{
		source:  source,
		storage: store,
		csv:     csv,
		pdf:     pdf,
		signer:  signer,
		logger:  logger,
		cfg:     cfg,
		now:     time.Now,
	}
}

// ExportSummary writes the login-count report. The text form replaces the
// report file beside the document; CSV and PDF go to the exports folder.
func (s *ExportService) ExportSummary(ctx context.Context, format ExportFormat) (*ExportResult, error) {
	summaries, err := s.source.SummaryReport(ctx)
	if err != nil {
		return nil, err
	}

	var payload []byte
	filename := s.cfg.ReportName
	switch format {
	case ExportFormatText:
		payload = []byte(SummaryText(summaries))
	case ExportFormatCSV:
		payload, err = s.csv.Render(summaryDataset(summaries))
		filename = s.exportName("summary", format)
	case ExportFormatPDF:
		payload, err = s.pdf.Render(summaryDataset(summaries), "Attendance Summary")
		filename = s.exportName("summary", format)
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported format %q", format))
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "render summary report")
	}
	return s.save(filename, format, payload)
}

// ExportAudit writes the check-ins of one day in the requested order.
func (s *ExportService) ExportAudit(ctx context.Context, day time.Time, order models.AuditOrder, format ExportFormat) (*ExportResult, error) {
	entries, err := s.source.TodaysCheckIns(ctx, day, order)
	if err != nil {
		return nil, err
	}

	var payload []byte
	switch format {
	case ExportFormatText:
		payload = []byte(AuditText(entries))
	case ExportFormatCSV:
		payload, err = s.csv.Render(auditDataset(entries))
	case ExportFormatPDF:
		payload, err = s.pdf.Render(auditDataset(entries), "Check-ins "+day.Format(models.DateLayout))
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported format %q", format))
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "render audit log")
	}
	return s.save(s.exportName("audit_"+day.Format(models.DateLayout), format), format, payload)
}

// ExportRoster writes the imported roster as a sheet with blank Date and Status columns.
func (s *ExportService) ExportRoster(ctx context.Context, records []models.RosterRecord) (*ExportResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	payload, err := s.csv.Render(roster.ExportDataset(records))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "render roster export")
	}
	return s.save(s.cfg.RosterName, ExportFormatCSV, payload)
}

// Download is an export resolved from a signed token.
type Download struct {
	File      *os.File
	Filename  string
	Format    ExportFormat
	ExpiresAt time.Time
}

// ResolveDownload validates a token and opens the file it points at.
func (s *ExportService) ResolveDownload(ctx context.Context, token string) (*Download, error) {
	if s.signer == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "downloads are disabled")
	}
	_, relPath, expiresAt, err := s.signer.Parse(token, false)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrNotFound.Code, appErrors.ErrNotFound.Status, "download link invalid or expired")
	}
	clean := path.Clean(filepath.ToSlash(relPath))
	if path.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, "../") {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "download link invalid or expired")
	}
	file, err := s.storage.Open(filepath.FromSlash(clean))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrNotFound.Code, appErrors.ErrNotFound.Status, "export no longer available")
	}
	return &Download{
		File:      file,
		Filename:  path.Base(clean),
		Format:    ExportFormat(strings.TrimPrefix(path.Ext(clean), ".")),
		ExpiresAt: expiresAt,
	}, nil
}

// Cleanup removes generated exports older than ttl (the configured TTL when ttl <= 0).
func (s *ExportService) Cleanup(ttl time.Duration) ([]string, error) {
	if ttl <= 0 {
		ttl = s.cfg.ResultTTL
	}
	deleted, err := s.storage.CleanupOlderThan(exportsDir, ttl)
	if err != nil {
		return nil, appErrors.Storage(err, "clean up exports")
	}
	if len(deleted) > 0 {
		s.logger.Info("exports cleaned up", zap.Int("count", len(deleted)))
	}
	return deleted, nil
}

func (s *ExportService) save(filename string, format ExportFormat, payload []byte) (*ExportResult, error) {
	relPath, err := s.storage.Save(filename, payload)
	if err != nil {
		s.logger.Error("export write failed", zap.String("file", filename), zap.Error(err))
		return nil, appErrors.Storage(err, "write export")
	}
	result := &ExportResult{ID: uuid.NewString(), RelativePath: filepath.ToSlash(relPath), Format: format}
	if s.signer != nil {
		token, expiresAt, err := s.signer.Generate(result.ID, result.RelativePath)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "sign export link")
		}
		prefix := strings.TrimRight(s.cfg.APIPrefix, "/")
		result.URL = fmt.Sprintf("%s/export/%s", prefix, token)
		result.ExpiresAt = &expiresAt
	}
	s.logger.Info("export written", zap.String("file", result.RelativePath), zap.String("format", string(format)), zap.Int("bytes", len(payload)))
	return result, nil
}

func (s *ExportService) exportName(kind string, format ExportFormat) string {
	suffix := strings.SplitN(uuid.NewString(), "-", 2)[0]
	return path.Join(exportsDir, fmt.Sprintf("%s_%s_%s.%s", kind, s.now().Format("20060102_150405"), suffix, format))
}

// SummaryText renders the login-count report: one block per class, one line
// per student, a blank line after each class.
func SummaryText(summaries []models.ClassSummary) string {
	var b strings.Builder
	for _, class := range summaries {
		fmt.Fprintf(&b, "Class: %s\n", class.Class)
		for _, student := range class.Students {
			fmt.Fprintf(&b, "%s: %d logins\n", student.Student, student.CheckIns)
		}
		b.WriteString("\n")
	}
	return b.String()
}

// AuditText renders the audit log one check-in per line.
func AuditText(entries []models.CheckInEntry) string {
	if len(entries) == 0 {
		return "No check-ins for today.\n"
	}
	var b strings.Builder
	for _, e := range entries {
		fmt.Fprintf(&b, "%s (%s) - Checked in on %s at %s\n", e.Student, e.Class, e.Date, e.Time)
	}
	return b.String()
}

func summaryDataset(summaries []models.ClassSummary) export.Dataset {
	rows := make([]map[string]string, 0)
	for _, class := range summaries {
		for _, student := range class.Students {
			rows = append(rows, map[string]string{
				"Class":   class.Class,
				"Student": student.Student,
				"Logins":  strconv.Itoa(student.CheckIns),
			})
		}
	}
	return export.Dataset{Headers: []string{"Class", "Student", "Logins"}, Rows: rows}
}

func auditDataset(entries []models.CheckInEntry) export.Dataset {
	rows := make([]map[string]string, len(entries))
	for i, e := range entries {
		rows[i] = map[string]string{"Student": e.Student, "Class": e.Class, "Date": e.Date, "Time": e.Time}
	}
	return export.Dataset{Headers: []string{"Student", "Class", "Date", "Time"}, Rows: rows}
}
