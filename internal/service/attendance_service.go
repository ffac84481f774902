package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/checkin/internal/models"
	appErrors "github.com/noah-isme/checkin/pkg/errors"
)

type attendanceRepository interface {
	Load(ctx context.Context) (*models.AttendanceLog, error)
	Save(ctx context.Context, log *models.AttendanceLog) error
	Inspect(ctx context.Context) error
}

// AttendanceService owns the attendance log. Every operation runs under one
// mutex because each mutation reads, edits and rewrites the whole document.
type AttendanceService struct {
	mu        sync.Mutex
	repo      attendanceRepository
	log       *models.AttendanceLog
	validator *validator.Validate
}

// NewAttendanceService constructs the service with an empty in-memory view;
// call Load to hydrate it from the document.
func NewAttendanceService(repo attendanceRepository, validate *validator.Validate) *AttendanceService {
	if validate == nil {
		validate = validator.New()
	}
	return &AttendanceService{repo: repo, log: models.NewAttendanceLog(), validator: validate}
}

// Load reads the document into memory and returns a copy of it. On failure
// the previous in-memory view is kept.
func (s *AttendanceService) Load(ctx context.Context) (*models.AttendanceLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	log, err := s.repo.Load(ctx)
	if err != nil {
		return nil, err
	}
	s.log = log
	return log.Clone(), nil
}

// Ready reports whether the document on disk is readable. It takes the same
// lock as the mutations and never writes.
func (s *AttendanceService) Ready(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.repo.Inspect(ctx)
}

// ListClasses returns class names in document order, or the single
// NoClassesSentinel entry when there are none.
func (s *AttendanceService) ListClasses(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := s.log.ClassNames()
	if len(names) == 0 {
		return []string{models.NoClassesSentinel}, nil
	}
	return names, nil
}

// ListStudents returns the students of a class; unknown classes yield an empty list.
func (s *AttendanceService) ListStudents(ctx context.Context, class string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.log.Class(class)
	if !ok {
		return []string{}, nil
	}
	return c.Students(), nil
}

// CheckIn appends a check-in stamped with ts for the named student, creating
// the class and student on first use.
func (s *AttendanceService) CheckIn(ctx context.Context, class, name string, ts time.Time) (*models.CheckInEntry, error) {
	student := models.CanonicalStudentName(name)
	if student == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "student name is required")
	}
	if err := validateClassName(class); err != nil {
		return nil, err
	}

	record := models.NewCheckInRecord(ts)
	err := s.mutate(ctx, func(log *models.AttendanceLog) error {
		c, _ := log.EnsureClass(class)
		entry, _ := c.EnsureStudent(student)
		entry.Record.CheckIns = append(entry.Record.CheckIns, record)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &models.CheckInEntry{Class: class, Student: student, Date: record.Date, Time: record.Time}, nil
}

// AddClass registers an empty class. Names are compared case-sensitively.
func (s *AttendanceService) AddClass(ctx context.Context, name string) error {
	name = strings.TrimSpace(name)
	if err := validateClassName(name); err != nil {
		return err
	}
	return s.mutate(ctx, func(log *models.AttendanceLog) error {
		if _, created := log.EnsureClass(name); !created {
			return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("class %q already exists", name))
		}
		return nil
	})
}

// RemoveClass deletes a class and all of its histories. Confirmation is the caller's job.
func (s *AttendanceService) RemoveClass(ctx context.Context, name string) error {
	return s.mutate(ctx, func(log *models.AttendanceLog) error {
		if !log.RemoveClass(name) {
			return appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("class %q not found", name))
		}
		return nil
	})
}

// ImportRoster registers every class and student of the roster with an empty
// history, leaving existing histories alone, and persists once.
func (s *AttendanceService) ImportRoster(ctx context.Context, records []models.RosterRecord) (*models.RosterImportResult, error) {
	if len(records) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "roster contains no records")
	}
	normalized := make([]models.RosterRecord, len(records))
	for i, rec := range records {
		rec.FullName = models.CanonicalStudentName(rec.FullName)
		if err := s.validator.Struct(rec); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, fmt.Sprintf("invalid roster record %d", i+1))
		}
		if err := validateClassName(rec.Class); err != nil {
			return nil, err
		}
		normalized[i] = rec
	}

	result := &models.RosterImportResult{Records: len(normalized)}
	err := s.mutate(ctx, func(log *models.AttendanceLog) error {
		for _, rec := range normalized {
			c, created := log.EnsureClass(rec.Class)
			if created {
				result.ClassesCreated++
			}
			if _, created := c.EnsureStudent(rec.FullName); created {
				result.StudentsCreated++
			} else {
				result.StudentsExisting++
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// TodaysCheckIns lists every check-in dated on the reference day, ordered as
// requested. Sorting is stable, so ties keep document order.
func (s *AttendanceService) TodaysCheckIns(ctx context.Context, referenceDate time.Time, order models.AuditOrder) ([]models.CheckInEntry, error) {
	less, ok := auditLess[order]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown sort order %q", order))
	}
	day := referenceDate.Format(models.DateLayout)

	s.mu.Lock()
	entries := make([]models.CheckInEntry, 0)
	for _, class := range s.log.Classes() {
		for _, student := range class.Entries() {
			for _, rec := range student.Record.CheckIns {
				if rec.Date == day {
					entries = append(entries, models.CheckInEntry{Class: class.Name, Student: student.Name, Date: rec.Date, Time: rec.Time})
				}
			}
		}
	}
	s.mu.Unlock()

	sort.SliceStable(entries, func(i, j int) bool { return less(entries[i], entries[j]) })
	return entries, nil
}

var auditLess = map[models.AuditOrder]func(a, b models.CheckInEntry) bool{
	models.AuditOrderDateTimeDesc: func(a, b models.CheckInEntry) bool {
		return a.Date+" "+a.Time > b.Date+" "+b.Time
	},
	models.AuditOrderDateTimeAsc: func(a, b models.CheckInEntry) bool {
		return a.Date+" "+a.Time < b.Date+" "+b.Time
	},
	models.AuditOrderStudentName: func(a, b models.CheckInEntry) bool { return a.Student < b.Student },
	models.AuditOrderCourse:      func(a, b models.CheckInEntry) bool { return a.Class < b.Class },
}

// SummaryReport counts all check-ins ever recorded per class and student.
func (s *AttendanceService) SummaryReport(ctx context.Context) ([]models.ClassSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	summaries := make([]models.ClassSummary, 0, s.log.Len())
	for _, class := range s.log.Classes() {
		summary := models.ClassSummary{Class: class.Name, Students: make([]models.StudentSummary, 0, len(class.Entries()))}
		for _, student := range class.Entries() {
			summary.Students = append(summary.Students, models.StudentSummary{Student: student.Name, CheckIns: len(student.Record.CheckIns)})
		}
		summaries = append(summaries, summary)
	}
	return summaries, nil
}

// mutate re-reads the document, applies fn and writes the result. The
// in-memory view only changes once the write succeeded.
func (s *AttendanceService) mutate(ctx context.Context, fn func(log *models.AttendanceLog) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	log, err := s.repo.Load(ctx)
	if err != nil {
		return err
	}
	if err := fn(log); err != nil {
		return err
	}
	if err := s.repo.Save(ctx, log); err != nil {
		return err
	}
	s.log = log
	return nil
}

func validateClassName(name string) error {
	switch {
	case strings.TrimSpace(name) == "":
		return appErrors.Clone(appErrors.ErrValidation, "class name is required")
	case name == models.NoClassesSentinel:
		return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("%q is reserved", name))
	}
	return nil
}
