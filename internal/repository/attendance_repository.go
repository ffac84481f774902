package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/noah-isme/checkin/internal/models"
	appErrors "github.com/noah-isme/checkin/pkg/errors"
)

// DefaultDocumentName is the attendance document file name inside the data directory.
const DefaultDocumentName = "attendance_log.json"

type documentStorage interface {
	Exists(filename string) (bool, error)
	Read(filename string) ([]byte, error)
	Save(filename string, data []byte) (string, error)
}

type operationObserver interface {
	ObserveDocumentOperation(op string, duration time.Duration)
}

// AttendanceRepository reads and rewrites the whole attendance document.
// There is no file locking: a concurrent external editor loses to the last write.
type AttendanceRepository struct {
	storage  documentStorage
	filename string
	observer operationObserver
}

// NewAttendanceRepository binds the repository to a document inside storage.
func NewAttendanceRepository(storage documentStorage, filename string, observer operationObserver) *AttendanceRepository {
	if filename == "" {
		filename = DefaultDocumentName
	}
	return &AttendanceRepository{storage: storage, filename: filename, observer: observer}
}

// Filename returns the document name relative to the storage root.
func (r *AttendanceRepository) Filename() string {
	return r.filename
}

// Load reads the document, creating it as an empty object when missing.
func (r *AttendanceRepository) Load(ctx context.Context) (*models.AttendanceLog, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	defer r.observe("load", time.Now())

	exists, err := r.storage.Exists(r.filename)
	if err != nil {
		return nil, appErrors.Storage(err, "check attendance document")
	}
	if !exists {
		if _, err := r.storage.Save(r.filename, []byte("{}")); err != nil {
			return nil, appErrors.Storage(err, "create attendance document")
		}
		return models.NewAttendanceLog(), nil
	}

	data, err := r.storage.Read(r.filename)
	if err != nil {
		return nil, appErrors.Storage(err, "read attendance document")
	}
	log := models.NewAttendanceLog()
	if err := json.Unmarshal(data, log); err != nil {
		return nil, appErrors.Storage(err, "attendance document is not valid JSON")
	}
	return log, nil
}

// Inspect parses the document without creating it or recording metrics. A
// missing document is not an error since Load would create it.
func (r *AttendanceRepository) Inspect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	exists, err := r.storage.Exists(r.filename)
	if err != nil {
		return appErrors.Storage(err, "check attendance document")
	}
	if !exists {
		return nil
	}
	data, err := r.storage.Read(r.filename)
	if err != nil {
		return appErrors.Storage(err, "read attendance document")
	}
	if err := json.Unmarshal(data, models.NewAttendanceLog()); err != nil {
		return appErrors.Storage(err, "attendance document is not valid JSON")
	}
	return nil
}

// Save replaces the document with the given log.
func (r *AttendanceRepository) Save(ctx context.Context, log *models.AttendanceLog) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	defer r.observe("save", time.Now())

	data, err := json.MarshalIndent(log, "", "    ")
	if err != nil {
		return appErrors.Storage(err, "encode attendance document")
	}
	if _, err := r.storage.Save(r.filename, data); err != nil {
		return appErrors.Storage(err, "write attendance document")
	}
	return nil
}

func (r *AttendanceRepository) observe(op string, start time.Time) {
	if r.observer != nil {
		r.observer.ObserveDocumentOperation(op, time.Since(start))
	}
}
