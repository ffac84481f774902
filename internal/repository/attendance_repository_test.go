package repository

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/checkin/internal/models"
	appErrors "github.com/noah-isme/checkin/pkg/errors"
	"github.com/noah-isme/checkin/pkg/storage"
)

type observerStub struct {
	ops []string
}

func (o *observerStub) ObserveDocumentOperation(op string, _ time.Duration) {
	o.ops = append(o.ops, op)
}

type failingStorage struct {
	exists  bool
	readErr error
	saveErr error
}

func (f failingStorage) Exists(string) (bool, error)         { return f.exists, nil }
func (f failingStorage) Read(string) ([]byte, error)         { return nil, f.readErr }
func (f failingStorage) Save(string, []byte) (string, error) { return "", f.saveErr }

func newRepo(t *testing.T) (*AttendanceRepository, string, *observerStub) {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.NewLocalStorage(dir)
	require.NoError(t, err)
	obs := &observerStub{}
	return NewAttendanceRepository(store, "", obs), dir, obs
}

func TestLoadCreatesMissingDocument(t *testing.T) {
	repo, dir, obs := newRepo(t)

	log, err := repo.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, log.Len())

	data, err := os.ReadFile(filepath.Join(dir, DefaultDocumentName))
	require.NoError(t, err)
	assert.Equal(t, "{}", string(data))
	assert.Equal(t, []string{"load"}, obs.ops)
}

func TestLoadMalformedDocument(t *testing.T) {
	repo, dir, _ := newRepo(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, DefaultDocumentName), []byte("{not json"), 0o644))

	_, err := repo.Load(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrStorage))
}

func TestSaveThenLoadRoundTrip(t *testing.T) {
	repo, dir, _ := newRepo(t)
	ctx := context.Background()

	log := models.NewAttendanceLog()
	algebra, _ := log.EnsureClass("Algebra I")
	jane, _ := algebra.EnsureStudent("Jane Doe")
	jane.Record.CheckIns = append(jane.Record.CheckIns,
		models.CheckInRecord{Date: "2024-03-01", Time: "08:05:12"},
		models.CheckInRecord{Date: "2024-03-02", Time: "07:59:00"},
	)
	log.EnsureClass("Art")
	require.NoError(t, repo.Save(ctx, log))

	raw, err := os.ReadFile(filepath.Join(dir, DefaultDocumentName))
	require.NoError(t, err)
	assert.Contains(t, string(raw), "\n    \"Algebra I\": {")

	loaded, err := repo.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Algebra I", "Art"}, loaded.ClassNames())
	loadedAlgebra, _ := loaded.Class("Algebra I")
	loadedJane, ok := loadedAlgebra.Student("Jane Doe")
	require.True(t, ok)
	assert.Equal(t, jane.Record.CheckIns, loadedJane.Record.CheckIns)
}

func TestStorageFailuresSurface(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("disk full")

	repo := NewAttendanceRepository(failingStorage{saveErr: boom}, "", nil)
	err := repo.Save(ctx, models.NewAttendanceLog())
	assert.True(t, errors.Is(err, appErrors.ErrStorage))
	assert.True(t, errors.Is(err, boom))

	repo = NewAttendanceRepository(failingStorage{exists: true, readErr: boom}, "", nil)
	_, err = repo.Load(ctx)
	assert.True(t, errors.Is(err, appErrors.ErrStorage))
}

func TestInspectNeverWrites(t *testing.T) {
	repo, dir, obs := newRepo(t)
	ctx := context.Background()
	path := filepath.Join(dir, DefaultDocumentName)

	require.NoError(t, repo.Inspect(ctx))
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	require.NoError(t, os.WriteFile(path, []byte(`{"Art":{}}`), 0o644))
	require.NoError(t, repo.Inspect(ctx))

	require.NoError(t, os.WriteFile(path, []byte("[1]"), 0o644))
	assert.True(t, errors.Is(repo.Inspect(ctx), appErrors.ErrStorage))
	assert.Empty(t, obs.ops)
}

func TestFilenameDefaultsToDocumentName(t *testing.T) {
	repo, _, _ := newRepo(t)
	assert.Equal(t, DefaultDocumentName, repo.Filename())
	assert.Equal(t, "period3.json", NewAttendanceRepository(nil, "period3.json", nil).Filename())
}
