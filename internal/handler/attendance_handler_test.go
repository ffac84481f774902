package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/checkin/internal/repository"
	"github.com/noah-isme/checkin/internal/service"
	"github.com/noah-isme/checkin/pkg/storage"
)

type testServer struct {
	router  *gin.Engine
	dir     string
	metrics *service.MetricsService
	now     time.Time
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dir := t.TempDir()
	store, err := storage.NewLocalStorage(dir)
	require.NoError(t, err)
	metrics := service.NewMetricsService()
	repo := repository.NewAttendanceRepository(store, repository.DefaultDocumentName, metrics)
	svc := service.NewAttendanceService(repo, nil)
	_, err = svc.Load(context.Background())
	require.NoError(t, err)

	signer := storage.NewSignedURLSigner("secret", time.Hour)
	exports := service.NewExportService(svc, store, signer, service.ExportConfig{APIPrefix: "/api/v1"}, nil, nil, nil)

	ts := &testServer{dir: dir, metrics: metrics, now: time.Date(2024, 5, 1, 9, 30, 0, 0, time.Local)}
	attendance := NewAttendanceHandler(svc, exports, metrics, 7, nil)
	attendance.now = func() time.Time { return ts.now }
	exportHandler := NewExportHandler(exports, nil)
	exportHandler.now = func() time.Time { return ts.now }

	r := gin.New()
	RegisterRoutes(r.Group("/api/v1"), attendance, exportHandler)
	ts.router = r
	return ts
}

func (s *testServer) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

type envelope struct {
	Data  json.RawMessage        `json:"data"`
	Error *struct{ Code string } `json:"error"`
	Meta  map[string]interface{} `json:"meta"`
}

func decode(t *testing.T, w *httptest.ResponseRecorder, data interface{}) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	if data != nil {
		require.NoError(t, json.Unmarshal(env.Data, data))
	}
	return env
}

func TestListClassesEmptyReturnsSentinel(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodGet, "/api/v1/classes", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var classes []string
	decode(t, w, &classes)
	assert.Equal(t, []string{"No Classes Found"}, classes)
}

func TestCheckInFlow(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/api/v1/checkins", CheckInRequest{Class: "Math", Name: "  alice smith "})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var entry struct{ Class, Student, Date, Time string }
	decode(t, w, &entry)
	assert.Equal(t, "Alice Smith", entry.Student)
	assert.Equal(t, "2024-05-01", entry.Date)
	assert.Equal(t, "09:30:00", entry.Time)

	w = s.do(t, http.MethodGet, "/api/v1/classes/Math/students", nil)
	var students []string
	decode(t, w, &students)
	assert.Equal(t, []string{"Alice Smith"}, students)

	w = s.do(t, http.MethodGet, "/api/v1/audit?date=2024-05-01", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var entries []map[string]string
	env := decode(t, w, &entries)
	require.Len(t, entries, 1)
	assert.Equal(t, "date_time_desc", env.Meta["sort"])

	raw, err := os.ReadFile(filepath.Join(s.dir, repository.DefaultDocumentName))
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"Check-in"`)
}

func TestCheckInValidation(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/api/v1/checkins", map[string]string{"class": "Math"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPost, "/api/v1/checkins", CheckInRequest{Class: "No Classes Found", Name: "Bob"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	env := decode(t, w, nil)
	require.NotNil(t, env.Error)
	assert.Equal(t, "VALIDATION_ERROR", env.Error.Code)
}

func TestAddAndRemoveClass(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/api/v1/classes", AddClassRequest{Name: "  Physics "})
	require.Equal(t, http.StatusCreated, w.Code)

	w = s.do(t, http.MethodPost, "/api/v1/classes", AddClassRequest{Name: "Physics"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodDelete, "/api/v1/classes/Physics", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = s.do(t, http.MethodDelete, "/api/v1/classes/Physics", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAuditRejectsBadParams(t *testing.T) {
	s := newTestServer(t)

	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodGet, "/api/v1/audit?date=05/01/2024", nil).Code)
	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodGet, "/api/v1/audit?sort=random", nil).Code)
}

func TestSummaryCountsCheckIns(t *testing.T) {
	s := newTestServer(t)
	for i := 0; i < 2; i++ {
		require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/api/v1/checkins", CheckInRequest{Class: "Math", Name: "Alice Smith"}).Code)
	}
	require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/api/v1/classes", AddClassRequest{Name: "Art"}).Code)

	w := s.do(t, http.MethodGet, "/api/v1/reports/summary", nil)
	var summaries []struct {
		Class    string
		Students []struct {
			Student  string
			CheckIns int `json:"check_ins"`
		}
	}
	decode(t, w, &summaries)
	require.Len(t, summaries, 2)
	assert.Equal(t, "Math", summaries[0].Class)
	assert.Equal(t, 2, summaries[0].Students[0].CheckIns)
	assert.Empty(t, summaries[1].Students)
}

func multipartRoster(t *testing.T, filename, content string) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	part, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return body, mw.FormDataContentType()
}

func TestImportRoster(t *testing.T) {
	s := newTestServer(t)
	require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/api/v1/checkins", CheckInRequest{Class: "Biology", Name: "Jane Doe"}).Code)

	body, contentType := multipartRoster(t, "roster.csv", "Course,First Name,Last Name,Gender,Grade\nMHS-24-biology,jane,doe,female,10\nMHS-24-art,sam,lee,M,9\n")
	req := httptest.NewRequest(http.MethodPost, "/api/v1/roster/import", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var result struct {
		Records          int `json:"records"`
		ClassesCreated   int `json:"classes_created"`
		StudentsCreated  int `json:"students_created"`
		StudentsExisting int `json:"students_existing"`
	}
	env := decode(t, w, &result)
	assert.Equal(t, 2, result.Records)
	assert.Equal(t, 1, result.ClassesCreated)
	assert.Equal(t, 1, result.StudentsCreated)
	assert.Equal(t, 1, result.StudentsExisting)
	assert.Contains(t, env.Meta, "export")

	sheet, err := os.ReadFile(filepath.Join(s.dir, service.DefaultRosterName))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(sheet), "Course,Student,Gender,Grade,Date,Status\n"))

	w = s.do(t, http.MethodGet, "/api/v1/classes/Biology/students", nil)
	var students []string
	decode(t, w, &students)
	assert.Equal(t, []string{"Jane Doe"}, students)
}

func TestImportRosterRejectsBadInput(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/api/v1/roster/import", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	body, contentType := multipartRoster(t, "roster.csv", "Course,First Name\nX,y\n")
	req := httptest.NewRequest(http.MethodPost, "/api/v1/roster/import?skip=3", body)
	req.Header.Set("Content-Type", contentType)
	w = httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	body, contentType = multipartRoster(t, "roster.csv", "Course,First Name,Last Name,Gender,Grade\nMHS-24-art,a,b,m,9\n")
	req = httptest.NewRequest(http.MethodPost, "/api/v1/roster/import?skip=11", body)
	req.Header.Set("Content-Type", contentType)
	w = httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestReloadPicksUpExternalEdits(t *testing.T) {
	s := newTestServer(t)
	doc := "{\n    \"Chemistry\": {\n        \"Amy Park\": {\n            \"Check-in\": []\n        }\n    }\n}"
	require.NoError(t, os.WriteFile(filepath.Join(s.dir, repository.DefaultDocumentName), []byte(doc), 0o644))

	w := s.do(t, http.MethodPost, "/api/v1/reload", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodGet, "/api/v1/classes", nil)
	var classes []string
	decode(t, w, &classes)
	assert.Equal(t, []string{"Chemistry"}, classes)

	require.NoError(t, os.WriteFile(filepath.Join(s.dir, repository.DefaultDocumentName), []byte("[1,2]"), 0o644))
	w = s.do(t, http.MethodPost, "/api/v1/reload", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)

	w = s.do(t, http.MethodGet, "/api/v1/classes", nil)
	decode(t, w, &classes)
	assert.Equal(t, []string{"Chemistry"}, classes)
}
