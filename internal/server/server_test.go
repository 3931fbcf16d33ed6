package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/font/gofont/goregular"

	"hrdocs/internal/config"
	failures "hrdocs/internal/errors"
	"hrdocs/internal/fonts"
	"hrdocs/internal/generator"
	"hrdocs/internal/pdf"
	"hrdocs/internal/types"
)

func realGenerator(t *testing.T) *generator.Generator {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.FontPath = "go-regular"
	cfg.RequiredRunes = ""
	cfg.LogoPath = ""
	g, err := generator.New(cfg,
		generator.WithClock(func() time.Time { return time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC) }),
		generator.WithFontBytes("go-regular", goregular.TTF),
		generator.WithFontLoader(fonts.NewLoader()))
	require.NoError(t, err)
	return g
}

type response struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *APIError       `json:"error"`
}

func do(t *testing.T, h http.Handler, method, path, body string, header map[string]string) (*httptest.ResponseRecorder, response) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var resp response
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	}
	return rec, resp
}

func TestHealth(t *testing.T) {
	h := New(realGenerator(t), nil).Handler()
	rec, resp := do(t, h, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, resp.Success)
	assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))
}

func TestKinds(t *testing.T) {
	h := New(realGenerator(t), nil).Handler()
	_, resp := do(t, h, http.MethodGet, "/api/documents", "", nil)
	var data map[string][]string
	require.NoError(t, json.Unmarshal(resp.Data, &data))
	assert.Len(t, data["kinds"], 4)
}

func TestGenerate_JSON(t *testing.T) {
	h := New(realGenerator(t), nil).Handler()
	body := `{"fullName":"Ahmed Ali","matricule":1234,"purpose":"Bank procedure"}`
	rec, resp := do(t, h, http.MethodPost, "/api/documents/work-certificate", body, map[string]string{RequestIDHeader: "req-1"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "req-1", rec.Header().Get(RequestIDHeader))

	var doc DocumentResponse
	require.NoError(t, json.Unmarshal(resp.Data, &doc))
	assert.Equal(t, "attestation_de_travail.pdf", doc.Filename)
	assert.Equal(t, 1, doc.Pages)
	assert.NotEmpty(t, doc.Reference)

	data, err := pdf.DecodePortable(doc.Content)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, pdf.Magic))
}

func TestGenerate_PDF(t *testing.T) {
	h := New(realGenerator(t), nil).Handler()
	body := `{"fullName":"Ahmed Ali","matricule":"1234","destination":"Rabat","purpose":"Audit","startDate":"2024-05-02","endDate":"2024-05-03"}`
	rec, _ := do(t, h, http.MethodPost, "/api/documents/mission-order", body, map[string]string{"Accept": "application/pdf"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "ordre_de_mission_1234.pdf")
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), pdf.Magic))
}

func TestGenerate_Errors(t *testing.T) {
	h := New(realGenerator(t), nil).Handler()

	rec, resp := do(t, h, http.MethodPost, "/api/documents/mission-order",
		`{"fullName":"Ahmed Ali","matricule":"1234","destination":"Rabat","purpose":"Audit","startDate":"2024-05-04","endDate":"2024-05-02"}`, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	require.NotNil(t, resp.Error)
	assert.Equal(t, string(types.ErrValidation), resp.Error.Code)
	assert.Equal(t, []string{"startDate"}, resp.Error.Fields)

	rec, resp = do(t, h, http.MethodPost, "/api/documents/payslip", `{}`, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, string(types.ErrUnknownKind), resp.Error.Code)

	rec, resp = do(t, h, http.MethodPost, "/api/documents/work-certificate", `not json`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_body", resp.Error.Code)

	rec, _ = do(t, h, http.MethodGet, "/api/documents/work-certificate", "", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

type failingGenerator struct{ err error }

func (f failingGenerator) Generate(ctx context.Context, kind string, data map[string]any) (*generator.Result, error) {
	return nil, f.err
}

func (f failingGenerator) Kinds() []string { return nil }

func TestGenerate_ServerErrorIsJournaled(t *testing.T) {
	journal, err := failures.NewErrorManager(t.TempDir())
	require.NoError(t, err)

	gen := failingGenerator{err: types.NewDocError(types.ErrFontRegistration, "font missing", nil)}
	h := New(gen, journal).Handler()

	rec, resp := do(t, h, http.MethodPost, "/api/documents/leave-request", `{}`, map[string]string{RequestIDHeader: "req-9"})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, string(types.ErrFontRegistration), resp.Error.Code)

	record, ok := journal.GetError(failures.RecordID("leave-request", "req-9"))
	require.True(t, ok)
	assert.Equal(t, failures.StageFont, record.Stage)
}

type panickingGenerator struct{}

func (panickingGenerator) Generate(ctx context.Context, kind string, data map[string]any) (*generator.Result, error) {
	panic("boom")
}

func (panickingGenerator) Kinds() []string { return nil }

func TestRecovery(t *testing.T) {
	h := New(panickingGenerator{}, nil).Handler()
	rec, resp := do(t, h, http.MethodPost, "/api/documents/leave-request", `{}`, nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "internal_error", resp.Error.Code)
}

func TestStatusOf(t *testing.T) {
	assert.Equal(t, http.StatusUnprocessableEntity, statusOf(types.NewDocError(types.ErrLayoutOverflow, "x", nil)))
	assert.Equal(t, http.StatusGatewayTimeout, statusOf(context.DeadlineExceeded))
	assert.Equal(t, http.StatusInternalServerError, statusOf(types.NewDocError(types.ErrEncoding, "x", nil)))
}
