package generator

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/font/gofont/goregular"

	"hrdocs/internal/archive"
	"hrdocs/internal/config"
	failures "hrdocs/internal/errors"
	"hrdocs/internal/fonts"
	"hrdocs/internal/pdf"
	"hrdocs/internal/results"
	"hrdocs/internal/shaper"
	"hrdocs/internal/templates"
	"hrdocs/internal/types"
)

var fixedTime = time.Date(2024, 5, 2, 9, 30, 0, 0, time.UTC)

func testConfig() *types.Config {
	cfg := config.DefaultConfig()
	cfg.FontPath = "go-regular"
	cfg.RequiredRunes = ""
	cfg.LogoPath = ""
	return cfg
}

func newGenerator(t *testing.T, opts ...Option) *Generator {
	t.Helper()
	base := []Option{
		WithClock(func() time.Time { return fixedTime }),
		WithFontBytes("go-regular", goregular.TTF),
		WithFontLoader(fonts.NewLoader()),
	}
	g, err := New(testConfig(), append(base, opts...)...)
	require.NoError(t, err)
	return g
}

func forms() map[string]map[string]any {
	return map[string]map[string]any{
		templates.LeaveRequest: {
			"fullName": "Ahmed Ali", "matricule": "1234", "leaveType": "Congé annuel",
			"startDate": "2024-05-06", "endDate": "2024-05-10",
		},
		templates.MissionOrder: {
			"fullName": "Ahmed Ali", "matricule": "1234", "destination": "Casablanca",
			"purpose": "Audit", "startDate": "2024-05-02", "endDate": "2024-05-04",
		},
		templates.WorkCertificate: {
			"fullName": "Ahmed Ali", "matricule": "1234", "purpose": "Bank procedure",
		},
		templates.SalaryDomiciliation: {
			"fullName": "Ahmed Ali", "matricule": "1234", "bankName": "Banque Populaire",
			"accountNumber": "181000001234567890",
		},
	}
}

func TestNew_Errors(t *testing.T) {
	_, err := New(nil)
	assert.True(t, types.IsCode(err, types.ErrConfig))

	cfg := testConfig()
	cfg.FontPath = ""
	_, err = New(cfg)
	assert.True(t, types.IsCode(err, types.ErrConfig))
}

func TestGenerate_AllKinds(t *testing.T) {
	g := newGenerator(t)
	assert.Len(t, g.Kinds(), 4)

	for kind, data := range forms() {
		t.Run(kind, func(t *testing.T) {
			res, err := g.Generate(context.Background(), kind, data)
			require.NoError(t, err)

			assert.True(t, bytes.HasPrefix(res.Bytes, pdf.Magic))
			assert.Equal(t, kind, res.Kind)
			assert.Equal(t, 1, res.PageCount)
			assert.NotEmpty(t, res.Reference)
			assert.NotEmpty(t, res.SuggestedFilename)

			decoded, err := pdf.DecodePortable(res.PortableText)
			require.NoError(t, err)
			assert.Equal(t, res.Bytes, decoded)
		})
	}
}

func TestGenerate_Deterministic(t *testing.T) {
	for kind, data := range forms() {
		a, err := newGenerator(t).Generate(context.Background(), kind, data)
		require.NoError(t, err)
		b, err := newGenerator(t).Generate(context.Background(), kind, data)
		require.NoError(t, err)
		assert.Equal(t, a.Bytes, b.Bytes, kind)
		assert.Equal(t, a.Reference, b.Reference, kind)
	}
}

func TestGenerate_WorkCertificate(t *testing.T) {
	res, err := newGenerator(t).Generate(context.Background(), templates.WorkCertificate,
		map[string]any{"fullName": "Ahmed Ali", "matricule": "1234", "purpose": "Bank procedure"})
	require.NoError(t, err)
	assert.Equal(t, "attestation_de_travail.pdf", res.SuggestedFilename)
	assert.Empty(t, res.Untranslated)

	rows, err := pdf.ExtractRows(res.Bytes)
	require.NoError(t, err)

	var title, name *pdf.TextRow
	for i := range rows {
		switch {
		case title == nil && strings.Contains(rows[i].Text, "ATTESTATION DE TRAVAIL"):
			title = &rows[i]
		case name == nil && strings.Contains(rows[i].Text, "Ahmed Ali"):
			name = &rows[i]
		}
	}
	require.NotNil(t, title, "title row")
	require.NotNil(t, name, "name row")
	assert.Greater(t, title.Y, name.Y, "title is above the body")
}

func TestGenerate_MissingRequired(t *testing.T) {
	g := newGenerator(t)
	for kind, data := range forms() {
		delete(data, "fullName")
		res, err := g.Generate(context.Background(), kind, data)
		assert.Nil(t, res, kind)
		assert.True(t, types.IsCode(err, types.ErrValidation), kind)
	}
}

func TestGenerate_UnknownKind(t *testing.T) {
	_, err := newGenerator(t).Generate(context.Background(), "payslip", nil)
	assert.True(t, types.IsCode(err, types.ErrUnknownKind))
}

func TestGenerate_MissingFont(t *testing.T) {
	cfg := testConfig()
	cfg.FontPath = "/nonexistent/font.ttf"
	g, err := New(cfg, WithFontLoader(fonts.NewLoader()))
	require.NoError(t, err)

	_, err = g.Generate(context.Background(), templates.WorkCertificate, forms()[templates.WorkCertificate])
	assert.True(t, types.IsCode(err, types.ErrFontRegistration))
}

func TestGenerate_FontWithoutArabic(t *testing.T) {
	cfg := testConfig()
	cfg.RequiredRunes = config.DefaultRequiredRunes
	g, err := New(cfg,
		WithFontBytes("go-regular", goregular.TTF),
		WithFontLoader(fonts.NewLoader(fonts.WithRequiredRunes(cfg.RequiredRunes))))
	require.NoError(t, err)

	_, err = g.Generate(context.Background(), templates.WorkCertificate, forms()[templates.WorkCertificate])
	assert.True(t, types.IsCode(err, types.ErrFontRegistration))
}

// arabicFont returns the deployment font, from HRDOCS_ARABIC_FONT or the
// repository assets, skipping the test when neither is present.
func arabicFont(t *testing.T) string {
	t.Helper()
	for _, path := range []string{os.Getenv("HRDOCS_ARABIC_FONT"), filepath.Join("..", "..", config.DefaultFontPath)} {
		if path == "" {
			continue
		}
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	t.Skip("no Arabic font available, set HRDOCS_ARABIC_FONT")
	return ""
}

func TestGenerate_ArabicFont(t *testing.T) {
	path := arabicFont(t)

	cfg := testConfig()
	cfg.FontPath = path
	cfg.RequiredRunes = config.DefaultRequiredRunes
	loader := fonts.NewLoader(fonts.WithRequiredRunes(cfg.RequiredRunes))
	g, err := New(cfg, WithClock(func() time.Time { return fixedTime }), WithFontLoader(loader))
	require.NoError(t, err)

	font, err := loader.Load(path)
	require.NoError(t, err, "font covers the shaped forms")
	for _, label := range []string{"الاسم الكامل", "رقم التأجير", "مدير الموارد البشرية", "إجراء بنكي"} {
		shaped := shaper.Shape(label, shaper.Arabic)
		assert.Empty(t, font.Missing(shaped.Text), label)
	}

	for kind, data := range forms() {
		t.Run(kind, func(t *testing.T) {
			res, err := g.Generate(context.Background(), kind, data)
			require.NoError(t, err)
			assert.Equal(t, 1, res.PageCount)

			rows, err := pdf.ExtractRows(res.Bytes)
			require.NoError(t, err)
			assert.True(t, pdf.ContainsText(rows, "Ahmed Ali"))
		})
	}
}

func TestGenerate_MissingLogoContinues(t *testing.T) {
	cfg := testConfig()
	cfg.LogoPath = "/nonexistent/logo.png"
	g, err := New(cfg,
		WithClock(func() time.Time { return fixedTime }),
		WithFontBytes("go-regular", goregular.TTF),
		WithFontLoader(fonts.NewLoader()))
	require.NoError(t, err)

	res, err := g.Generate(context.Background(), templates.WorkCertificate, forms()[templates.WorkCertificate])
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(res.Bytes, pdf.Magic))
}

type recordingSink struct {
	mu     sync.Mutex
	stored map[string][]byte
	err    error
}

func (s *recordingSink) Store(ctx context.Context, reference, name string, data []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return "", s.err
	}
	if s.stored == nil {
		s.stored = make(map[string][]byte)
	}
	key := reference + "/" + name
	s.stored[key] = data
	return "mem://" + key, nil
}

func (s *recordingSink) Close() error { return nil }

func TestGenerate_Cancelled(t *testing.T) {
	sink := &recordingSink{}
	g := newGenerator(t, WithArchive(sink))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := g.Generate(ctx, templates.WorkCertificate, forms()[templates.WorkCertificate])
	assert.Nil(t, res)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, sink.stored)
}

func TestGenerate_Archive(t *testing.T) {
	sink := &recordingSink{}
	res, err := newGenerator(t, WithArchive(sink)).Generate(context.Background(), templates.MissionOrder, forms()[templates.MissionOrder])
	require.NoError(t, err)
	assert.Equal(t, "mem://"+res.Reference+"/ordre_de_mission_1234.pdf", res.ArchivedAt)
	assert.Equal(t, res.Bytes, sink.stored[res.Reference+"/ordre_de_mission_1234.pdf"])
}

func TestGenerate_ArchiveKeepsEveryEmployee(t *testing.T) {
	sink, err := archive.NewDirSink(t.TempDir())
	require.NoError(t, err)
	g := newGenerator(t, WithArchive(sink))

	first := forms()[templates.WorkCertificate]
	second := forms()[templates.WorkCertificate]
	second["fullName"] = "Salma Idrissi"
	second["matricule"] = "5678"

	a, err := g.Generate(context.Background(), templates.WorkCertificate, first)
	require.NoError(t, err)
	b, err := g.Generate(context.Background(), templates.WorkCertificate, second)
	require.NoError(t, err)

	require.Equal(t, a.SuggestedFilename, b.SuggestedFilename)
	require.NotEqual(t, a.Reference, b.Reference)
	require.NotEqual(t, a.ArchivedAt, b.ArchivedAt)

	storedA, err := os.ReadFile(a.ArchivedAt)
	require.NoError(t, err)
	storedB, err := os.ReadFile(b.ArchivedAt)
	require.NoError(t, err)
	assert.Equal(t, a.Bytes, storedA)
	assert.Equal(t, b.Bytes, storedB)
}

func TestGenerate_ArchiveFailureIsNotFatal(t *testing.T) {
	sink := &recordingSink{err: types.NewDocError(types.ErrArchive, "bucket unavailable", nil)}
	res, err := newGenerator(t, WithArchive(sink)).Generate(context.Background(), templates.MissionOrder, forms()[templates.MissionOrder])
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.True(t, types.IsCode(res.ArchiveError, types.ErrArchive))
	assert.Empty(t, res.ArchivedAt)
}

func TestGenerate_Register(t *testing.T) {
	register, err := results.NewResultManager(t.TempDir())
	require.NoError(t, err)

	sink := &recordingSink{}
	res, err := newGenerator(t, WithArchive(sink), WithRegister(register)).
		Generate(context.Background(), templates.WorkCertificate, forms()[templates.WorkCertificate])
	require.NoError(t, err)
	assert.NoError(t, res.RegisterError)

	info, err := register.Verify(res.Reference)
	require.NoError(t, err)
	assert.Equal(t, templates.WorkCertificate, info.Kind)
	assert.Equal(t, "1234", info.Matricule)
	assert.Equal(t, res.Digest, info.Digest)
	assert.True(t, info.IssuedAt.Equal(fixedTime))
	assert.Equal(t, results.StatusArchived, info.Status)
}

func TestGenerate_Untranslated(t *testing.T) {
	data := forms()[templates.MissionOrder]
	data["purpose"] = "Inventaire du stock"
	res, err := newGenerator(t).Generate(context.Background(), templates.MissionOrder, data)
	require.NoError(t, err)
	assert.Equal(t, []string{"Inventaire du stock"}, res.Untranslated)
}

func TestGenerateBatch(t *testing.T) {
	journal, err := failures.NewErrorManager(t.TempDir())
	require.NoError(t, err)

	// A stale failure for an input that now succeeds is cleared.
	require.NoError(t, journal.RecordError(templates.WorkCertificate, "ok.json",
		types.NewDocError(types.ErrEncoding, "x", nil)))

	g := newGenerator(t, WithJournal(journal))
	items := []BatchItem{
		{Input: "leave.json", Kind: templates.LeaveRequest, Data: forms()[templates.LeaveRequest]},
		{Input: "bad.json", Kind: templates.MissionOrder, Data: map[string]any{"fullName": "X"}},
		{Input: "ok.json", Kind: templates.WorkCertificate, Data: forms()[templates.WorkCertificate]},
		{Input: "bank.json", Kind: templates.SalaryDomiciliation, Data: forms()[templates.SalaryDomiciliation]},
	}

	out, err := g.GenerateBatch(context.Background(), items, 2)
	require.NoError(t, err)
	require.Len(t, out, len(items))

	for i, r := range out {
		assert.Equal(t, items[i].Input, r.Input)
		if r.Input == "bad.json" {
			assert.True(t, types.IsCode(r.Err, types.ErrValidation))
			assert.Nil(t, r.Result)
			continue
		}
		require.NoError(t, r.Err, r.Input)
		assert.True(t, bytes.HasPrefix(r.Result.Bytes, pdf.Magic))
	}

	records := journal.ListErrors()
	require.Len(t, records, 1)
	assert.Equal(t, failures.RecordID(templates.MissionOrder, "bad.json"), records[0].ID)
	assert.Equal(t, failures.StageValidation, records[0].Stage)
	assert.False(t, records[0].CanRetry)
}

func TestGenerateBatch_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	items := []BatchItem{{Input: "a", Kind: templates.WorkCertificate, Data: forms()[templates.WorkCertificate]}}
	_, err := newGenerator(t).GenerateBatch(ctx, items, 1)
	assert.True(t, errors.Is(err, context.Canceled))
}

// Run with -race: the builds share the encoder, the font cache and the registry.
func TestGenerateBatch_Concurrent(t *testing.T) {
	var items []BatchItem
	for i := 0; i < 8; i++ {
		data := forms()[templates.WorkCertificate]
		data["matricule"] = fmt.Sprintf("M-%02d", i)
		items = append(items, BatchItem{Input: fmt.Sprintf("agent%d.json", i), Kind: templates.WorkCertificate, Data: data})
	}

	out, err := newGenerator(t).GenerateBatch(context.Background(), items, 4)
	require.NoError(t, err)
	require.Len(t, out, len(items))

	refs := make(map[string]bool)
	for _, r := range out {
		require.NoError(t, r.Err, r.Input)
		assert.True(t, bytes.HasPrefix(r.Result.Bytes, pdf.Magic))
		refs[r.Result.Reference] = true
	}
	assert.Len(t, refs, len(items))
}

func TestReference(t *testing.T) {
	a := Reference("work-certificate", "1234", "attestation_de_travail.pdf", fixedTime)
	assert.Equal(t, a, Reference("work-certificate", "1234", "attestation_de_travail.pdf", fixedTime))
	assert.NotEqual(t, a, Reference("work-certificate", "5678", "attestation_de_travail.pdf", fixedTime))
	assert.NotEqual(t, a, Reference("work-certificate", "1234", "attestation_de_travail.pdf", fixedTime.Add(time.Second)))
	assert.Len(t, a, 36)
}
