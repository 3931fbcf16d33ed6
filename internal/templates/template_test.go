package templates

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/color"
	"image/png"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/font/gofont/goregular"

	"hrdocs/internal/config"
	"hrdocs/internal/fonts"
	"hrdocs/internal/layout"
	"hrdocs/internal/types"
)

var fixedTime = time.Date(2024, 5, 2, 9, 30, 0, 0, time.UTC)

func registry(t *testing.T) *Registry {
	t.Helper()
	r, err := NewRegistry(WithClock(func() time.Time { return fixedTime }))
	require.NoError(t, err)
	return r
}

func composer(t *testing.T) *layout.Composer {
	t.Helper()
	font, err := fonts.NewLoader().LoadBytes("go-regular", goregular.TTF)
	require.NoError(t, err)
	c, err := layout.New(layout.Options{ArabicFont: font, CreatedAt: fixedTime})
	require.NoError(t, err)
	return c
}

func drawContext() Context {
	return Context{
		Org:       config.DefaultOrganization(),
		IssuedAt:  fixedTime,
		Reference: "6f1c2a4e-0000-5000-8000-000000000000",
	}
}

func completeForms() map[string]map[string]any {
	return map[string]map[string]any{
		LeaveRequest: {
			"fullName":   "Ahmed Ali",
			"matricule":  "1234",
			"jobTitle":   "Ingénieur",
			"department": "Informatique",
			"leaveType":  "Congé annuel",
			"startDate":  "2024-05-06",
			"endDate":    "2024-05-10",
			"address":    "Rabat",
			"phone":      "06 12 34 56 78",
			"interim":    "Sara Idrissi",
		},
		MissionOrder: {
			"fullName":        "Ahmed Ali",
			"matricule":       "1234",
			"jobTitle":        "Technicien",
			"department":      "Maintenance",
			"missionNumber":   "OM-17",
			"destination":     "Casablanca",
			"purpose":         "Audit",
			"startDate":       "2024-05-02",
			"endDate":         "2024-05-04",
			"transport":       "Train",
			"officialVehicle": false,
			"companion":       "Karim Saidi",
		},
		WorkCertificate: {
			"fullName":   "Ahmed Ali",
			"matricule":  "1234",
			"cin":        "AB123456",
			"jobTitle":   "Comptable",
			"department": "Finances",
			"hireDate":   "2015-09-01",
			"purpose":    "Bank procedure",
		},
		SalaryDomiciliation: {
			"fullName":      "Ahmed Ali",
			"matricule":     "1234",
			"cin":           "AB123456",
			"jobTitle":      "Cadre",
			"bankName":      "Banque Populaire",
			"agency":        "Rabat",
			"accountNumber": "1810 0000 1234 5678 9012",
			"salary":        "12345.5",
		},
	}
}

func draw(t *testing.T, kind string, data map[string]any) (*layout.Document, []string) {
	t.Helper()
	tmpl, err := registry(t).Lookup(kind)
	require.NoError(t, err)
	values, err := tmpl.Validate(data)
	require.NoError(t, err)
	c := composer(t)
	untranslated, err := tmpl.Draw(c, values, drawContext())
	require.NoError(t, err)
	return c.Document(), untranslated
}

// valueAfter returns the op drawn right after the op whose logical text is label.
func valueAfter(t *testing.T, doc *layout.Document, label string) layout.Op {
	t.Helper()
	ops := doc.TextOps()
	for i, op := range ops {
		if op.Logical == label && i+1 < len(ops) {
			return ops[i+1]
		}
	}
	t.Fatalf("label %q not drawn", label)
	return layout.Op{}
}

func TestRegistry_Kinds(t *testing.T) {
	r := registry(t)
	assert.Equal(t, []string{LeaveRequest, MissionOrder, SalaryDomiciliation, WorkCertificate}, r.Kinds())

	_, err := r.Lookup("payslip")
	assert.True(t, types.IsCode(err, types.ErrUnknownKind))
}

func TestDraw_AllKinds(t *testing.T) {
	for kind, data := range completeForms() {
		t.Run(kind, func(t *testing.T) {
			doc, _ := draw(t, kind, data)
			assert.Equal(t, 1, doc.Page())
			assert.NotEmpty(t, doc.TextOps())
			assert.LessOrEqual(t, doc.Cursor(), layout.BodyBottom)

			_, ok := doc.FindText("Réf. : " + drawContext().Reference)
			assert.True(t, ok, "reference printed in footer")
		})
	}
}

func TestFilename(t *testing.T) {
	r := registry(t)
	want := map[string]string{
		LeaveRequest:        "demande_de_conge_1234.pdf",
		MissionOrder:        "ordre_de_mission_1234.pdf",
		WorkCertificate:     "attestation_de_travail.pdf",
		SalaryDomiciliation: "domiciliation_de_salaire_Ahmed_Ali.pdf",
	}
	for kind, data := range completeForms() {
		tmpl, err := r.Lookup(kind)
		require.NoError(t, err)
		values, err := tmpl.Validate(data)
		require.NoError(t, err)
		assert.Equal(t, want[kind], tmpl.Filename(values), kind)
	}
}

func TestSanitizeFilename(t *testing.T) {
	assert.Equal(t, "a_b_c", sanitizeFilename("  a  b\tc "))
	assert.Equal(t, "etcpasswd", sanitizeFilename("etc/passwd"))
}

func TestWorkCertificate_Scenario(t *testing.T) {
	data := map[string]any{"fullName": "Ahmed Ali", "matricule": "1234", "purpose": "Bank procedure"}
	doc, untranslated := draw(t, WorkCertificate, data)
	assert.Empty(t, untranslated)

	title, ok := doc.FindText("ATTESTATION DE TRAVAIL")
	require.True(t, ok)
	assert.InDelta(t, layout.PageWidth/2, title.CenterX(), 0.01)
	assert.Less(t, title.Y, layout.PageHeight/4)

	name, ok := doc.FindText("Nom et prénom :")
	require.True(t, ok)
	assert.Greater(t, name.Y, title.Y)

	tmpl, err := registry(t).Lookup(WorkCertificate)
	require.NoError(t, err)
	values, err := tmpl.Validate(data)
	require.NoError(t, err)
	assert.Equal(t, "attestation_de_travail.pdf", tmpl.Filename(values))

	purpose := valueAfter(t, doc, "الغرض :")
	assert.Equal(t, "إجراء بنكي", purpose.Logical)
}

func TestMissingOptional_Placeholder(t *testing.T) {
	data := map[string]any{"fullName": "Ahmed Ali", "matricule": "1234"}
	doc, _ := draw(t, WorkCertificate, data)

	for _, label := range []string{"CIN :", "Fonction :", "Service :", "Date de recrutement :", "Motif :"} {
		value := valueAfter(t, doc, label)
		lbl, _ := doc.FindText(label)
		assert.Equal(t, layout.Placeholder, value.Logical, label)
		assert.Equal(t, lbl.Y, value.Y, label)
	}
	value := valueAfter(t, doc, "رقم البطاقة الوطنية :")
	assert.Equal(t, layout.Placeholder, value.Logical)
}

// Every optional field left out prints the placeholder in both columns of
// its row or table line.
func TestMissingOptional_AllKinds(t *testing.T) {
	r := registry(t)
	for _, kind := range []string{LeaveRequest, MissionOrder, SalaryDomiciliation} {
		tmpl, err := r.Lookup(kind)
		require.NoError(t, err)
		for _, f := range tmpl.Definition().Fields {
			if f.Required || f.Type == "image" {
				continue
			}
			t.Run(kind+"/"+f.Name, func(t *testing.T) {
				data := completeForms()[kind]
				delete(data, f.Name)
				doc, _ := draw(t, kind, data)

				label, ok := doc.FindText(f.Label.Latin + " :")
				if !ok {
					label, ok = doc.FindText(f.Label.Latin)
				}
				require.True(t, ok, "label %q drawn", f.Label.Latin)

				var placeholders int
				for _, op := range doc.TextOps() {
					if op.Y == label.Y && op.Logical == layout.Placeholder {
						placeholders++
					}
				}
				assert.Equal(t, 2, placeholders)
			})
		}
	}
}

func signaturePNG(t *testing.T) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 60, 20))
	for x := 0; x < 60; x++ {
		img.Set(x, 10, color.Black)
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

func TestLeaveRequest_SignatureImage(t *testing.T) {
	tests := []struct {
		name         string
		signature    any
		placeholders int
		images       int
	}{
		{"absent", nil, 1, 0},
		{"undecodable", "not an image!", 1, 0},
		{"truncated png", base64.StdEncoding.EncodeToString([]byte("\x89PNG\r\n\x1a\n")), 1, 0},
		{"decoded", signaturePNG(t), 0, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := completeForms()[LeaveRequest]
			if tt.signature != nil {
				data["signature"] = tt.signature
			}
			doc, _ := draw(t, LeaveRequest, data)

			slot, ok := doc.FindText("Signature de l'intéressé(e)")
			require.True(t, ok)

			var placeholders, images int
			for _, op := range doc.Ops() {
				switch {
				case op.Kind == layout.OpImage:
					images++
				case op.Kind == layout.OpText && op.Logical == layout.Placeholder:
					assert.Greater(t, op.Y, slot.Y)
					placeholders++
				}
			}
			assert.Equal(t, tt.placeholders, placeholders)
			assert.Equal(t, tt.images, images)
		})
	}
}

func TestMissingRequired(t *testing.T) {
	r := registry(t)
	for kind, data := range completeForms() {
		tmpl, err := r.Lookup(kind)
		require.NoError(t, err)

		partial := make(map[string]any, len(data))
		for k, v := range data {
			partial[k] = v
		}
		delete(partial, "matricule")

		values, err := tmpl.Validate(partial)
		assert.Nil(t, values, kind)
		require.Error(t, err, kind)
		assert.True(t, types.IsCode(err, types.ErrValidation), kind)

		var de *types.DocError
		require.ErrorAs(t, err, &de)
		assert.Equal(t, "matricule", de.Field)
	}
}

func TestMissionOrder_DateRows(t *testing.T) {
	doc, _ := draw(t, MissionOrder, completeForms()[MissionOrder])

	start, ok := doc.FindText("Date de départ")
	require.True(t, ok)
	end, ok := doc.FindText("Date de retour")
	require.True(t, ok)
	assert.NotEqual(t, start.Y, end.Y)
	assert.InDelta(t, layout.TableRowHeight, math.Abs(end.Y-start.Y), 0.01)

	assert.Equal(t, "02/05/2024", valueAfter(t, doc, "Date de départ").Logical)
	assert.Equal(t, "04/05/2024", valueAfter(t, doc, "Date de retour").Logical)

	arabicEnd, ok := doc.FindText("تاريخ العودة")
	require.True(t, ok)
	assert.Equal(t, end.Y, arabicEnd.Y)

	var rects int
	for _, op := range doc.Ops() {
		if op.Kind == layout.OpRect {
			rects++
		}
	}
	assert.Equal(t, 1, rects)
}

func TestMissionOrder_StartAfterEnd(t *testing.T) {
	tmpl, err := registry(t).Lookup(MissionOrder)
	require.NoError(t, err)

	data := completeForms()[MissionOrder]
	data["startDate"], data["endDate"] = "2024-05-04", "2024-05-02"
	values, err := tmpl.Validate(data)
	assert.Nil(t, values)
	assert.True(t, types.IsCode(err, types.ErrValidation))
}

func TestLeaveRequest_Duration(t *testing.T) {
	doc, untranslated := draw(t, LeaveRequest, completeForms()[LeaveRequest])
	assert.Empty(t, untranslated)
	assert.Equal(t, "5 jour(s)", valueAfter(t, doc, "Durée :").Logical)
	assert.Equal(t, "عطلة سنوية", valueAfter(t, doc, "نوع العطلة :").Logical)
}

func TestWorkCertificate_HireDateInFuture(t *testing.T) {
	tmpl, err := registry(t).Lookup(WorkCertificate)
	require.NoError(t, err)
	values, err := tmpl.Validate(map[string]any{"fullName": "Ahmed Ali", "matricule": "1234", "hireDate": "2030-01-01"})
	require.NoError(t, err)
	assert.False(t, values.Has("hireDate"))

	doc, _ := draw(t, WorkCertificate, map[string]any{"fullName": "Ahmed Ali", "matricule": "1234", "hireDate": "2030-01-01"})
	assert.Equal(t, layout.Placeholder, valueAfter(t, doc, "Date de recrutement :").Logical)
	assert.Equal(t, layout.Placeholder, valueAfter(t, doc, "تاريخ التوظيف :").Logical)
}

func TestDraw_Untranslated(t *testing.T) {
	data := completeForms()[MissionOrder]
	data["purpose"] = "Inventaire du stock"
	_, untranslated := draw(t, MissionOrder, data)
	assert.Equal(t, []string{"Inventaire du stock"}, untranslated)
}

func TestDraw_ArabicCompanion(t *testing.T) {
	data := map[string]any{"fullName": "Ahmed Ali", "fullNameAr": "أحمد علي", "matricule": "1234"}
	doc, _ := draw(t, WorkCertificate, data)
	assert.Equal(t, "Ahmed Ali", valueAfter(t, doc, "Nom et prénom :").Logical)
	assert.Equal(t, "أحمد علي", valueAfter(t, doc, "الاسم الكامل :").Logical)
}

func TestDefinitionCheck(t *testing.T) {
	base := func() *Definition {
		return &Definition{
			Kind:     "x",
			Title:    Text{Latin: "X"},
			Filename: "x_{a}",
			Fields:   []FieldDef{{Name: "a", Type: "text"}, {Name: "d", Type: "date"}},
		}
	}
	assert.NoError(t, base().check())

	tests := []struct {
		name   string
		mutate func(d *Definition)
	}{
		{"unknown type", func(d *Definition) { d.Fields[0].Type = "colour" }},
		{"unknown row", func(d *Definition) { d.Blocks = []Block{{Rows: []string{"zz"}}} }},
		{"unknown token", func(d *Definition) { d.Filename = "x_{zz}" }},
		{"rule on text", func(d *Definition) { d.Rules = []RuleDef{{Kind: ruleNotFuture, Fields: []string{"a"}}} }},
		{"unknown rule", func(d *Definition) { d.Rules = []RuleDef{{Kind: "later", Fields: []string{"d"}}} }},
		{"short table", func(d *Definition) { d.Blocks = []Block{{Table: &TableDef{Headers: []string{"a"}}}} }},
		{"missing title", func(d *Definition) { d.Title = Text{} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := base()
			tt.mutate(d)
			assert.Error(t, d.check())
		})
	}
}

func TestExpand(t *testing.T) {
	assert.Equal(t, []string{"a", "org.name"}, tokens("x {a} y {org.name}"))
	got := expand("{a}-{b}-{", func(s string) string { return "<" + s + ">" })
	assert.Equal(t, "<a>-<b>-{", got)
}

func TestDaysBetween(t *testing.T) {
	d := func(s string) time.Time {
		v, err := time.Parse("2006-01-02", s)
		require.NoError(t, err)
		return v
	}
	assert.Equal(t, 1, daysBetween(d("2024-05-02"), d("2024-05-02")))
	assert.Equal(t, 31, daysBetween(d("2024-03-01"), d("2024-03-31")))
}
