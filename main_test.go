package main

import (
	"os"
	"path/filepath"
	"testing"

	"hrdocs/internal/generator"
)

func TestDecodeRequest(t *testing.T) {
	t.Run("envelope", func(t *testing.T) {
		req, err := decodeRequest([]byte(`{"kind":"mission-order","data":{"matricule":"1234"}}`), "")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if req.Kind != "mission-order" || req.Data["matricule"] != "1234" {
			t.Errorf("unexpected request: %+v", req)
		}
	})

	t.Run("bare form with kind flag", func(t *testing.T) {
		req, err := decodeRequest([]byte(`{"fullName":"Ahmed Ali","matricule":"1234"}`), "work-certificate")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if req.Kind != "work-certificate" || req.Data["fullName"] != "Ahmed Ali" {
			t.Errorf("unexpected request: %+v", req)
		}
	})

	t.Run("form field named kind", func(t *testing.T) {
		req, err := decodeRequest([]byte(`{"kind":"annuel","matricule":"1234"}`), "leave-request")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if req.Kind != "leave-request" || req.Data["kind"] != "annuel" {
			t.Errorf("a form with a kind field is still a bare form: %+v", req)
		}
	})

	t.Run("bare form without kind", func(t *testing.T) {
		if _, err := decodeRequest([]byte(`{"matricule":"1234"}`), ""); err == nil {
			t.Error("expected an error without a kind")
		}
	})

	t.Run("invalid JSON", func(t *testing.T) {
		if _, err := decodeRequest([]byte(`{`), "work-certificate"); err == nil {
			t.Error("expected an error for invalid JSON")
		}
	})
}

func TestReadBatchList(t *testing.T) {
	dir := t.TempDir()
	list := filepath.Join(dir, "requests.txt")
	content := "# demandes de mai\nagent1.json\n\n  /abs/agent2.json  \n"
	if err := os.WriteFile(list, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	files, err := readBatchList(list)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	expected := []string{filepath.Join(dir, "agent1.json"), "/abs/agent2.json"}
	if len(files) != len(expected) {
		t.Fatalf("expected %d files, got %v", len(expected), files)
	}
	for i := range expected {
		if files[i] != expected[i] {
			t.Errorf("file %d: expected %s, got %s", i, expected[i], files[i])
		}
	}
}

func TestWriteArtifact_KeyedByReference(t *testing.T) {
	dir := t.TempDir()
	first := &generator.Result{Reference: "ref-1", SuggestedFilename: "attestation_de_travail.pdf", Bytes: []byte("%PDF-1 first")}
	second := &generator.Result{Reference: "ref-2", SuggestedFilename: "attestation_de_travail.pdf", Bytes: []byte("%PDF-1 second")}

	p1, err := writeArtifact(dir, first)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	p2, err := writeArtifact(dir, second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p1 != filepath.Join(dir, "ref-1", "attestation_de_travail.pdf") {
		t.Errorf("unexpected path %s", p1)
	}
	if p1 == p2 {
		t.Fatalf("two references written to %s", p1)
	}
	for path, want := range map[string]string{p1: "%PDF-1 first", p2: "%PDF-1 second"} {
		got, err := os.ReadFile(path)
		if err != nil {
			t.Fatal(err)
		}
		if string(got) != want {
			t.Errorf("%s: got %q, want %q", path, got, want)
		}
	}

	if _, err := writeArtifact(dir, &generator.Result{SuggestedFilename: "x.pdf"}); err == nil {
		t.Error("expected an error without a reference")
	}
}

func TestRunVerify_ReturnsExitCode(t *testing.T) {
	if code := runVerify(filepath.Join(t.TempDir(), "missing.pdf")); code != exitError {
		t.Errorf("missing file: exit code %d, want %d", code, exitError)
	}

	garbage := filepath.Join(t.TempDir(), "garbage.pdf")
	if err := os.WriteFile(garbage, []byte("not a pdf"), 0644); err != nil {
		t.Fatal(err)
	}
	if code := runVerify(garbage); code != exitError {
		t.Errorf("invalid PDF: exit code %d, want %d", code, exitError)
	}
}
