// Package results keeps the register of issued documents. Each document lives
// in its own directory, named after its reference, holding the PDF as issued and
// a metadata.json describing it.
package results

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"hrdocs/internal/types"
)

const (
	metadataFile = "metadata.json"
	documentFile = "document.pdf"
)

// DocumentStatus represents the state of an issued document
type DocumentStatus string

const (
	// StatusIssued indicates the document was generated and handed out
	StatusIssued DocumentStatus = "issued"
	// StatusArchived indicates a copy was also stored by the archive sink
	StatusArchived DocumentStatus = "archived"
	// StatusRevoked indicates the document must no longer be honoured
	StatusRevoked DocumentStatus = "revoked"
)

// DocumentInfo represents metadata about an issued document
type DocumentInfo struct {
	Reference    string         `json:"reference"`
	Kind         string         `json:"kind"`
	Filename     string         `json:"filename"`
	Matricule    string         `json:"matricule,omitempty"`
	IssuedAt     time.Time      `json:"issued_at"`
	Digest       string         `json:"digest"`
	PageCount    int            `json:"page_count"`
	Size         int            `json:"size"`
	Status       DocumentStatus `json:"status"`
	ArchivedAt   string         `json:"archived_at,omitempty"`
	Untranslated []string       `json:"untranslated,omitempty"`
	RevokedAt    *time.Time     `json:"revoked_at,omitempty"`
	RevokeReason string         `json:"revoke_reason,omitempty"`
}

// ResultManager manages the register stored on disk
type ResultManager struct {
	baseDir string
}

// NewResultManager creates a new ResultManager with the specified base directory.
// If baseDir is empty, uses ~/.config/hrdocs/register.
func NewResultManager(baseDir string) (*ResultManager, error) {
	if baseDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		baseDir = filepath.Join(homeDir, ".config", "hrdocs", "register")
	}

	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, err
	}

	return &ResultManager{baseDir: baseDir}, nil
}

// GetBaseDir returns the register directory
func (m *ResultManager) GetBaseDir() string {
	return m.baseDir
}

// GetDocumentDir returns the directory of one document
func (m *ResultManager) GetDocumentDir(reference string) string {
	return filepath.Join(m.baseDir, sanitizeReference(reference))
}

// GetPDFPath returns the path of the stored PDF
func (m *ResultManager) GetPDFPath(reference string) string {
	return filepath.Join(m.GetDocumentDir(reference), documentFile)
}

// Record stores a freshly issued document. Recording the same reference twice
// replaces the previous entry.
func (m *ResultManager) Record(info *DocumentInfo, data []byte) error {
	if info.Reference == "" {
		return types.NewDocError(types.ErrConfig, "document reference is empty", nil)
	}
	if info.Status == "" {
		info.Status = StatusIssued
		if info.ArchivedAt != "" {
			info.Status = StatusArchived
		}
	}
	if info.Size == 0 {
		info.Size = len(data)
	}
	if info.Digest == "" {
		info.Digest = digest(data)
	}

	dir := m.GetDocumentDir(info.Reference)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, documentFile), data, 0644); err != nil {
		return err
	}
	return m.saveInfo(info)
}

func (m *ResultManager) saveInfo(info *DocumentInfo) error {
	data, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(m.GetDocumentDir(info.Reference), metadataFile), data, 0644)
}

// Load loads the metadata of one document
func (m *ResultManager) Load(reference string) (*DocumentInfo, error) {
	data, err := os.ReadFile(filepath.Join(m.GetDocumentDir(reference), metadataFile))
	if err != nil {
		return nil, err
	}

	var info DocumentInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// ReadPDF returns the stored PDF of one document
func (m *ResultManager) ReadPDF(reference string) ([]byte, error) {
	return os.ReadFile(m.GetPDFPath(reference))
}

// List returns every registered document, newest first
func (m *ResultManager) List() ([]*DocumentInfo, error) {
	entries, err := os.ReadDir(m.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []*DocumentInfo{}, nil
		}
		return nil, err
	}

	docs := []*DocumentInfo{}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		info, err := m.Load(entry.Name())
		if err != nil {
			continue // directories without metadata are not documents
		}
		docs = append(docs, info)
	}

	sort.Slice(docs, func(i, j int) bool {
		if docs[i].IssuedAt.Equal(docs[j].IssuedAt) {
			return docs[i].Reference < docs[j].Reference
		}
		return docs[i].IssuedAt.After(docs[j].IssuedAt)
	})
	return docs, nil
}

// ListByMatricule returns the documents issued to one employee
func (m *ResultManager) ListByMatricule(matricule string) ([]*DocumentInfo, error) {
	docs, err := m.List()
	if err != nil {
		return nil, err
	}

	var out []*DocumentInfo
	for _, d := range docs {
		if d.Matricule == matricule {
			out = append(out, d)
		}
	}
	return out, nil
}

// Exists checks if a document with the given reference is registered
func (m *ResultManager) Exists(reference string) bool {
	_, err := os.Stat(filepath.Join(m.GetDocumentDir(reference), metadataFile))
	return err == nil
}

// Delete removes a document and its stored PDF
func (m *ResultManager) Delete(reference string) error {
	return os.RemoveAll(m.GetDocumentDir(reference))
}

// Revoke marks a document as no longer valid. The PDF is kept.
func (m *ResultManager) Revoke(reference, reason string, at time.Time) error {
	info, err := m.Load(reference)
	if err != nil {
		return err
	}
	info.Status = StatusRevoked
	info.RevokedAt = &at
	info.RevokeReason = reason
	return m.saveInfo(info)
}

// FindByDigest finds the document whose PDF has the given SHA-256 digest.
// It returns nil, nil when no document matches.
func (m *ResultManager) FindByDigest(hexDigest string) (*DocumentInfo, error) {
	docs, err := m.List()
	if err != nil {
		return nil, err
	}

	hexDigest = strings.ToLower(hexDigest)
	for _, d := range docs {
		if d.Digest == hexDigest {
			return d, nil
		}
	}
	return nil, nil
}

// Verify checks that the stored PDF still matches the recorded digest and that
// the document has not been revoked.
func (m *ResultManager) Verify(reference string) (*DocumentInfo, error) {
	info, err := m.Load(reference)
	if err != nil {
		return nil, err
	}

	sum, err := CalculateFileDigest(m.GetPDFPath(reference))
	if err != nil {
		return info, err
	}
	if sum != info.Digest {
		return info, types.NewDocErrorWithDetails(types.ErrEncoding,
			"stored document does not match its digest",
			fmt.Sprintf("recorded %s, found %s", info.Digest, sum), nil)
	}
	if info.Status == StatusRevoked {
		return info, types.NewDocErrorWithDetails(types.ErrValidation,
			"document has been revoked", info.RevokeReason, nil)
	}
	return info, nil
}

// CalculateFileDigest calculates the SHA-256 digest of a file
func CalculateFileDigest(filePath string) (string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return "", err
	}
	defer file.Close()

	hash := sha256.New()
	if _, err := io.Copy(hash, file); err != nil {
		return "", err
	}
	return hex.EncodeToString(hash.Sum(nil)), nil
}

func digest(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// sanitizeReference converts a reference to a safe directory name
func sanitizeReference(reference string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '_'
	}, reference)
}
