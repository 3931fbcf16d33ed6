// Package errors keeps the failure journal: documents that failed to build in a
// batch, CLI or HTTP run, recorded per stage so they can be retried.
package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"hrdocs/internal/types"
)

// JournalFileName is the journal file inside the journal directory.
const JournalFileName = "errors.json"

// ErrorStage is where a build failed.
type ErrorStage string

const (
	StageValidation ErrorStage = "validation" // form rejected
	StageFont       ErrorStage = "font"       // font could not be loaded or registered
	StageLayout     ErrorStage = "layout"     // content did not fit
	StageEncoding   ErrorStage = "encoding"   // PDF serialization or validation
	StageArchive    ErrorStage = "archive"    // copy to the archive sink
	StageUnknown    ErrorStage = "unknown"
)

// StageOf maps an engine error to its stage.
func StageOf(err error) ErrorStage {
	switch types.CodeOf(err) {
	case types.ErrValidation, types.ErrUnknownKind:
		return StageValidation
	case types.ErrFontRegistration, types.ErrConfig:
		return StageFont
	case types.ErrLayoutOverflow:
		return StageLayout
	case types.ErrEncoding, types.ErrFinalized:
		return StageEncoding
	case types.ErrArchive:
		return StageArchive
	}
	return StageUnknown
}

// ErrorRecord is one failed build.
type ErrorRecord struct {
	ID         string          `json:"id"`    // kind and input, unique per document
	Kind       string          `json:"kind"`  // document kind
	Input      string          `json:"input"` // data file or request reference
	Stage      ErrorStage      `json:"stage"`
	Code       types.ErrorCode `json:"code,omitempty"`
	Field      string          `json:"field,omitempty"`
	ErrorMsg   string          `json:"error_msg"`
	Timestamp  time.Time       `json:"timestamp"`
	CanRetry   bool            `json:"can_retry"` // false when the input itself must change
	RetryCount int             `json:"retry_count"`
	LastRetry  time.Time       `json:"last_retry"`
}

// RecordID builds the journal key of a document.
func RecordID(kind, input string) string {
	return kind + ":" + input
}

// ErrorManager is the failure journal. It is safe for concurrent use.
type ErrorManager struct {
	baseDir string
	mu      sync.RWMutex
	errors  map[string]*ErrorRecord
	now     func() time.Time
}

// NewErrorManager opens the journal in baseDir, creating it if needed. An empty
// baseDir selects ~/.config/hrdocs/errors.
func NewErrorManager(baseDir string) (*ErrorManager, error) {
	if baseDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		baseDir = filepath.Join(homeDir, ".config", "hrdocs", "errors")
	}

	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create errors directory: %w", err)
	}

	em := &ErrorManager{
		baseDir: baseDir,
		errors:  make(map[string]*ErrorRecord),
		now:     time.Now,
	}
	if err := em.load(); err != nil {
		return nil, err
	}
	return em, nil
}

// RecordError journals a failed build of kind from input.
func (em *ErrorManager) RecordError(kind, input string, cause error) error {
	if cause == nil {
		return nil
	}

	em.mu.Lock()
	defer em.mu.Unlock()

	id := RecordID(kind, input)
	record := &ErrorRecord{
		ID:        id,
		Kind:      kind,
		Input:     input,
		Stage:     StageOf(cause),
		Code:      types.CodeOf(cause),
		ErrorMsg:  cause.Error(),
		Timestamp: em.now(),
		CanRetry:  retryable(cause),
	}
	var de *types.DocError
	if stderrors.As(cause, &de) {
		record.Field = de.Field
	}

	if existing, ok := em.errors[id]; ok {
		record.RetryCount = existing.RetryCount
		record.LastRetry = existing.LastRetry
	}
	em.errors[id] = record

	return em.save()
}

// retryable reports whether running the same input again may succeed.
func retryable(err error) bool {
	switch types.CodeOf(err) {
	case types.ErrValidation, types.ErrUnknownKind, types.ErrLayoutOverflow:
		return false
	}
	return true
}

// IncrementRetry counts one more attempt for id.
func (em *ErrorManager) IncrementRetry(id string) error {
	em.mu.Lock()
	defer em.mu.Unlock()

	if record, ok := em.errors[id]; ok {
		record.RetryCount++
		record.LastRetry = em.now()
		return em.save()
	}
	return fmt.Errorf("error record not found: %s", id)
}

// RemoveError drops id from the journal after a successful build.
func (em *ErrorManager) RemoveError(id string) error {
	em.mu.Lock()
	defer em.mu.Unlock()

	if _, ok := em.errors[id]; !ok {
		return nil
	}
	delete(em.errors, id)
	return em.save()
}

// ListErrors returns copies of every record ordered by ID.
func (em *ErrorManager) ListErrors() []*ErrorRecord {
	return em.list(func(*ErrorRecord) bool { return true })
}

// ListRetryable returns the records whose input may be retried unchanged.
func (em *ErrorManager) ListRetryable() []*ErrorRecord {
	return em.list(func(r *ErrorRecord) bool { return r.CanRetry })
}

func (em *ErrorManager) list(keep func(*ErrorRecord) bool) []*ErrorRecord {
	em.mu.RLock()
	defer em.mu.RUnlock()

	records := make([]*ErrorRecord, 0, len(em.errors))
	for _, record := range em.errors {
		if keep(record) {
			recordCopy := *record
			records = append(records, &recordCopy)
		}
	}
	sort.Slice(records, func(i, j int) bool { return records[i].ID < records[j].ID })
	return records
}

// GetError returns a copy of the record of id.
func (em *ErrorManager) GetError(id string) (*ErrorRecord, bool) {
	em.mu.RLock()
	defer em.mu.RUnlock()

	record, ok := em.errors[id]
	if !ok {
		return nil, false
	}
	recordCopy := *record
	return &recordCopy, true
}

// ClearAll empties the journal.
func (em *ErrorManager) ClearAll() error {
	em.mu.Lock()
	defer em.mu.Unlock()

	em.errors = make(map[string]*ErrorRecord)
	return em.save()
}

// Path returns the journal file path.
func (em *ErrorManager) Path() string {
	return filepath.Join(em.baseDir, JournalFileName)
}

func (em *ErrorManager) load() error {
	data, err := os.ReadFile(em.Path())
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read errors file: %w", err)
	}

	var records []*ErrorRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return fmt.Errorf("failed to unmarshal errors: %w", err)
	}
	for _, record := range records {
		em.errors[record.ID] = record
	}
	return nil
}

func (em *ErrorManager) save() error {
	records := make([]*ErrorRecord, 0, len(em.errors))
	for _, record := range em.errors {
		records = append(records, record)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].ID < records[j].ID })

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal errors: %w", err)
	}
	if err := os.WriteFile(em.Path(), data, 0644); err != nil {
		return fmt.Errorf("failed to write errors file: %w", err)
	}
	return nil
}

// ExportRetryInputs writes the inputs of retryable records to outputPath, one
// per line, so they can be fed back to a batch run.
func (em *ErrorManager) ExportRetryInputs(outputPath string) error {
	var sb strings.Builder
	seen := make(map[string]bool)
	for _, record := range em.ListRetryable() {
		if seen[record.Input] {
			continue
		}
		seen[record.Input] = true
		sb.WriteString(record.Input)
		sb.WriteByte('\n')
	}

	if err := os.WriteFile(outputPath, []byte(sb.String()), 0644); err != nil {
		return fmt.Errorf("failed to write retry inputs file: %w", err)
	}
	return nil
}

// GetStageDisplayName returns the French name of a stage.
func GetStageDisplayName(stage ErrorStage) string {
	switch stage {
	case StageValidation:
		return "Validation du formulaire"
	case StageFont:
		return "Chargement de la police"
	case StageLayout:
		return "Mise en page"
	case StageEncoding:
		return "Encodage PDF"
	case StageArchive:
		return "Archivage"
	default:
		return string(stage)
	}
}
