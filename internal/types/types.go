// Package types defines the configuration and error types shared by the document engine.
package types

import "errors"

// Config holds the engine configuration persisted as JSON.
type Config struct {
	FontPath          string        `json:"font_path"`          // Arabic-capable TrueType font
	RequiredRunes     string        `json:"required_runes"`     // runes the font must cover, empty disables the check
	LogoPath          string        `json:"logo_path"`          // organization logo, optional
	OutputDirectory   string        `json:"output_directory"`
	Concurrency       int           `json:"concurrency"`        // parallel builds for batch generation
	ListenAddress     string        `json:"listen_address"`
	JournalDirectory  string        `json:"journal_directory"`  // failure journal location
	RegisterDirectory string        `json:"register_directory"` // issued documents register, empty disables it
	LogFilePath       string        `json:"log_file_path"`
	LogLevel          string        `json:"log_level"`
	Organization      Organization  `json:"organization"`
	Archive           ArchiveConfig `json:"archive"`
}

// Organization is the issuing body printed in headers, boilerplate and footers.
type Organization struct {
	NameLatin       string   `json:"name_latin"`
	NameArabic      string   `json:"name_arabic"`
	CityLatin       string   `json:"city_latin"`
	CityArabic      string   `json:"city_arabic"`
	SignatoryLatin  string   `json:"signatory_latin"`
	SignatoryArabic string   `json:"signatory_arabic"`
	AddressLatin    []string `json:"address_latin"`
	AddressArabic   []string `json:"address_arabic"`
}

// ArchiveConfig selects where finished artifacts are copied.
type ArchiveConfig struct {
	Kind      string `json:"kind"` // "", "dir" or "gcs"
	Directory string `json:"directory"`
	Bucket    string `json:"bucket"`
	Prefix    string `json:"prefix"`
}

// ErrorCode identifies a class of engine failure.
type ErrorCode string

const (
	ErrAssetLoad        ErrorCode = "ASSET_LOAD_ERROR"
	ErrFontRegistration ErrorCode = "FONT_REGISTRATION_ERROR"
	ErrValidation       ErrorCode = "VALIDATION_ERROR"
	ErrLayoutOverflow   ErrorCode = "LAYOUT_OVERFLOW"
	ErrEncoding         ErrorCode = "ENCODING_ERROR"
	ErrFinalized        ErrorCode = "DOCUMENT_FINALIZED"
	ErrUnknownKind      ErrorCode = "UNKNOWN_DOCUMENT_KIND"
	ErrConfig           ErrorCode = "CONFIG_ERROR"
	ErrArchive          ErrorCode = "ARCHIVE_ERROR"
)

// DocError is the error returned by every stage of a document build.
type DocError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Details string    `json:"details,omitempty"`
	Field   string    `json:"field,omitempty"`
	Cause   error     `json:"-"`
}

// Error implements the error interface for DocError
func (e *DocError) Error() string {
	msg := e.Message
	if e.Field != "" {
		msg = e.Field + ": " + msg
	}
	if e.Details != "" {
		msg += ": " + e.Details
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap returns the underlying cause of the error
func (e *DocError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is a DocError carrying the same code.
func (e *DocError) Is(target error) bool {
	t, ok := target.(*DocError)
	if !ok {
		return false
	}
	if t.Code != e.Code {
		return false
	}
	return t.Message == "" || t.Message == e.Message
}

// Fatal reports whether the error must abort the build. Logo loading and
// archiving happen around a valid document and are recovered locally.
func (e *DocError) Fatal() bool {
	return e.Code != ErrAssetLoad && e.Code != ErrArchive
}

// NewDocError creates a new DocError with the given code, message, and optional cause
func NewDocError(code ErrorCode, message string, cause error) *DocError {
	return &DocError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// NewDocErrorWithDetails creates a new DocError with details
func NewDocErrorWithDetails(code ErrorCode, message, details string, cause error) *DocError {
	return &DocError{
		Code:    code,
		Message: message,
		Details: details,
		Cause:   cause,
	}
}

// NewFieldError creates a validation DocError bound to a form field.
func NewFieldError(field, message string) *DocError {
	return &DocError{
		Code:    ErrValidation,
		Message: message,
		Field:   field,
	}
}

// Code sentinels for errors.Is.
var (
	ErrAssetLoadSentinel        = &DocError{Code: ErrAssetLoad}
	ErrFontRegistrationSentinel = &DocError{Code: ErrFontRegistration}
	ErrValidationSentinel       = &DocError{Code: ErrValidation}
	ErrLayoutOverflowSentinel   = &DocError{Code: ErrLayoutOverflow}
	ErrEncodingSentinel         = &DocError{Code: ErrEncoding}
	ErrFinalizedSentinel        = &DocError{Code: ErrFinalized}
)

// CodeOf extracts the ErrorCode from err, or "" when err is not a DocError.
func CodeOf(err error) ErrorCode {
	var de *DocError
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

// IsCode reports whether err (or anything it wraps) is a DocError with the given code.
func IsCode(err error, code ErrorCode) bool {
	return CodeOf(err) == code
}
