// Package server exposes document generation over HTTP for the request portal.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	failures "hrdocs/internal/errors"
	"hrdocs/internal/generator"
	"hrdocs/internal/logger"
	"hrdocs/internal/results"
	"hrdocs/internal/types"
)

const (
	maxBodyBytes   = 10 << 20
	requestTimeout = 30 * time.Second
	pdfContentType = "application/pdf"
)

// Generator is what the handler needs from the engine.
type Generator interface {
	Generate(ctx context.Context, kind string, data map[string]any) (*generator.Result, error)
	Kinds() []string
}

// APIResponse is the envelope of every JSON response.
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *APIError   `json:"error,omitempty"`
}

// APIError is the error part of a response.
type APIError struct {
	Code    string   `json:"code"`
	Message string   `json:"message"`
	Field   string   `json:"field,omitempty"`
	Fields  []string `json:"fields,omitempty"`
}

// DocumentResponse is the body of a successful generation.
type DocumentResponse struct {
	Filename     string   `json:"filename"`
	Content      string   `json:"content"` // base64 PDF
	Pages        int      `json:"pages"`
	Reference    string   `json:"reference"`
	Untranslated []string `json:"untranslated,omitempty"`
}

// Server routes HTTP requests to the generator.
type Server struct {
	gen      Generator
	journal  *failures.ErrorManager
	register *results.ResultManager
	mux      *http.ServeMux
}

// Option configures a Server.
type Option func(*Server)

// WithRegister serves lookups in the register of issued documents.
func WithRegister(r *results.ResultManager) Option {
	return func(s *Server) { s.register = r }
}

// New creates the handler. journal may be nil.
func New(gen Generator, journal *failures.ErrorManager, opts ...Option) *Server {
	s := &Server{gen: gen, journal: journal, mux: http.NewServeMux()}
	for _, opt := range opts {
		opt(s)
	}
	s.mux.HandleFunc("POST /api/documents/{kind}", s.handleGenerate)
	s.mux.HandleFunc("GET /api/documents", s.handleKinds)
	s.mux.HandleFunc("GET /api/register", s.handleRegisterList)
	s.mux.HandleFunc("GET /api/register/{reference}", s.handleRegisterGet)
	s.mux.HandleFunc("GET /api/register/{reference}/pdf", s.handleRegisterPDF)
	s.mux.HandleFunc("GET /api/register/{reference}/verify", s.handleRegisterVerify)
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	return s
}

// Handler returns the routed handler wrapped in the middleware chain.
func (s *Server) Handler() http.Handler {
	return RecoveryMiddleware(RequestIDMiddleware(LoggingMiddleware(s.mux)))
}

// ListenAndServe serves on addr until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", logger.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleKinds(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string][]string{"kinds": s.gen.Kinds()})
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	kind := r.PathValue("kind")

	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	var data map[string]any
	if err := ReadJSON(r, &data); err != nil {
		WriteError(w, http.StatusBadRequest, &APIError{Code: "invalid_body", Message: "request body must be a JSON object"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	res, err := s.gen.Generate(ctx, kind, data)
	if err != nil {
		s.fail(w, r, kind, err)
		return
	}

	if acceptsPDF(r) {
		w.Header().Set("Content-Type", pdfContentType)
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", res.SuggestedFilename))
		w.Header().Set("Content-Length", strconv.Itoa(len(res.Bytes)))
		w.Header().Set("X-Document-Reference", res.Reference)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(res.Bytes)
		return
	}

	WriteJSON(w, http.StatusOK, DocumentResponse{
		Filename:     res.SuggestedFilename,
		Content:      res.PortableText,
		Pages:        res.PageCount,
		Reference:    res.Reference,
		Untranslated: res.Untranslated,
	})
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, kind string, err error) {
	status := statusOf(err)
	apiErr := &APIError{Code: string(types.CodeOf(err)), Message: err.Error()}

	var de *types.DocError
	if errors.As(err, &de) {
		apiErr.Message = de.Message
		apiErr.Field = de.Field
		if de.Code == types.ErrValidation {
			apiErr.Fields = fieldsOf(de)
		}
	}
	if apiErr.Code == "" {
		apiErr.Code = "internal_error"
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			apiErr.Code = "cancelled"
		}
	}

	if s.journal != nil && status >= http.StatusInternalServerError {
		if jerr := s.journal.RecordError(kind, w.Header().Get(RequestIDHeader), err); jerr != nil {
			logger.Warn("failure journal not updated", logger.Err(jerr))
		}
	}
	WriteError(w, status, apiErr)
}

// statusOf maps an engine error to an HTTP status.
func statusOf(err error) int {
	switch types.CodeOf(err) {
	case types.ErrValidation, types.ErrLayoutOverflow:
		return http.StatusUnprocessableEntity
	case types.ErrUnknownKind:
		return http.StatusNotFound
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

// fieldsOf lists the fields named by a joined validation error.
func fieldsOf(de *types.DocError) []string {
	var fields []string
	if joined, ok := de.Cause.(interface{ Unwrap() []error }); ok {
		for _, e := range joined.Unwrap() {
			var fe *types.DocError
			if errors.As(e, &fe) && fe.Field != "" {
				fields = append(fields, fe.Field)
			}
		}
	}
	if len(fields) == 0 && de.Field != "" {
		fields = append(fields, de.Field)
	}
	return fields
}

func acceptsPDF(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), pdfContentType)
}

// WriteJSON writes a successful JSON response.
func WriteJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(APIResponse{Success: status >= 200 && status < 300, Data: data})
}

// WriteError writes a JSON error response.
func WriteError(w http.ResponseWriter, status int, apiErr *APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(APIResponse{Success: false, Error: apiErr})
}

// ReadJSON decodes the request body into target.
func ReadJSON(r *http.Request, target interface{}) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(target)
}

// RequestIDHeader carries the request identifier.
const RequestIDHeader = "X-Request-ID"

// RecoveryMiddleware turns a panic into a 500 response.
func RecoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				logger.Error("handler panic", fmt.Errorf("%v", rec), logger.String("stack", string(debug.Stack())))
				WriteError(w, http.StatusInternalServerError, &APIError{Code: "internal_error", Message: "an unexpected error occurred"})
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// RequestIDMiddleware keeps the caller's request ID or assigns a new one.
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r)
	})
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
	written    int64
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.written += int64(n)
	return n, err
}

// LoggingMiddleware logs one line per request.
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r)
		logger.Info("http request",
			logger.String("method", r.Method),
			logger.String("path", r.URL.Path),
			logger.Int("status", wrapped.statusCode),
			logger.Int64("bytes", wrapped.written),
			logger.Int64("elapsed_ms", time.Since(start).Milliseconds()),
			logger.String("request_id", w.Header().Get(RequestIDHeader)))
	})
}
