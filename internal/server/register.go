package server

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"

	"hrdocs/internal/logger"
	"hrdocs/internal/results"
	"hrdocs/internal/types"
)

// VerifyResponse is the body of a register verification.
type VerifyResponse struct {
	Valid    bool                  `json:"valid"`
	Reason   string                `json:"reason,omitempty"`
	Document *results.DocumentInfo `json:"document"`
}

// registered checks the register is enabled and the reference known. It writes
// the error response itself and returns false when the handler should stop.
func (s *Server) registered(w http.ResponseWriter, r *http.Request) (string, bool) {
	if s.register == nil {
		WriteError(w, http.StatusNotFound, &APIError{Code: "register_disabled", Message: "the document register is not enabled"})
		return "", false
	}
	ref := r.PathValue("reference")
	if !s.register.Exists(ref) {
		WriteError(w, http.StatusNotFound, &APIError{Code: "unknown_reference", Message: "no document with this reference"})
		return "", false
	}
	return ref, true
}

func (s *Server) handleRegisterList(w http.ResponseWriter, r *http.Request) {
	if s.register == nil {
		WriteError(w, http.StatusNotFound, &APIError{Code: "register_disabled", Message: "the document register is not enabled"})
		return
	}

	var (
		docs []*results.DocumentInfo
		err  error
	)
	if matricule := r.URL.Query().Get("matricule"); matricule != "" {
		docs, err = s.register.ListByMatricule(matricule)
	} else {
		docs, err = s.register.List()
	}
	if err != nil {
		logger.Error("register listing failed", err)
		WriteError(w, http.StatusInternalServerError, &APIError{Code: "internal_error", Message: err.Error()})
		return
	}
	if docs == nil {
		docs = []*results.DocumentInfo{}
	}
	WriteJSON(w, http.StatusOK, docs)
}

func (s *Server) handleRegisterGet(w http.ResponseWriter, r *http.Request) {
	ref, ok := s.registered(w, r)
	if !ok {
		return
	}
	info, err := s.register.Load(ref)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, &APIError{Code: "internal_error", Message: err.Error()})
		return
	}
	WriteJSON(w, http.StatusOK, info)
}

func (s *Server) handleRegisterPDF(w http.ResponseWriter, r *http.Request) {
	ref, ok := s.registered(w, r)
	if !ok {
		return
	}
	info, err := s.register.Load(ref)
	if err == nil {
		var data []byte
		if data, err = s.register.ReadPDF(ref); err == nil {
			w.Header().Set("Content-Type", pdfContentType)
			w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", info.Filename))
			w.Header().Set("Content-Length", strconv.Itoa(len(data)))
			w.Header().Set("X-Document-Reference", info.Reference)
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write(data)
			return
		}
	}
	status := http.StatusInternalServerError
	if errors.Is(err, os.ErrNotExist) {
		status = http.StatusNotFound
	}
	WriteError(w, status, &APIError{Code: "internal_error", Message: err.Error()})
}

func (s *Server) handleRegisterVerify(w http.ResponseWriter, r *http.Request) {
	ref, ok := s.registered(w, r)
	if !ok {
		return
	}

	info, err := s.register.Verify(ref)
	resp := VerifyResponse{Valid: err == nil, Document: info}
	if err != nil {
		var de *types.DocError
		if !errors.As(err, &de) {
			logger.Error("register verification failed", err, logger.String("reference", ref))
			WriteError(w, http.StatusInternalServerError, &APIError{Code: "internal_error", Message: err.Error()})
			return
		}
		resp.Reason = de.Error()
	}
	WriteJSON(w, http.StatusOK, resp)
}
