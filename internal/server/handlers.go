package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/rescale/credvend/internal/catalog"
	"github.com/rescale/credvend/internal/cloud"
	"github.com/rescale/credvend/internal/constants"
	"github.com/rescale/credvend/internal/logging"
	"github.com/rescale/credvend/internal/models"
)

// CredentialVendor is the entry point the handlers call after resolving ids.
type CredentialVendor interface {
	VendCredentialForTable(ctx context.Context, table *models.TableInfo, operation string) (*models.GenerateTemporaryTableCredentialResponse, error)
	VendCredentialForVolume(ctx context.Context, volume *models.VolumeInfo, operation string) (*models.GenerateTemporaryVolumeCredentialResponse, error)
}

// Handler serves the credential endpoints.
type Handler struct {
	catalog catalog.Lookup
	vendor  CredentialVendor
	logger  *logging.Logger
}

// NewHandler creates a Handler.
func NewHandler(lookup catalog.Lookup, vendor CredentialVendor, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Handler{catalog: lookup, vendor: vendor, logger: logger}
}

func (h *Handler) generateTableCredential(w http.ResponseWriter, r *http.Request) {
	var req models.GenerateTemporaryTableCredential
	if !h.decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.TableID) == "" {
		writeError(w, http.StatusBadRequest, "INVALID_ARGUMENT", "table_id is required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), constants.ProviderCallTimeout)
	defer cancel()

	table, err := h.catalog.GetTable(ctx, req.TableID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	resp, err := h.vendor.VendCredentialForTable(ctx, table, req.Operation)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) generateVolumeCredential(w http.ResponseWriter, r *http.Request) {
	var req models.GenerateTemporaryVolumeCredential
	if !h.decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.VolumeID) == "" {
		writeError(w, http.StatusBadRequest, "INVALID_ARGUMENT", "volume_id is required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), constants.ProviderCallTimeout)
	defer cancel()

	volume, err := h.catalog.GetVolume(ctx, req.VolumeID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	resp, err := h.vendor.VendCredentialForVolume(ctx, volume, req.Operation)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeError(w, http.StatusRequestEntityTooLarge, "INVALID_ARGUMENT", "request body too large")
			return false
		}
		writeError(w, http.StatusBadRequest, "INVALID_ARGUMENT", fmt.Sprintf("invalid request body: %v", err))
		return false
	}
	return true
}

// fail maps err onto the catalog error body. Untyped errors are internal
// and their text is not exposed.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code, message := mapError(err)

	event := h.logger.Warn()
	if status >= http.StatusInternalServerError {
		event = h.logger.Error().Str("failure", cloud.FailureClass(err))
	}
	event.Str("request_id", requestIDFromContext(r.Context())).
		Str("path", r.URL.Path).
		Str("error_code", code).
		Err(err).
		Msg("credential request failed")

	writeError(w, status, code, message)
}

func mapError(err error) (status int, code, message string) {
	var ve *cloud.VendError
	if !errors.As(err, &ve) {
		return http.StatusInternalServerError, "INTERNAL", "internal error"
	}
	code = ve.ErrorCode()
	switch code {
	case "NOT_FOUND":
		status = http.StatusNotFound
	case "FAILED_PRECONDITION", "INVALID_ARGUMENT":
		status = http.StatusBadRequest
	default:
		status = http.StatusInternalServerError
	}
	return status, code, ve.Message()
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, models.ErrorResponse{ErrorCode: code, Message: message})
}
