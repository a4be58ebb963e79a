// ==============================================================================
// FORM SESSION HANDLER - internal/handler/forms.go
// ==============================================================================
// JSON endpoints that drive one onboarding wizard session: start or resume,
// field edits, step navigation, document images and submit.
// ==============================================================================

package handler

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"onboard/internal/domain"
	"onboard/internal/middleware"
	"onboard/internal/wizard"
	"onboard/pkg/errors"
	"onboard/pkg/logger"
	"onboard/pkg/validator"
)

// Sessions is the part of wizard.Manager the handler uses.
type Sessions interface {
	Start(ctx context.Context, req wizard.StartRequest) (*wizard.Controller, error)
	Get(id string) (*wizard.Controller, error)
}

type FormHandler struct {
	sessions      Sessions
	validator     *validator.Validator
	logger        logger.Logger
	maxUploadSize int64
	submitWrap    func(http.Handler) http.Handler
}

func NewFormHandler(sessions Sessions, val *validator.Validator, log logger.Logger, maxUploadSize int64) *FormHandler {
	return &FormHandler{
		sessions:      sessions,
		validator:     val,
		logger:        log,
		maxUploadSize: maxUploadSize,
	}
}

// WrapSubmit installs middleware, such as idempotent replay, on the submit
// endpoint only. Call it before RegisterRoutes.
func (h *FormHandler) WrapSubmit(mw func(http.Handler) http.Handler) *FormHandler {
	h.submitWrap = mw
	return h
}

// RegisterRoutes mounts the form endpoints on r.
func (h *FormHandler) RegisterRoutes(r *mux.Router) {
	var submit http.Handler = http.HandlerFunc(h.Submit)
	if h.submitWrap != nil {
		submit = h.submitWrap(submit)
	}

	r.HandleFunc("/forms/{distributorId}/sessions", h.StartSession).Methods(http.MethodPost)
	r.HandleFunc("/sessions", h.StartSession).Methods(http.MethodPost)
	r.HandleFunc("/sessions/{id}", h.GetSession).Methods(http.MethodGet)
	r.HandleFunc("/sessions/{id}/fields", h.SetField).Methods(http.MethodPatch)
	r.HandleFunc("/sessions/{id}/validate/{step}", h.ValidateStep).Methods(http.MethodPost)
	r.HandleFunc("/sessions/{id}/next", h.Next).Methods(http.MethodPost)
	r.HandleFunc("/sessions/{id}/previous", h.Previous).Methods(http.MethodPost)
	r.HandleFunc("/sessions/{id}/jump", h.Jump).Methods(http.MethodPost)
	r.HandleFunc("/sessions/{id}/images/{slot}", h.UploadImage).Methods(http.MethodPost)
	r.Handle("/sessions/{id}/submit", submit).Methods(http.MethodPost)
}

type startSessionRequest struct {
	SessionID string `json:"session_id" validate:"omitempty,uuid"`
}

type setFieldRequest struct {
	Path  string          `json:"path" validate:"required,field_path"`
	Value json.RawMessage `json:"value"`
}

type jumpRequest struct {
	Step int `json:"step" validate:"required,min=1,max=5"`
}

type uploadResponse struct {
	Slot     wizard.ImageSlot `json:"slot"`
	URL      string           `json:"url,omitempty"`
	Deferred bool             `json:"deferred"`
}

// StartSession resolves the distributor from the link and opens a session.
// The distributor comes from the path, or from ?distributorId= on /sessions;
// ?clientId= switches to edit mode.
func (h *FormHandler) StartSession(w http.ResponseWriter, r *http.Request) {
	var req startSessionRequest
	if err := decodeJSON(w, r, &req, true); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if errs := h.validator.ValidateStructured(&req); errs != nil {
		respondValidationErrors(w, http.StatusBadRequest, errs, nil)
		return
	}

	distributorID := mux.Vars(r)["distributorId"]
	if distributorID == "" {
		distributorID = r.URL.Query().Get("distributorId")
	}

	start := wizard.StartRequest{
		DistributorID: distributorID,
		ClientID:      r.URL.Query().Get("clientId"),
		SessionID:     req.SessionID,
	}
	if userID, ok := middleware.UserIDFromContext(r.Context()); ok {
		start.UserID = &userID
	}

	c, err := h.sessions.Start(r.Context(), start)
	if err != nil {
		h.handleError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, c.Snapshot())
}

func (h *FormHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	c, ok := h.session(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, c.Snapshot())
}

// SetField applies one {path, value} edit to the draft.
func (h *FormHandler) SetField(w http.ResponseWriter, r *http.Request) {
	c, ok := h.session(w, r)
	if !ok {
		return
	}
	var req setFieldRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if errs := h.validator.ValidateStructured(&req); errs != nil {
		respondValidationErrors(w, http.StatusBadRequest, errs, nil)
		return
	}

	u, err := wizard.ParseFieldUpdate(req.Path, req.Value)
	if err != nil {
		h.handleError(w, err)
		return
	}
	if err := c.SetField(r.Context(), u); err != nil {
		h.handleError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, c.Snapshot())
}

// ValidateStep reports the errors of a step without moving.
func (h *FormHandler) ValidateStep(w http.ResponseWriter, r *http.Request) {
	c, ok := h.session(w, r)
	if !ok {
		return
	}
	n, err := strconv.Atoi(mux.Vars(r)["step"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid step")
		return
	}
	valid, err := c.ValidateStep(wizard.Step(n))
	if err != nil {
		h.handleError(w, err)
		return
	}
	snap := c.Snapshot()
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"valid":  valid,
		"errors": snap.Errors,
	})
}

// Next advances past the current step; on the review step it submits.
func (h *FormHandler) Next(w http.ResponseWriter, r *http.Request) {
	c, ok := h.session(w, r)
	if !ok {
		return
	}
	snap, err := c.Advance(r.Context())
	if err != nil {
		h.handleStepError(w, err, snap)
		return
	}
	respondJSON(w, http.StatusOK, snap)
}

func (h *FormHandler) Previous(w http.ResponseWriter, r *http.Request) {
	c, ok := h.session(w, r)
	if !ok {
		return
	}
	snap, err := c.Retreat()
	if err != nil {
		h.handleError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, snap)
}

func (h *FormHandler) Jump(w http.ResponseWriter, r *http.Request) {
	c, ok := h.session(w, r)
	if !ok {
		return
	}
	var req jumpRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if errs := h.validator.ValidateStructured(&req); errs != nil {
		respondValidationErrors(w, http.StatusBadRequest, errs, nil)
		return
	}
	snap, err := c.JumpToStep(wizard.Step(req.Step))
	if err != nil {
		h.handleError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, snap)
}

// UploadImage accepts one multipart "file". With ?defer=true the file is
// staged and uploaded at submit; otherwise it is uploaded now.
func (h *FormHandler) UploadImage(w http.ResponseWriter, r *http.Request) {
	c, ok := h.session(w, r)
	if !ok {
		return
	}
	slot, err := wizard.ParseImageSlot(mux.Vars(r)["slot"])
	if err != nil {
		h.handleError(w, err)
		return
	}

	file, err := h.readUpload(w, r)
	if err != nil {
		h.handleError(w, err)
		return
	}

	if deferred, _ := strconv.ParseBool(r.URL.Query().Get("defer")); deferred {
		if err := c.AttachImage(slot, file); err != nil {
			h.handleError(w, err)
			return
		}
		respondJSON(w, http.StatusAccepted, uploadResponse{Slot: slot, Deferred: true})
		return
	}

	url, err := c.UploadImage(r.Context(), slot, file)
	if err != nil {
		h.handleError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, uploadResponse{Slot: slot, URL: url})
}

func (h *FormHandler) Submit(w http.ResponseWriter, r *http.Request) {
	c, ok := h.session(w, r)
	if !ok {
		return
	}
	if _, err := c.Submit(r.Context()); err != nil {
		h.handleStepError(w, err, c.Snapshot())
		return
	}
	respondJSON(w, http.StatusOK, c.Snapshot())
}

func (h *FormHandler) session(w http.ResponseWriter, r *http.Request) (*wizard.Controller, bool) {
	c, err := h.sessions.Get(mux.Vars(r)["id"])
	if err != nil {
		h.handleError(w, err)
		return nil, false
	}
	return c, true
}

// readUpload reads the "file" part into memory. Oversized files are read one
// byte past the ceiling so the size check can reject them.
func (h *FormHandler) readUpload(w http.ResponseWriter, r *http.Request) (domain.ImageUpload, error) {
	limit := h.maxUploadSize + (1 << 20)
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := r.ParseMultipartForm(limit); err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) || strings.Contains(err.Error(), "request body too large") {
			return domain.ImageUpload{}, errors.ErrFileTooLarge
		}
		return domain.ImageUpload{}, errors.Wrap(errors.ErrInvalidField, "expected multipart form with a file field")
	}
	defer r.MultipartForm.RemoveAll()

	f, hdr, err := r.FormFile("file")
	if err != nil {
		return domain.ImageUpload{}, errors.Wrap(errors.ErrInvalidField, "'file' field is required")
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, h.maxUploadSize+1))
	if err != nil {
		return domain.ImageUpload{}, errors.Wrap(err, "failed to read upload")
	}
	return domain.ImageUpload{
		Filename:    hdr.Filename,
		ContentType: hdr.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}

// handleStepError reports failed step validation with the session state so the
// client can render the messages in place.
func (h *FormHandler) handleStepError(w http.ResponseWriter, err error, snap wizard.Snapshot) {
	var verr *wizard.ValidationError
	if errors.As(err, &verr) {
		respondValidationErrors(w, http.StatusUnprocessableEntity, verr.Fields, map[string]interface{}{
			"step":    verr.Step,
			"session": snap,
		})
		return
	}
	h.handleError(w, err)
}

func (h *FormHandler) handleError(w http.ResponseWriter, err error) {
	var rerr *wizard.ResolutionError
	if errors.As(err, &rerr) {
		status := http.StatusBadGateway
		switch rerr.Reason {
		case wizard.ReasonMissingID:
			status = http.StatusBadRequest
		case wizard.ReasonInvalidID:
			status = http.StatusNotFound
		}
		respondJSON(w, status, map[string]string{
			"error":    "Could not open the form",
			"reason":   rerr.Reason,
			"redirect": rerr.Redirect(),
		})
		return
	}

	var verr *wizard.ValidationError
	if errors.As(err, &verr) {
		respondValidationErrors(w, http.StatusUnprocessableEntity, verr.Fields, map[string]interface{}{"step": verr.Step})
		return
	}

	switch {
	case errors.Is(err, errors.ErrSessionNotFound):
		respondError(w, http.StatusNotFound, "Form session not found")
	case errors.Is(err, errors.ErrSubmitInProgress):
		respondError(w, http.StatusConflict, "Submission already in progress")
	case errors.Is(err, errors.ErrSessionCompleted):
		respondError(w, http.StatusConflict, "Form already submitted")
	case errors.Is(err, errors.ErrInvalidStep):
		respondError(w, http.StatusBadRequest, "Invalid step")
	case errors.Is(err, errors.ErrTooManyCards):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, errors.ErrInvalidField), errors.Is(err, errors.ErrInvalidImageSlot),
		errors.Is(err, errors.ErrEmptyFile):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, errors.ErrFileTooLarge):
		respondError(w, http.StatusRequestEntityTooLarge, "File too large")
	case errors.Is(err, errors.ErrFileTypeNotAllowed):
		respondError(w, http.StatusUnsupportedMediaType, "Only image files are accepted")
	case errors.Is(err, errors.ErrFileUploadFailed):
		respondError(w, http.StatusBadGateway, "Image upload failed, please try again")
	case errors.Is(err, errors.ErrCommitFailed):
		respondError(w, http.StatusBadGateway, "Could not save the form, please try again")
	default:
		h.logger.Error("Form request failed", map[string]interface{}{"error": err.Error()})
		respondError(w, http.StatusInternalServerError, "Internal server error")
	}
}

var _ Sessions = (*wizard.Manager)(nil)
