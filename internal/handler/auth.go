package handler

import (
	"net/http"

	"github.com/gorilla/mux"

	"onboard/internal/identity"
	"onboard/internal/middleware"
	"onboard/pkg/errors"
	"onboard/pkg/logger"
	"onboard/pkg/validator"
)

// AuthHandler handles authentication endpoints.
type AuthHandler struct {
	service   *identity.Service
	validator *validator.Validator
	logger    logger.Logger
}

func NewAuthHandler(service *identity.Service, val *validator.Validator, log logger.Logger) *AuthHandler {
	return &AuthHandler{
		service:   service,
		validator: val,
		logger:    log,
	}
}

// RegisterRoutes mounts the public auth endpoints on r and the signed-in ones
// behind authMW.
func (h *AuthHandler) RegisterRoutes(r *mux.Router, authMW *middleware.AuthMiddleware) {
	r.HandleFunc("/auth/signup", h.Signup).Methods(http.MethodPost)
	r.HandleFunc("/auth/login", h.Login).Methods(http.MethodPost)
	r.HandleFunc("/auth/google", h.Google).Methods(http.MethodPost)
	r.Handle("/auth/me", authMW.Authenticate(http.HandlerFunc(h.Me))).Methods(http.MethodGet)
	r.Handle("/auth/logout", authMW.Authenticate(http.HandlerFunc(h.Logout))).Methods(http.MethodPost)
}

func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req identity.SignupRequest
	if !h.decode(w, r, &req) {
		return
	}

	session, err := h.service.Signup(r.Context(), &req)
	if err != nil {
		if errors.Is(err, errors.ErrUserAlreadyExists) {
			respondError(w, http.StatusConflict, "User already exists")
			return
		}
		h.logger.Error("Signup failed", map[string]interface{}{"error": err.Error()})
		respondError(w, http.StatusInternalServerError, "Signup failed")
		return
	}
	respondJSON(w, http.StatusCreated, session)
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req identity.LoginRequest
	if !h.decode(w, r, &req) {
		return
	}

	session, err := h.service.Login(r.Context(), &req)
	if err != nil {
		if !errors.Is(err, errors.ErrInvalidCredentials) {
			h.logger.Error("Login failed", map[string]interface{}{"error": err.Error()})
		}
		respondError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}
	respondJSON(w, http.StatusOK, session)
}

func (h *AuthHandler) Google(w http.ResponseWriter, r *http.Request) {
	var req identity.GoogleRequest
	if !h.decode(w, r, &req) {
		return
	}

	session, err := h.service.GoogleSignIn(r.Context(), &req)
	if err != nil {
		if errors.Is(err, errors.ErrInvalidToken) {
			respondError(w, http.StatusUnauthorized, "Google sign-in failed")
			return
		}
		h.logger.Error("Google sign-in failed", map[string]interface{}{"error": err.Error()})
		respondError(w, http.StatusInternalServerError, "Google sign-in failed")
		return
	}
	respondJSON(w, http.StatusOK, session)
}

func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	user, err := h.service.Me(r.Context(), userID)
	if err != nil {
		if errors.Is(err, errors.ErrUserNotFound) {
			respondError(w, http.StatusNotFound, "User not found")
			return
		}
		h.logger.Error("Profile lookup failed", map[string]interface{}{"error": err.Error()})
		respondError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	respondJSON(w, http.StatusOK, user)
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	token, _ := middleware.TokenFromContext(r.Context())
	if err := h.service.Logout(r.Context(), token); err != nil {
		h.logger.Warn("Logout failed", map[string]interface{}{"error": err.Error()})
		respondError(w, http.StatusInternalServerError, "Logout failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AuthHandler) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := decodeJSON(w, r, dst, false); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return false
	}
	if errs := h.validator.ValidateStructured(dst); errs != nil {
		respondValidationErrors(w, http.StatusBadRequest, errs, nil)
		return false
	}
	return true
}
