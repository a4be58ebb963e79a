package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/jarcoal/httpmock"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"onboard/internal/domain"
	"onboard/internal/draft"
	"onboard/internal/gateway"
	"onboard/internal/identity"
	"onboard/internal/imagehost"
	"onboard/internal/middleware"
	"onboard/internal/wizard"
	"onboard/pkg/cache"
	"onboard/pkg/errors"
	"onboard/pkg/logger"
	"onboard/pkg/validator"
)

const uploadEndpoint = "https://api.cloudinary.test/v1_1/demo/image/upload"

type memDistributors map[string]domain.Distributor

func (m memDistributors) FindByID(_ context.Context, id string) (*domain.Distributor, error) {
	d, ok := m[id]
	if !ok {
		return nil, errors.ErrDistributorNotFound
	}
	return &d, nil
}

type memClients struct {
	mu        sync.Mutex
	seq       int
	clients   map[string]domain.ClientRecord
	reminders map[string][]domain.ReminderRecord
}

func newMemClients() *memClients {
	return &memClients{
		clients:   map[string]domain.ClientRecord{},
		reminders: map[string][]domain.ReminderRecord{},
	}
}

func (m *memClients) Commit(_ context.Context, rec *domain.ClientRecord, reminders []domain.ReminderRecord, mode domain.SubmitMode) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := rec.ClientID
	if mode == domain.SubmitModeCreate {
		m.seq++
		id = fmt.Sprintf("CLIENT-%06d", m.seq)
	} else if _, ok := m.clients[id]; !ok {
		return "", errors.ErrClientNotFound
	}
	stored := *rec
	stored.ClientID = id
	m.clients[id] = stored
	m.reminders[id] = append([]domain.ReminderRecord(nil), reminders...)
	return id, nil
}

func (m *memClients) FindByID(_ context.Context, clientID string) (*domain.ClientRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.clients[clientID]
	if !ok {
		return nil, errors.ErrClientNotFound
	}
	return &rec, nil
}

// tokenUsers accepts a fixed set of bearer tokens.
type tokenUsers map[string]uuid.UUID

func (m tokenUsers) VerifyToken(_ context.Context, token string) (*identity.Claims, error) {
	id, ok := m[token]
	if !ok {
		return nil, errors.ErrInvalidToken
	}
	return &identity.Claims{UserID: id, Email: token + "@example.com", ExpiresAt: time.Now().Add(time.Hour)}, nil
}

type formHarness struct {
	t       *testing.T
	router  *mux.Router
	clients *memClients
	manager *wizard.Manager
	remote  wizard.Remote
	store   draft.Store
	users   tokenUsers
}

func newFormHarness(t *testing.T) *formHarness {
	t.Helper()

	hc := &http.Client{}
	httpmock.ActivateNonDefault(hc)
	t.Cleanup(httpmock.DeactivateAndReset)
	var uploads int
	var mu sync.Mutex
	httpmock.RegisterResponder(http.MethodPost, uploadEndpoint, func(req *http.Request) (*http.Response, error) {
		mu.Lock()
		uploads++
		n := uploads
		mu.Unlock()
		return httpmock.NewJsonResponse(200, map[string]string{
			"secure_url": fmt.Sprintf("https://res.cloudinary.test/demo/%d.jpg", n),
			"public_id":  fmt.Sprint(n),
		})
	})

	images := imagehost.NewClient(imagehost.Config{
		BaseURL:      "https://api.cloudinary.test",
		CloudName:    "demo",
		UploadPreset: "pdf_ocr_preset",
		MaxFileSize:  4096,
	}, hc, logger.NewNop())

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	store := draft.NewRedisStore(cache.NewRedisCacheFromClient(rdb), "client_form_data", logger.NewNop())

	clients := newMemClients()
	gw := gateway.New(memDistributors{
		"dist-1": {ID: "dist-1", Name: "Priyanka Enterprises", CreatedAt: time.Now()},
	}, clients, images, logger.NewNop())

	h := &formHarness{t: t, clients: clients, remote: gw, store: store, users: tokenUsers{
		"owner-token":    uuid.New(),
		"stranger-token": uuid.New(),
	}}
	h.restart()
	return h
}

// restart replaces the session manager, dropping live sessions while the
// draft store and the repositories survive.
func (h *formHarness) restart() {
	h.manager = wizard.NewManager(h.remote, h.store, logger.NewNop(), wizard.Options{Policy: wizard.StrictPolicy()})
	h.router = mux.NewRouter()
	api := h.router.PathPrefix("/api/v1").Subrouter()
	api.Use(middleware.NewAuthMiddleware(h.users).Optional)
	NewFormHandler(h.manager, validator.New(), logger.NewNop(), 4096).RegisterRoutes(api)
}

func (h *formHarness) do(method, path string, body interface{}) *httptest.ResponseRecorder {
	h.t.Helper()
	return h.doAs("", method, path, body)
}

// doAs sends the request with a bearer token; an empty token is anonymous.
func (h *formHarness) doAs(token, method, path string, body interface{}) *httptest.ResponseRecorder {
	h.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(h.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)
	return w
}

func (h *formHarness) upload(sessionID, slot, filename string, data []byte, deferred bool) *httptest.ResponseRecorder {
	h.t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	require.NoError(h.t, err)
	_, err = part.Write(data)
	require.NoError(h.t, err)
	require.NoError(h.t, mw.Close())

	path := "/api/v1/sessions/" + sessionID + "/images/" + slot
	if deferred {
		path += "?defer=true"
	}
	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)
	return w
}

func (h *formHarness) setField(sessionID, path string, value interface{}) {
	h.t.Helper()
	w := h.do(http.MethodPatch, "/api/v1/sessions/"+sessionID+"/fields", map[string]interface{}{
		"path":  path,
		"value": value,
	})
	require.Equal(h.t, http.StatusOK, w.Code, "%s: %s", path, w.Body.String())
}

func (h *formHarness) next(sessionID string) wizard.Snapshot {
	h.t.Helper()
	w := h.do(http.MethodPost, "/api/v1/sessions/"+sessionID+"/next", nil)
	require.Equal(h.t, http.StatusOK, w.Code, w.Body.String())
	return decodeSnapshot(h.t, w)
}

func (h *formHarness) start(distributorID string) wizard.Snapshot {
	h.t.Helper()
	return h.startAs("", distributorID)
}

func (h *formHarness) startAs(token, distributorID string) wizard.Snapshot {
	h.t.Helper()
	w := h.doAs(token, http.MethodPost, "/api/v1/forms/"+distributorID+"/sessions", nil)
	require.Equal(h.t, http.StatusCreated, w.Code, w.Body.String())
	return decodeSnapshot(h.t, w)
}

func decodeSnapshot(t *testing.T, w *httptest.ResponseRecorder) wizard.Snapshot {
	t.Helper()
	var snap wizard.Snapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snap))
	return snap
}

var jpegBytes = []byte("\xff\xd8\xff\xe0 fake jpeg body")

func futureExpiry() string {
	return fmt.Sprintf("12/%02d", (time.Now().Year()+2)%100)
}
