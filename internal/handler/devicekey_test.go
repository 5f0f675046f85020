package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dooropener/dooropener/internal/auth"
	"github.com/dooropener/dooropener/internal/model"
	"github.com/dooropener/dooropener/internal/service"
)

type fakeDeviceKeys struct {
	issued  []model.DeviceKeyCreateRequest
	revoked []string
	owned   map[string]int64
}

func (f *fakeDeviceKeys) Issue(_ context.Context, owner *model.Principal, req model.DeviceKeyCreateRequest) (*model.DeviceKeyCreateResponse, error) {
	f.issued = append(f.issued, req)
	return &model.DeviceKeyCreateResponse{ID: "k-new", Key: "dk_test_abcdef_0123", Scopes: req.Scopes, CreatedAt: time.Now()}, nil
}

func (f *fakeDeviceKeys) List(_ context.Context, owner *model.Principal) ([]model.DeviceKeyResponse, error) {
	out := []model.DeviceKeyResponse{}
	for id, ownerID := range f.owned {
		if ownerID == owner.ID {
			out = append(out, model.DeviceKeyResponse{ID: id})
		}
	}
	return out, nil
}

func (f *fakeDeviceKeys) Revoke(_ context.Context, owner *model.Principal, keyID string) error {
	if f.owned[keyID] != owner.ID {
		return service.ErrNotFound
	}
	f.revoked = append(f.revoked, keyID)
	return nil
}

func (f *fakeDeviceKeys) Rotate(_ context.Context, owner *model.Principal, keyID string) (*model.DeviceKeyRotateResponse, error) {
	if f.owned[keyID] != owner.ID {
		return nil, service.ErrNotFound
	}
	return &model.DeviceKeyRotateResponse{OldKeyID: keyID, NewKey: model.DeviceKeyCreateResponse{ID: "k-rotated"}}, nil
}

func deviceKeyRouter(h *DeviceKeyHandler, viewer *model.Principal) http.Handler {
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if viewer != nil {
				req = req.WithContext(auth.ContextWithPrincipal(req.Context(), viewer))
			}
			next.ServeHTTP(w, req)
		})
	})
	r.Get("/api/v1/device-keys", h.List)
	r.Post("/api/v1/device-keys", h.Create)
	r.Delete("/api/v1/device-keys/{key_id}", h.Revoke)
	r.Post("/api/v1/device-keys/{key_id}/rotate", h.Rotate)
	return r
}

func TestDeviceKeyHandler_Create(t *testing.T) {
	keys := &fakeDeviceKeys{}
	router := deviceKeyRouter(NewDeviceKeyHandler(keys, testLogger()), alice)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/device-keys", strings.NewReader(`{"name":"front door","scopes":["feed:read"]}`))
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	require.Len(t, keys.issued, 1)
	assert.Equal(t, "front door", keys.issued[0].Name)

	var resp model.DeviceKeyCreateResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.NotEmpty(t, resp.Key)
}

func TestDeviceKeyHandler_Create_EmptyBody(t *testing.T) {
	keys := &fakeDeviceKeys{}
	router := deviceKeyRouter(NewDeviceKeyHandler(keys, testLogger()), alice)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/device-keys", nil))

	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestDeviceKeyHandler_RequiresPrincipal(t *testing.T) {
	router := deviceKeyRouter(NewDeviceKeyHandler(&fakeDeviceKeys{}, testLogger()), nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/device-keys", nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestDeviceKeyHandler_List(t *testing.T) {
	keys := &fakeDeviceKeys{owned: map[string]int64{"k1": alice.ID, "k2": bob.ID}}
	router := deviceKeyRouter(NewDeviceKeyHandler(keys, testLogger()), alice)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/device-keys", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Keys []model.DeviceKeyResponse `json:"keys"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp.Keys, 1)
	assert.Equal(t, "k1", resp.Keys[0].ID)
}

func TestDeviceKeyHandler_Revoke(t *testing.T) {
	keys := &fakeDeviceKeys{owned: map[string]int64{"k1": alice.ID, "k2": bob.ID}}
	router := deviceKeyRouter(NewDeviceKeyHandler(keys, testLogger()), alice)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/v1/device-keys/k1", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/v1/device-keys/k2", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	assert.Equal(t, []string{"k1"}, keys.revoked)
}

func TestDeviceKeyHandler_Rotate(t *testing.T) {
	keys := &fakeDeviceKeys{owned: map[string]int64{"k1": alice.ID}}
	router := deviceKeyRouter(NewDeviceKeyHandler(keys, testLogger()), alice)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/device-keys/k1/rotate", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp model.DeviceKeyRotateResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "k1", resp.OldKeyID)
	assert.Equal(t, "k-rotated", resp.NewKey.ID)
}
