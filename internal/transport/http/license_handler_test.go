package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"kslicense/internal/authz"
)

// MockAuthzService implements AuthzService for handler tests.
type MockAuthzService struct {
	mock.Mock
}

func (m *MockAuthzService) Authorize(ctx context.Context, email, machineID, computerName string) (*authz.Decision, error) {
	args := m.Called(ctx, email, machineID, computerName)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*authz.Decision), args.Error(1)
}

func (m *MockAuthzService) AddToAllowlist(ctx context.Context, email string) (*authz.AllowlistEntry, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*authz.AllowlistEntry), args.Error(1)
}

func (m *MockAuthzService) RevokeAccess(ctx context.Context, email string) (*authz.RevokeResult, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*authz.RevokeResult), args.Error(1)
}

func (m *MockAuthzService) ListActiveBindings(ctx context.Context) ([]authz.LicenseBinding, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]authz.LicenseBinding), args.Error(1)
}

func newLicenseRouter(service AuthzService) chi.Router {
	r := chi.NewRouter()
	r.Mount("/api/license", NewLicenseHandler(service, slog.Default()).Routes())
	return r
}

func postJSON(t *testing.T, router http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestRequestLicense(t *testing.T) {
	validRequest := map[string]string{
		"email":         "alice@kaohsin.com.tw",
		"machine_id":    "m1",
		"computer_name": "PC-1",
	}

	tests := []struct {
		name           string
		body           any
		setupMock      func(*MockAuthzService)
		expectedStatus int
		expectedCode   string
		checkBody      func(*testing.T, map[string]any)
	}{
		{
			name: "new binding authorized",
			body: validRequest,
			setupMock: func(m *MockAuthzService) {
				m.On("Authorize", mock.Anything, "alice@kaohsin.com.tw", "m1", "PC-1").
					Return(&authz.Decision{Authorized: true, Reason: "new binding", NewBinding: true}, nil)
			},
			expectedStatus: http.StatusOK,
			checkBody: func(t *testing.T, body map[string]any) {
				assert.Equal(t, true, body["authorized"])
				assert.Equal(t, "license granted", body["message"])
			},
		},
		{
			name: "renewal authorized",
			body: validRequest,
			setupMock: func(m *MockAuthzService) {
				m.On("Authorize", mock.Anything, "alice@kaohsin.com.tw", "m1", "PC-1").
					Return(&authz.Decision{Authorized: true, Reason: "renewed"}, nil)
			},
			expectedStatus: http.StatusOK,
			checkBody: func(t *testing.T, body map[string]any) {
				assert.Equal(t, true, body["authorized"])
				assert.Equal(t, "license validated", body["message"])
			},
		},
		{
			name: "domain not allowed",
			body: map[string]string{"email": "alice@gmail.com", "machine_id": "m1"},
			setupMock: func(m *MockAuthzService) {
				m.On("Authorize", mock.Anything, "alice@gmail.com", "m1", "").
					Return(nil, authz.ErrDomainNotAllowed)
			},
			expectedStatus: http.StatusBadRequest,
			expectedCode:   ErrCodeDomainNotAllowed,
		},
		{
			name: "not allowlisted",
			body: validRequest,
			setupMock: func(m *MockAuthzService) {
				m.On("Authorize", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
					Return(nil, authz.ErrNotAllowlisted)
			},
			expectedStatus: http.StatusForbidden,
			expectedCode:   ErrCodeNotAllowlisted,
		},
		{
			name: "machine conflict includes computer name",
			body: validRequest,
			setupMock: func(m *MockAuthzService) {
				m.On("Authorize", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
					Return(nil, &authz.MachineConflictError{ComputerName: "PC-OTHER"})
			},
			expectedStatus: http.StatusForbidden,
			expectedCode:   ErrCodeMachineConflict,
			checkBody: func(t *testing.T, body map[string]any) {
				assert.Contains(t, body["error"], "PC-OTHER")
			},
		},
		{
			name: "store unavailable",
			body: validRequest,
			setupMock: func(m *MockAuthzService) {
				m.On("Authorize", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
					Return(nil, &authz.StoreError{Op: "update binding", Transient: true, Err: context.DeadlineExceeded})
			},
			expectedStatus: http.StatusServiceUnavailable,
			expectedCode:   ErrCodeStoreUnavailable,
		},
		{
			name: "store failure",
			body: validRequest,
			setupMock: func(m *MockAuthzService) {
				m.On("Authorize", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
					Return(nil, &authz.StoreError{Op: "update binding", Err: errors.New("corrupt row")})
			},
			expectedStatus: http.StatusInternalServerError,
			expectedCode:   ErrCodeInternal,
		},
		{
			name:           "missing machine_id rejected before service",
			body:           map[string]string{"email": "alice@kaohsin.com.tw"},
			setupMock:      func(m *MockAuthzService) {},
			expectedStatus: http.StatusBadRequest,
			expectedCode:   ErrCodeInvalidRequest,
		},
		{
			name:           "malformed email rejected before service",
			body:           map[string]string{"email": "not-an-email", "machine_id": "m1"},
			setupMock:      func(m *MockAuthzService) {},
			expectedStatus: http.StatusBadRequest,
			expectedCode:   ErrCodeInvalidRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			service := &MockAuthzService{}
			tt.setupMock(service)
			router := newLicenseRouter(service)

			rec := postJSON(t, router, "/api/license/", tt.body)

			assert.Equal(t, tt.expectedStatus, rec.Code)
			body := decodeBody(t, rec)
			if tt.expectedCode != "" {
				assert.Equal(t, tt.expectedCode, body["code"])
			}
			if tt.checkBody != nil {
				tt.checkBody(t, body)
			}
			service.AssertExpectations(t)
		})
	}
}

func TestRequestLicense_InvalidJSON(t *testing.T) {
	service := &MockAuthzService{}
	router := newLicenseRouter(service)

	req := httptest.NewRequest(http.MethodPost, "/api/license/", bytes.NewReader([]byte("{not json")))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	service.AssertNotCalled(t, "Authorize")
}

func TestHealthz(t *testing.T) {
	t.Run("store reachable", func(t *testing.T) {
		handler := NewHealthHandler(pingerFunc(func(context.Context) error { return nil }), slog.Default())

		req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		rec := httptest.NewRecorder()
		handler.Healthz(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		body := decodeBody(t, rec)
		assert.Equal(t, "ok", body["status"])
		assert.Equal(t, "ok", body["store"])
	})

	t.Run("store unreachable", func(t *testing.T) {
		handler := NewHealthHandler(pingerFunc(func(context.Context) error { return errors.New("closed") }), slog.Default())

		req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		rec := httptest.NewRecorder()
		handler.Healthz(rec, req)

		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		body := decodeBody(t, rec)
		assert.Equal(t, "degraded", body["status"])
		assert.Equal(t, "unreachable", body["store"])
	})
}

type pingerFunc func(ctx context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }
