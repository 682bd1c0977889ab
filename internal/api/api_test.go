package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/tandahub/tanda/internal/auth"
	"github.com/tandahub/tanda/internal/engine"
	"github.com/tandahub/tanda/internal/identity"
	"github.com/tandahub/tanda/internal/models"
	"github.com/tandahub/tanda/internal/settlement"
	"github.com/tandahub/tanda/internal/storage/sqlite"
)

type stubSettler struct{}

func (stubSettler) Settle(_ context.Context, payment *models.Payment, _, _ string) (settlement.TxHandle, error) {
	return settlement.TxHandle{TxID: "TX-" + payment.ID, SubmittedAt: time.Now()}, nil
}

func newTestServer(t *testing.T) (*echo.Echo, *auth.JWTManager) {
	t.Helper()

	store, err := sqlite.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	eng := engine.New(engine.Config{
		Store:   store,
		Settler: stubSettler{},
		Identity: identity.StaticDirectory{
			"user-1": "ADDR1",
			"user-2": "ADDR2",
		},
		PoolAddress: "POOLADDR",
	})

	jwtManager := auth.NewJWTManager("test-secret", time.Hour)

	e := echo.New()
	NewServer(eng).Register(e, jwtManager)
	return e, jwtManager
}

func doRequest(e *echo.Echo, method, path, token, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestAuthRequired(t *testing.T) {
	e, _ := newTestServer(t)

	t.Run("missing token", func(t *testing.T) {
		rec := doRequest(e, http.MethodGet, "/api/roscas", "", "")
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", rec.Code)
		}
	})

	t.Run("malformed token", func(t *testing.T) {
		rec := doRequest(e, http.MethodGet, "/api/roscas", "not-a-jwt", "")
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", rec.Code)
		}
	})

	t.Run("health endpoint is open", func(t *testing.T) {
		rec := doRequest(e, http.MethodGet, "/healthz", "", "")
		if rec.Code != http.StatusOK {
			t.Errorf("status = %d, want 200", rec.Code)
		}
	})
}

func TestROSCAFlow(t *testing.T) {
	e, jwtManager := newTestServer(t)

	token1, err := jwtManager.Generate("user-1")
	if err != nil {
		t.Fatalf("Failed to generate token: %v", err)
	}
	token2, err := jwtManager.Generate("user-2")
	if err != nil {
		t.Fatalf("Failed to generate token: %v", err)
	}

	createBody := `{
		"name": "Office Circle",
		"total_amount": 3000000,
		"frequency": "weekly",
		"rounds": 3,
		"max_participants": 3,
		"start_date": 1767225600
	}`

	var roscaID string
	t.Run("create", func(t *testing.T) {
		rec := doRequest(e, http.MethodPost, "/api/roscas", token1, createBody)
		if rec.Code != http.StatusCreated {
			t.Fatalf("status = %d, want 201: %s", rec.Code, rec.Body.String())
		}
		var resp struct {
			ID                 string `json:"id"`
			Status             string `json:"status"`
			ContributionAmount int64  `json:"contribution_amount"`
			AdminID            string `json:"admin_id"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("Failed to decode response: %v", err)
		}
		if resp.Status != "forming" {
			t.Errorf("status = %s, want forming", resp.Status)
		}
		if resp.ContributionAmount != 1_000_000 {
			t.Errorf("contribution_amount = %d, want 1000000", resp.ContributionAmount)
		}
		if resp.AdminID != "user-1" {
			t.Errorf("admin_id = %s, want user-1 (from token)", resp.AdminID)
		}
		roscaID = resp.ID
	})

	t.Run("create with bad arithmetic", func(t *testing.T) {
		body := strings.Replace(createBody, "3000000", "1000001", 1)
		rec := doRequest(e, http.MethodPost, "/api/roscas", token1, body)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400: %s", rec.Code, rec.Body.String())
		}
	})

	t.Run("get", func(t *testing.T) {
		rec := doRequest(e, http.MethodGet, "/api/roscas/"+roscaID, token1, "")
		if rec.Code != http.StatusOK {
			t.Errorf("status = %d, want 200", rec.Code)
		}
	})

	t.Run("get missing", func(t *testing.T) {
		rec := doRequest(e, http.MethodGet, "/api/roscas/nonexistent", token1, "")
		if rec.Code != http.StatusNotFound {
			t.Errorf("status = %d, want 404", rec.Code)
		}
	})

	t.Run("join", func(t *testing.T) {
		rec := doRequest(e, http.MethodPost, "/api/roscas/"+roscaID+"/join", token2, "")
		if rec.Code != http.StatusCreated {
			t.Fatalf("status = %d, want 201: %s", rec.Code, rec.Body.String())
		}
		var resp struct {
			Position int `json:"position"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("Failed to decode response: %v", err)
		}
		if resp.Position != 1 {
			t.Errorf("position = %d, want 1", resp.Position)
		}
	})

	t.Run("duplicate join", func(t *testing.T) {
		rec := doRequest(e, http.MethodPost, "/api/roscas/"+roscaID+"/join", token2, "")
		if rec.Code != http.StatusConflict {
			t.Errorf("status = %d, want 409: %s", rec.Code, rec.Body.String())
		}
	})

	t.Run("list filtered by status", func(t *testing.T) {
		rec := doRequest(e, http.MethodGet, "/api/roscas?status=forming", token1, "")
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
		var resp []json.RawMessage
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("Failed to decode response: %v", err)
		}
		if len(resp) != 1 {
			t.Errorf("got %d roscas, want 1", len(resp))
		}
	})

	t.Run("cancel by non-admin", func(t *testing.T) {
		rec := doRequest(e, http.MethodPost, "/api/roscas/"+roscaID+"/cancel", token2, `{"reason":"nope"}`)
		if rec.Code != http.StatusUnprocessableEntity {
			t.Errorf("status = %d, want 422: %s", rec.Code, rec.Body.String())
		}
	})

	t.Run("cancel by admin", func(t *testing.T) {
		rec := doRequest(e, http.MethodPost, "/api/roscas/"+roscaID+"/cancel", token1, `{"reason":"changed plans"}`)
		if rec.Code != http.StatusNoContent {
			t.Errorf("status = %d, want 204: %s", rec.Code, rec.Body.String())
		}
	})

	t.Run("join after cancellation", func(t *testing.T) {
		rec := doRequest(e, http.MethodPost, "/api/roscas/"+roscaID+"/join", token1, "")
		if rec.Code != http.StatusUnprocessableEntity {
			t.Errorf("status = %d, want 422: %s", rec.Code, rec.Body.String())
		}
	})
}

func TestListPaymentsRoundParam(t *testing.T) {
	e, jwtManager := newTestServer(t)
	token, err := jwtManager.Generate("user-1")
	if err != nil {
		t.Fatalf("Failed to generate token: %v", err)
	}

	rec := doRequest(e, http.MethodGet, "/api/roscas/some-id/payments?round=zero", token, "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}
