package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"budgee-sync/src/models"
	"budgee-sync/src/store/memory"
)

const testSecret = "test-secret"

func signed(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return "Bearer " + s
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestJWTAuthMiddleware(t *testing.T) {
	var gotTeam string
	h := JWTAuthMiddleware(testSecret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotTeam = TeamID(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		name   string
		auth   string
		status int
	}{
		{"valid", signed(t, jwt.MapClaims{"team_id": "team-1", "user_id": "u1"}), http.StatusNoContent},
		{"missing header", "", http.StatusUnauthorized},
		{"no team claim", signed(t, jwt.MapClaims{"user_id": "u1"}), http.StatusUnauthorized},
		{"garbage", "Bearer not-a-token", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotTeam = ""
			req := httptest.NewRequest(http.MethodGet, "/api/anything", nil)
			if tt.auth != "" {
				req.Header.Set("Authorization", tt.auth)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			require.Equal(t, tt.status, rec.Code)
			if tt.status == http.StatusNoContent {
				require.Equal(t, "team-1", gotTeam)
			} else {
				body := decode(t, rec)
				require.Equal(t, false, body["success"])
			}
		})
	}
}

func TestDemoModeMiddleware(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	h := DemoModeMiddleware(true)(ok)

	tests := []struct {
		method, path string
		status       int
	}{
		{http.MethodGet, "/api/budgets/b1/spending", http.StatusOK},
		{http.MethodPost, "/api/plaid/webhook", http.StatusOK},
		{http.MethodPost, "/api/teams/sync", http.StatusOK},
		{http.MethodPost, "/api/budgets/b1/rules", http.StatusForbidden},
		{http.MethodDelete, "/api/budgets/b1/rules/r1", http.StatusForbidden},
	}
	for _, tt := range tests {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))
		require.Equal(t, tt.status, rec.Code, "%s %s", tt.method, tt.path)
	}

	rec := httptest.NewRecorder()
	DemoModeMiddleware(false)(ok).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/budgets/b1/rules", nil))
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestRecoveryAndRequestID(t *testing.T) {
	h := RequestID(Recovery(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NotEmpty(t, RequestIDFrom(r.Context()))
		panic("boom")
	})))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	body := decode(t, rec)
	require.Equal(t, false, body["success"])
	require.Equal(t, "internal", body["error"].(map[string]any)["code"])
}

func TestWriteJSON(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteJSON(rec, http.StatusCreated, map[string]int{"count": 2})
	require.Equal(t, http.StatusCreated, rec.Code)
	require.JSONEq(t, `{"success":true,"data":{"count":2}}`, rec.Body.String())
}

func TestBudgetOwnerMiddleware(t *testing.T) {
	st := memory.New()
	st.AddBudget(models.Budget{ID: "b1", TeamID: "team-1", Name: "Household"})
	st.AddBudget(models.Budget{ID: "b2", TeamID: "team-2", Name: "Theirs"})

	var got *models.Budget
	r := chi.NewRouter()
	r.With(BudgetOwnerMiddleware(st)).Get("/budgets/{budget_id}", func(w http.ResponseWriter, r *http.Request) {
		got = Budget(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})

	tests := []struct {
		name   string
		team   string
		path   string
		status int
	}{
		{"own budget", "team-1", "/budgets/b1", http.StatusNoContent},
		{"other team's budget", "team-1", "/budgets/b2", http.StatusNotFound},
		{"unknown budget", "team-1", "/budgets/nope", http.StatusNotFound},
		{"no team", "", "/budgets/b1", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got = nil
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			req = req.WithContext(WithTeamID(req.Context(), tt.team))
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, req)
			require.Equal(t, tt.status, rec.Code)
			if tt.status == http.StatusNoContent {
				require.Equal(t, "b1", got.ID)
				return
			}
			require.Nil(t, got)
			body := decode(t, rec)
			require.Equal(t, "not_found", body["error"].(map[string]any)["code"])
		})
	}
}
