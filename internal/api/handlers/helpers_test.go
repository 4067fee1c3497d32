package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"liraexchange/internal/api/middleware"
)

// serve прогоняет запрос через mux, чтобы заполнились {id}, и кладёт
// Identity в context так же, как это делает middleware.Identify
func serve(handler http.HandlerFunc, method, pattern, target, body string, id *middleware.Identity) *httptest.ResponseRecorder {
	router := mux.NewRouter()
	router.HandleFunc(pattern, handler).Methods(method)

	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	if id != nil {
		req = req.WithContext(middleware.WithIdentity(req.Context(), *id))
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func userIdentity() *middleware.Identity {
	return &middleware.Identity{UserID: uuid.New()}
}

func adminIdentity() *middleware.Identity {
	return &middleware.Identity{UserID: uuid.New(), Role: middleware.RoleAdmin}
}

func expectStatus(t *testing.T, w *httptest.ResponseRecorder, status int) {
	t.Helper()
	if w.Code != status {
		t.Fatalf("expected status %d, got %d: %s", status, w.Code, w.Body.String())
	}
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, dst interface{}) {
	t.Helper()
	if err := json.NewDecoder(w.Body).Decode(dst); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var resp ErrorResponse
	decodeBody(t, w, &resp)
	return resp.Code
}
