package inquiry

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T, svc *Service) chi.Router {
	t.Helper()
	r := chi.NewRouter()
	NewHandler(slog.Default(), svc).MountRoutes(r)
	return r
}

func postJSON(r chi.Router, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestHandlerApplyEditGroupRequirement(t *testing.T) {
	repo := &memoryInquiryRepo{snapshots: map[int64]Snapshot{42: testSnapshot()}}
	svc := newTestService(t, repo, &captureAudit{})
	sessionID, _, err := svc.StartComparison(context.Background(), 42)
	require.NoError(t, err)
	router := newTestRouter(t, svc)
	path := "/comparison/" + sessionID + "/edits"

	// Quantity edits use no group, so none is demanded.
	rec := postJSON(router, path, `{"kind":"set_quantity","item_id":"A","qty":7}`)
	require.Equal(t, http.StatusOK, rec.Code)

	// Group-scoped edits still require one.
	rec = postJSON(router, path, `{"kind":"set_override","item_id":"A","price":1.5}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = postJSON(router, path, `{"kind":"set_override","item_id":"A","group":"1","price":1.5}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = postJSON(router, path, `{"kind":"toggle_group","group":"not-a-group","active":false}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
