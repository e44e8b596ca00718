package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"payment-gateway-ledger/internal/dto"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"
)

type stubSynchronizer struct {
	result dto.SyncResult
}

func (s stubSynchronizer) SyncPlans(ctx context.Context) dto.SyncResult {
	return s.result
}

func TestSyncPlansHandler(t *testing.T) {
	for _, tc := range []struct {
		name   string
		result dto.SyncResult
		status int
	}{
		{"complete", dto.SyncResult{Success: true, Total: 3, Succeeded: 3}, http.StatusOK},
		{"partial", dto.SyncResult{Total: 3, Succeeded: 2, Failed: 1, Errors: []string{"price_x: bad"}}, http.StatusBadGateway},
	} {
		t.Run(tc.name, func(t *testing.T) {
			e := echo.New()
			req := httptest.NewRequest(http.MethodPost, "/api/admin/catalog/sync", nil)
			rec := httptest.NewRecorder()

			require.NoError(t, NewCatalogHandler(stubSynchronizer{result: tc.result}).SyncPlans(e.NewContext(req, rec)))
			require.Equal(t, tc.status, rec.Code)
			require.Contains(t, rec.Body.String(), `"total":3`)
		})
	}
}
