package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestServer_Healthz(t *testing.T) {
	ok := CheckerFunc(func(context.Context) error { return nil })
	down := CheckerFunc(func(context.Context) error { return errors.New("dial tcp: connection refused") })

	tests := []struct {
		name   string
		checks map[string]Checker
		code   int
		status string
	}{
		{"no checks", nil, http.StatusOK, "OK"},
		{"all up", map[string]Checker{"postgres": ok, "redis": ok}, http.StatusOK, "OK"},
		{"redis down", map[string]Checker{"postgres": ok, "redis": down}, http.StatusServiceUnavailable, "UNAVAILABLE"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			New(0, tc.checks).Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

			require.Equal(t, tc.code, rec.Code)
			var res report
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
			require.Equal(t, tc.status, res.Status)
			if tc.code != http.StatusOK {
				require.Contains(t, res.Checks["redis"], "connection refused")
				require.Equal(t, "OK", res.Checks["postgres"])
			}
		})
	}
}
