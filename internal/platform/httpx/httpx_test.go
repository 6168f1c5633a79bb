package httpx

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/feemaison/bakery-erp/internal/shared"
)

func TestRespondErrorMapsKinds(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{shared.E(shared.KindNotFound, "op", "", "missing"), http.StatusNotFound},
		{shared.E(shared.KindDuplicatePosting, "op", "VT-CMD-1", "again"), http.StatusConflict},
		{shared.E(shared.KindInsufficientStock, "op", "COUNTER", "short"), http.StatusUnprocessableEntity},
		{shared.E(shared.KindValidation, "op", "", "bad"), http.StatusBadRequest},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		rr := httptest.NewRecorder()
		RespondError(rr, tc.err)
		require.Equal(t, tc.status, rr.Code, tc.err.Error())
		require.Equal(t, "application/problem+json", rr.Header().Get("Content-Type"))
	}

	rr := httptest.NewRecorder()
	RespondError(rr, errors.New("password=secret"))
	require.NotContains(t, rr.Body.String(), "secret")

	rr = httptest.NewRecorder()
	RespondError(rr, shared.E(shared.KindDuplicatePosting, "op", "VT-CMD-1", "again"))
	require.Contains(t, rr.Body.String(), `"code":"VT-CMD-1"`)
}

func TestDecodeJSONRejectsUnknownFields(t *testing.T) {
	var target struct {
		Checks []string `json:"checks"`
	}
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"checks":["ledger"],"extra":1}`))
	require.Error(t, DecodeJSON(req, &target))

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"checks":["ledger"]}`))
	require.NoError(t, DecodeJSON(req, &target))
	require.Equal(t, []string{"ledger"}, target.Checks)
}
