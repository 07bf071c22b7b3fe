package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriteFailure_CarriesSuccessFalseAndCode(t *testing.T) {
	rec := httptest.NewRecorder()
	require.NoError(t, WriteFailure(rec, http.StatusUnprocessableEntity, "ORG_INVALID_ORDER", "bad order", map[string]string{"request_id": "r1"}))

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, false, body["success"])
	require.Equal(t, "bad order", body["error"])
	require.Equal(t, "ORG_INVALID_ORDER", body["code"])
	require.NotContains(t, body, "data")
}

func TestWriteOK_WrapsData(t *testing.T) {
	rec := httptest.NewRecorder()
	require.NoError(t, WriteOK(rec, []string{"department"}))

	var body struct {
		Success bool     `json:"success"`
		Data    []string `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.True(t, body.Success)
	require.Equal(t, []string{"department"}, body.Data)
}
