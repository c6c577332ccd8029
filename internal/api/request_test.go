package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sampleRequest struct {
	Username string `json:"username" validate:"required,min=3"`
	Note     string `json:"note,omitempty" validate:"max=5"`
}

func (r *sampleRequest) Normalize() {
	r.Username = strings.TrimSpace(r.Username)
}

func decode(body string) (*httptest.ResponseRecorder, *sampleRequest, bool) {
	var dst sampleRequest
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	ok := DecodeJSON(rec, req, &dst)
	return rec, &dst, ok
}

func TestDecodeJSON_Valid(t *testing.T) {
	_, dst, ok := decode(`{"username":"  alice  "}`)
	require.True(t, ok)
	assert.Equal(t, "alice", dst.Username)
}

func TestDecodeJSON_ValidationDetailsUseJSONNames(t *testing.T) {
	rec, _, ok := decode(`{"username":"  ab ","note":"too long"}`)
	require.False(t, ok)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var body struct {
		Error   string            `json:"error"`
		Details map[string]string `json:"details"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "validation failed", body.Error)
	assert.Equal(t, map[string]string{"username": "min=3", "note": "max=5"}, body.Details)
}

func TestDecodeJSON_Malformed(t *testing.T) {
	rec, _, ok := decode(`{"username":`)
	assert.False(t, ok)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"bad request"}`, rec.Body.String())
}

func TestDecodeJSON_TooLarge(t *testing.T) {
	rec, _, ok := decode(`{"username":"` + strings.Repeat("a", maxBodyBytes) + `"}`)
	assert.False(t, ok)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}
