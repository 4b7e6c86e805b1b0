package respond

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type loginBody struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

func TestJSONEnvelope(t *testing.T) {
	rec := httptest.NewRecorder()

	JSON(rec, http.StatusCreated, "created", map[string]string{"id": "1"})

	var env Envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	assert.Equal(t, http.StatusCreated, env.Code)
	assert.Equal(t, "created", env.Message)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
}

func TestErrorOmitsData(t *testing.T) {
	rec := httptest.NewRecorder()

	Error(rec, http.StatusForbidden, "insufficient role")

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.NotContains(t, rec.Body.String(), "data")
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{"valid", `{"email":"a@x.com","password":"p"}`, ""},
		{"malformed", `{"email":`, "invalid JSON payload"},
		{"unknown field", `{"email":"a@x.com","password":"p","admin":true}`, "invalid JSON payload"},
		{"bad email", `{"email":"nope","password":"p"}`, "email failed email"},
		{"missing password", `{"email":"a@x.com"}`, "password failed required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			var dst loginBody
			err := Decode(req, &dst)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, ErrBadRequest)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
