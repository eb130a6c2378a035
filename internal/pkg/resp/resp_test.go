package resp

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatty/internal/pkg/errs"
)

func record(fn func(w http.ResponseWriter, r *http.Request)) (*httptest.ResponseRecorder, JSONResponse) {
	w := httptest.NewRecorder()
	fn(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	var body JSONResponse
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	return w, body
}

func TestRespondSuccess(t *testing.T) {
	w, body := record(func(w http.ResponseWriter, r *http.Request) {
		RespondSuccess(w, r, map[string]int{"online": 2})
	})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.Equal(t, 0, body.Code)
	assert.Equal(t, map[string]any{"online": float64(2)}, body.Data)
}

func TestRespondCreated(t *testing.T) {
	w, body := record(func(w http.ResponseWriter, r *http.Request) {
		RespondCreated(w, r, "alice")
	})

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "alice", body.Data)
}

func TestRespondError(t *testing.T) {
	w, body := record(func(w http.ResponseWriter, r *http.Request) {
		RespondError(w, r, errs.NewError(errs.ErrBackendUnavailable))
	})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, errs.ErrBackendUnavailable, body.Code)
	assert.Nil(t, body.Data)

	w, body = record(func(w http.ResponseWriter, r *http.Request) {
		RespondError(w, r, nil)
	})
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, errs.ErrUnknown, body.Code)
}

func TestRespondJSONEncodingFailure(t *testing.T) {
	w := httptest.NewRecorder()
	RespondJSON(w, httptest.NewRequest(http.MethodGet, "/", nil), http.StatusOK, func() {})

	require.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "Error encoding JSON response")
}
