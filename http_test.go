package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mil-ad/glockctl/session"
)

func doHTTP(t *testing.T, h http.Handler, method, path, body string) (int, IPCResponse) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var resp IPCResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return rec.Code, resp
}

func TestHTTPPlaybackFlow(t *testing.T) {
	d, conn := newTestDaemon(t)
	h := d.httpHandler()

	code, resp := doHTTP(t, h, http.MethodPost, "/send", `{"melody":"C"}`)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, session.ErrNotConnected.Error(), resp.Error)

	code, resp = doHTTP(t, h, http.MethodPost, "/connect", `{}`)
	require.Equal(t, http.StatusOK, code, resp.Error)
	assert.Equal(t, string(session.StateConnected), resp.State)

	code, resp = doHTTP(t, h, http.MethodPost, "/send", `{"melody":"C,D,E","tempo":100}`)
	require.Equal(t, http.StatusOK, code, resp.Error)
	assert.Equal(t, "100,1,2,4|", resp.Wire)

	code, _ = doHTTP(t, h, http.MethodPost, "/stop", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "100,1,2,4|100,0|", conn.String())

	code, resp = doHTTP(t, h, http.MethodGet, "/status", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, string(session.StateConnected), resp.State)
	assert.Equal(t, 100, resp.Tempo)
}

func TestHTTPErrorCodes(t *testing.T) {
	d, _ := newTestDaemon(t)
	h := d.httpHandler()

	code, _ := doHTTP(t, h, http.MethodPost, "/encode", `{"melody":""}`)
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = doHTTP(t, h, http.MethodPost, "/encode", `{"melody":"C","tempo":-1}`)
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = doHTTP(t, h, http.MethodPost, "/connect", `{"device":"Xylophone"}`)
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = doHTTP(t, h, http.MethodPost, "/send", `{"melody":`)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestHTTPCORS(t *testing.T) {
	d, _ := newTestDaemon(t)
	d.cfg.HTTP.AllowedOrigins = []string{"http://localhost:3000"}
	h := d.httpHandler()

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/status", nil)
	req.Header.Set("Origin", "http://evil.example")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}
