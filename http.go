package main

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"github.com/mil-ad/glockctl/melody"
	"github.com/mil-ad/glockctl/session"
)

// httpHandler exposes the same requests as the unix socket to browser and
// mobile shells.
func (d *daemon) httpHandler() http.Handler {
	router := mux.NewRouter().StrictSlash(true)
	router.HandleFunc("/status", d.route("status")).Methods("GET")
	router.HandleFunc("/devices", d.route("devices")).Methods("GET")
	router.HandleFunc("/encode", d.route("encode")).Methods("POST")
	router.HandleFunc("/connect", d.route("connect")).Methods("POST")
	router.HandleFunc("/send", d.route("send")).Methods("POST")
	router.HandleFunc("/stop", d.route("stop")).Methods("POST")
	router.HandleFunc("/disconnect", d.route("disconnect")).Methods("POST")

	origins := d.cfg.HTTP.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedHeaders: []string{"Content-Type"},
	}).Handler(router)
}

func (d *daemon) route(command string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req IPCRequest
		if r.Method == http.MethodPost {
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
				writeJSON(w, http.StatusBadRequest, IPCResponse{Error: "invalid request: " + err.Error()})
				return
			}
		}
		req.Command = command

		resp, err := d.do(r.Context(), req)
		if err != nil {
			logger.Warn("http request failed", "command", command, "err", err)
			resp.Error = err.Error()
			writeJSON(w, httpStatus(err), resp)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func httpStatus(err error) int {
	var unknown *melody.UnknownNoteError
	var ioErr *session.IOError
	switch {
	case errors.Is(err, melody.ErrEmpty), errors.Is(err, melody.ErrInvalidTempo), errors.As(err, &unknown):
		return http.StatusBadRequest
	case errors.Is(err, session.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, session.ErrNotConnected),
		errors.Is(err, session.ErrConnectInProgress),
		errors.Is(err, session.ErrAlreadyConnected),
		errors.Is(err, session.ErrAmbiguous),
		errors.Is(err, session.ErrCanceled):
		return http.StatusConflict
	case errors.Is(err, session.ErrAdapterDisabled):
		return http.StatusServiceUnavailable
	case errors.Is(err, session.ErrTimeout):
		return http.StatusGatewayTimeout
	case errors.As(err, &ioErr):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
