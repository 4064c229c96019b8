package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"gitlab.bluewillows.net/root/sftpgate/pkg/transfer"
)

// ProfileInfo describes a configured profile. It never carries secrets.
type ProfileInfo struct {
	Name            string `json:"name"`
	Host            string `json:"host"`
	Port            int    `json:"port"`
	Username        string `json:"username"`
	Valid           bool   `json:"valid"`
	VerifiesHostKey bool   `json:"verifiesHostKey"`
	Error           string `json:"error,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// StatusFor maps a failed response's error kind to an HTTP status.
func StatusFor(resp *transfer.Response) int {
	if !resp.Failed() {
		return http.StatusOK
	}
	switch resp.Error.Kind {
	case transfer.KindValidation.String():
		return http.StatusBadRequest
	case transfer.KindNotFound.String():
		return http.StatusNotFound
	case transfer.KindAuthentication.String(), transfer.KindConnection.String():
		return http.StatusBadGateway
	case transfer.KindOperation.String():
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) listProfiles(w http.ResponseWriter, _ *http.Request) {
	profiles := s.handler.Registry().Profiles()
	out := make([]ProfileInfo, 0, len(profiles))
	for _, p := range profiles {
		info := ProfileInfo{
			Name:            p.Name(),
			Host:            p.Host(),
			Port:            p.Port(),
			Username:        p.Username(),
			Valid:           p.Valid(),
			VerifiesHostKey: p.VerifiesHostKey(),
		}
		if err := p.Err(); err != nil {
			info.Error = err.Error()
		}
		out = append(out, info)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleRequest(w http.ResponseWriter, r *http.Request) {
	profile := chi.URLParam(r, "profile")

	var req transfer.Request
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, s.maxBody))
	if err := dec.Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit))
			return
		}
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.ID == "" {
		req.ID = r.Header.Get("X-Request-Id")
	}

	resp := s.handler.Handle(r.Context(), profile, req)
	status := StatusFor(&resp)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed",
			slog.String("request_id", resp.ID),
			slog.String("profile", profile),
			slog.Int("status", status),
		)
	}
	writeJSON(w, status, resp)
}
