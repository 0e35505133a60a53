package publish

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/lumilearn/lumilearn-publish-server/shareclient/shareapi"
)

type apiHandler struct {
	s *publishService
}

func (h apiHandler) init(m *http.ServeMux) {
	m.HandleFunc("POST /api/publish", h.Publish)
	m.HandleFunc("POST /api/publish/{token}/toggle", h.Toggle)
	m.HandleFunc("GET /api/health", h.Health)
	m.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		writeErr(w, http.StatusNotFound, errors.New("not found"))
	})
}

func (h apiHandler) Publish(w http.ResponseWriter, r *http.Request) {
	defer func() {
		_ = r.Body.Close()
	}()
	var req shareapi.PublishRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, shareapi.ErrInvalidRequest)
		return
	}
	resp, err := h.s.Publish(r.Context(), req)
	if err != nil {
		writeErr(w, statusFor(err), err)
		return
	}
	writeJson(w, http.StatusOK, resp)
}

func (h apiHandler) Toggle(w http.ResponseWriter, r *http.Request) {
	defer func() {
		_ = r.Body.Close()
	}()
	var req shareapi.ToggleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, shareapi.ErrInvalidRequest)
		return
	}
	resp, err := h.s.ToggleShare(r.Context(), r.PathValue("token"), req.Enabled)
	if err != nil {
		writeErr(w, statusFor(err), err)
		return
	}
	writeJson(w, http.StatusOK, resp)
}

func (h apiHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJson(w, http.StatusOK, struct {
		Ok bool `json:"ok"`
	}{Ok: true})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, shareapi.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, shareapi.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, shareapi.ErrShareDisabled):
		return http.StatusForbidden
	}
	return http.StatusInternalServerError
}

func writeJson(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	data, _ := json.Marshal(v)
	_, _ = w.Write(data)
}

func writeErr(w http.ResponseWriter, status int, err error) {
	writeJson(w, status, shareapi.ErrorResponse{Error: err.Error()})
}
