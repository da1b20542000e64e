package server

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/thisislance98/claudia/errors"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 4 << 20

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Error *errors.Error `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// StatusFor maps an error code to an HTTP status.
func StatusFor(code errors.ErrorCode) int {
	switch code {
	case errors.ErrCodeSessionNotFound, errors.ErrCodeWorkspaceNotFound, errors.ErrCodeConfigNotFound:
		return http.StatusNotFound
	case errors.ErrCodeInvalidState:
		return http.StatusConflict
	case errors.ErrCodeInvalidInput, errors.ErrCodeConfigInvalid, errors.ErrCodeConfigValidation:
		return http.StatusBadRequest
	case errors.ErrCodeDaemonUnavailable:
		return http.StatusServiceUnavailable
	case errors.ErrCodeSpawnFailed, errors.ErrCodeCommandFailed, errors.ErrCodeCommandNotFound:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	e, ok := err.(*errors.Error)
	if !ok {
		e = errors.Wrap(err, errors.ErrCodeInternal, err.Error())
	}
	status := StatusFor(e.Code)

	log := s.logger.WithError(err).WithField("path", r.URL.Path)
	if status >= http.StatusInternalServerError {
		log.Warn("Request failed")
	} else {
		log.Debug("Request rejected")
	}
	writeJSON(w, status, errorBody{Error: e})
}

// decode reads a JSON request body into v. An empty body leaves v alone.
func decode(r *http.Request, v interface{}) error {
	err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(v)
	if err == io.EOF {
		return nil
	}
	if err != nil {
		return errors.InvalidInput("invalid request body: " + err.Error())
	}
	return nil
}
