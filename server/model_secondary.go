package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	log "github.com/sirupsen/logrus"

	"github.com/zucenko/rescuegrid/engine"
	"github.com/zucenko/rescuegrid/model"
)

const HTTP_SUCCESS = 200
const HTTP_BAD_REQUEST = 400
const HTTP_NOT_FOUND = 404
const HTTP_CONFLICT = 409
const HTTP_UNPROCESSABLE = 422
const HTTP_TOO_MANY = 429
const HTTP_SERVER_ERR = 500
const HTTP_UNAVAILABLE = 503

var (
	ErrBadRequest      = errors.New("bad request")
	ErrMissionNotFound = errors.New("mission not found")
	ErrRateLimited     = errors.New("rate limited")
)

type ResponseCode int

const (
	MISSION_READY ResponseCode = iota
	MISSION_NOT_FOUND
	MISSION_NO_SESSION
	MISSION_INVALID_STATE
	MISSION_CAPACITY
	REQUEST_INVALID
	REQUEST_LIMITED
	SERVER_FAILURE
)

// CodeOf classifies an error returned by the engine or a handler.
func CodeOf(err error) ResponseCode {
	switch {
	case err == nil:
		return MISSION_READY
	case errors.Is(err, ErrMissionNotFound):
		return MISSION_NOT_FOUND
	case errors.Is(err, engine.ErrNoActiveSession):
		return MISSION_NO_SESSION
	case errors.Is(err, engine.ErrInvalidState):
		return MISSION_INVALID_STATE
	case errors.Is(err, engine.ErrCapacity):
		return MISSION_CAPACITY
	case errors.Is(err, ErrBadRequest), errors.Is(err, engine.ErrInvalidParams):
		return REQUEST_INVALID
	case errors.Is(err, ErrRateLimited):
		return REQUEST_LIMITED
	default:
		return SERVER_FAILURE
	}
}

func (h ResponseCode) ToHttp() int {
	switch h {
	case MISSION_READY:
		return HTTP_SUCCESS
	case MISSION_NOT_FOUND:
		return HTTP_NOT_FOUND
	case MISSION_NO_SESSION, MISSION_INVALID_STATE:
		return HTTP_CONFLICT
	case MISSION_CAPACITY:
		return HTTP_UNPROCESSABLE
	case REQUEST_INVALID:
		return HTTP_BAD_REQUEST
	case REQUEST_LIMITED:
		return HTTP_TOO_MANY
	case SERVER_FAILURE:
		return HTTP_SERVER_ERR
	default:
		panic(h)
	}
}

func (h ResponseCode) Name() string {
	switch h {
	case MISSION_READY:
		return "MISSION_READY"
	case MISSION_NOT_FOUND:
		return "MISSION_NOT_FOUND"
	case MISSION_NO_SESSION:
		return "MISSION_NO_SESSION"
	case MISSION_INVALID_STATE:
		return "MISSION_INVALID_STATE"
	case MISSION_CAPACITY:
		return "MISSION_CAPACITY"
	case REQUEST_INVALID:
		return "REQUEST_INVALID"
	case REQUEST_LIMITED:
		return "REQUEST_LIMITED"
	case SERVER_FAILURE:
		return "SERVER_FAILURE"
	default:
		return fmt.Sprintf("n/a:%d", h)
	}
}

func (ms MissionState) Name() string {
	switch ms {
	case MS_NEW:
		return "NEW"
	case MS_RUNNING:
		return "RUNNING"
	case MS_COMPLETE:
		return "COMPLETE"
	default:
		return "N/A"
	}
}

func (ws WatcherState) Name() string {
	switch ws {
	case WS_NEW:
		return "NEW"
	case WS_WATCH:
		return "WATCH"
	case WS_GONE:
		return "GONE"
	default:
		return "N/A"
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.WithError(err).Warn("writing response body")
	}
}

// writeError maps err to its status and writes {"error": msg}.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := CodeOf(err)
	entry := log.WithFields(log.Fields{"path": r.URL.Path, "code": code.Name()}).WithError(err)
	if code == SERVER_FAILURE {
		entry.Error("request failed")
	} else {
		entry.Info("request rejected")
	}
	writeJSON(w, code.ToHttp(), model.ErrorResponse{Error: err.Error()})
}
