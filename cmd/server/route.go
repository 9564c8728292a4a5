package main

import (
	"net/http"

	"github.com/matryer/way"

	"github.com/zucenko/rescuegrid/server"
)

const (
	URI_GENERATE = "/generate_grid"
	URI_MOVE     = "/move"
	URI_SETUP    = "/setup"
	URI_STATE    = "/state"
	URI_MISSION  = "/missions/:id"
	URI_WS       = "/watch"
	URI_HEALTH   = "/health"

	// API_PREFIX mirrors every route for UIs configured with an /api base URL.
	API_PREFIX = "/api"
)

func (s *Server) routes() {
	s.router = way.NewRouter()
	limit := s.Rescue.Limiter.Limit
	for _, prefix := range []string{"", API_PREFIX} {
		s.router.HandleFunc("POST", prefix+URI_GENERATE, limit(s.Rescue.HandleGenerate()))
		s.router.HandleFunc("POST", prefix+URI_SETUP, limit(s.Rescue.HandleSetup()))
		s.router.HandleFunc("POST", prefix+URI_MOVE, limit(s.Rescue.HandleMove()))
		s.router.HandleFunc("GET", prefix+URI_STATE, s.Rescue.HandleState())
		s.router.HandleFunc("GET", prefix+URI_MISSION, s.Rescue.HandleMission())
		s.router.HandleFunc("GET", prefix+URI_WS, s.Rescue.Hub.HandleWatch())
	}
	s.router.HandleFunc("GET", URI_HEALTH, server.HandleHealth())
}

func (s *Server) handler(origins []string) http.Handler {
	return server.CORS(origins, server.RequestLog(s.router))
}
