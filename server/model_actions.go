package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/matryer/way"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/zucenko/rescuegrid/config"
	"github.com/zucenko/rescuegrid/engine"
	"github.com/zucenko/rescuegrid/model"
)

const maxBody = 1 << 16

var tracer = otel.Tracer("github.com/zucenko/rescuegrid/server")

func NewRescueServer(cfg *config.Config) (*RescueServer, error) {
	archive, err := NewArchive(cfg.Server.ArchiveSize)
	if err != nil {
		return nil, err
	}
	return &RescueServer{
		Session:  engine.NewSession(),
		defaults: cfg.Mission,
		Archive:  archive,
		Hub:      NewHub(cfg.Server.HubTimeout, cfg.Server.WatcherBuffer),
		Limiter:  NewRateLimiter(cfg.Server.RateLimitRPM, cfg.Server.RateLimitBurst),
	}, nil
}

func (s *RescueServer) Close() {
	s.Limiter.Close()
}

// SetDefaults swaps the mission defaults; the active mission is not touched.
func (s *RescueServer) SetDefaults(m config.MissionConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.defaults = m
	log.WithFields(log.Fields{"size": m.Size, "exits": m.Exits, "min_free": m.MinFree, "max_size": m.MaxSize}).
		Info("mission defaults updated")
}

func (s *RescueServer) Defaults() config.MissionConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.defaults
}

func (s *RescueServer) params(req model.GenerateRequest) (engine.Params, error) {
	p := engine.Params{
		Size:      req.Size,
		Agents:    req.NumAgents,
		Survivors: req.NumSurvivors,
		Obstacles: req.NumObstacles,
		Exits:     req.Exits,
		MinFree:   s.defaults.MinFree,
	}
	if p.Size == 0 {
		p.Size = s.defaults.Size
	}
	if p.Exits == 0 {
		p.Exits = s.defaults.Exits
	}
	if p.Size > s.defaults.MaxSize {
		return p, fmt.Errorf("%w: size %d exceeds the maximum of %d", engine.ErrInvalidParams, p.Size, s.defaults.MaxSize)
	}
	return p, nil
}

// Generate lays out a new mission and makes it the active one. When it
// fails the previous mission stays active and untouched.
func (s *RescueServer) Generate(ctx context.Context, req model.GenerateRequest, legacy bool) (*Mission, *engine.View, error) {
	_, span := tracer.Start(ctx, "mission.generate")
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	fail := func(err error) (*Mission, *engine.View, error) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, nil, err
	}
	p, err := s.params(req)
	if err != nil {
		return fail(err)
	}
	seed := engine.ResolveSeed(req.Seed)
	span.SetAttributes(
		attribute.Int64("seed", seed),
		attribute.Int("size", p.Size),
		attribute.Int("agents", p.Agents),
		attribute.Int("survivors", p.Survivors),
		attribute.Int("obstacles", p.Obstacles),
	)
	g, agents, err := engine.Generate(engine.NewRand(seed), p)
	if err != nil {
		return fail(err)
	}
	if err := s.Session.Reset(g, agents); err != nil {
		return fail(err)
	}
	v, err := s.Session.Snapshot()
	if err != nil {
		return fail(err)
	}

	m := &Mission{
		ID:      uuid.NewString(),
		Seed:    seed,
		Params:  p,
		State:   MS_NEW,
		Legacy:  legacy,
		Created: time.Now(),
	}
	s.Mission = m
	span.SetAttributes(attribute.String("mission.id", m.ID))
	s.record()
	s.Hub.Publish(model.Frame{Type: model.FRAME_GENERATE, StateResponse: model.NewStateResponse(m.ID, v)})
	log.WithFields(log.Fields{"mission": m.ID, "seed": seed, "size": p.Size, "legacy": legacy}).Info("mission generated")
	return m, v, nil
}

// Move runs one tick of the active mission, for every agent or only for
// agentID when it is set.
func (s *RescueServer) Move(ctx context.Context, agentID *int) (*Mission, *engine.View, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var v *engine.View
	var err error
	if agentID == nil {
		v, err = s.Session.Tick(ctx)
	} else {
		v, err = s.Session.TickAgent(ctx, *agentID)
	}
	if err != nil {
		return nil, nil, err
	}

	m := s.Mission
	if v.Complete {
		m.State = MS_COMPLETE
	} else {
		m.State = MS_RUNNING
	}
	s.record()
	s.Hub.Publish(model.Frame{Type: model.FRAME_TICK, StateResponse: model.NewStateResponse(m.ID, v)})
	return m, v, nil
}

// State returns the active mission as it stands.
func (s *RescueServer) State() (*Mission, *engine.View, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, err := s.Session.Snapshot()
	if err != nil {
		return nil, nil, err
	}
	return s.Mission, v, nil
}

func (s *RescueServer) record() {
	r, err := s.Session.Report()
	if err != nil {
		log.WithError(err).Warn("no report for the active mission")
		return
	}
	m := s.Mission
	s.Archive.Put(model.NewMissionReport(m.ID, m.Seed, m.Params.Size, m.Params.Agents, r))
}

func decode(r *http.Request, out any, optional bool) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBody))
	if err := dec.Decode(out); err != nil {
		if optional && errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrBadRequest, err)
	}
	return nil
}

func (s *RescueServer) HandleGenerate() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req model.GenerateRequest
		if err := decode(r, &req, false); err != nil {
			writeError(w, r, err)
			return
		}
		m, v, err := s.Generate(r.Context(), req, false)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, HTTP_SUCCESS, model.GenerateResponse{
			MissionID:   m.ID,
			Seed:        m.Seed,
			Grid:        model.NewGridView(v.Grid, v.Agents),
			AgentStates: model.NewAgentStates(v.Agents),
		})
	}
}

// HandleSetup is generate for the legacy UI, answering with a symbol matrix.
func (s *RescueServer) HandleSetup() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req model.GenerateRequest
		if err := decode(r, &req, false); err != nil {
			writeError(w, r, err)
			return
		}
		m, v, err := s.Generate(r.Context(), req, true)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, HTTP_SUCCESS, model.NewLegacySetupResponse(m.ID, v))
	}
}

func (s *RescueServer) HandleMove() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req model.MoveRequest
		if err := decode(r, &req, true); err != nil {
			writeError(w, r, err)
			return
		}
		if req.AgentID == nil {
			m, v, err := s.Move(r.Context(), nil)
			if err != nil {
				writeError(w, r, err)
				return
			}
			writeJSON(w, HTTP_SUCCESS, model.NewStateResponse(m.ID, v))
			return
		}

		id := int(*req.AgentID)
		m, v, err := s.Move(r.Context(), &id)
		if err != nil {
			writeError(w, r, err)
			return
		}
		a := v.Agent(id)
		if m.Legacy {
			writeJSON(w, HTTP_SUCCESS, model.LegacyMoveResponse{
				LegacySetupResponse: model.NewLegacySetupResponse(m.ID, v),
				Position:            model.NewCoord(a.Position),
				Completed:           a.Completed,
				TotalTime:           a.Steps,
			})
			return
		}
		writeJSON(w, HTTP_SUCCESS, model.AgentMoveResponse{
			StateResponse: model.NewStateResponse(m.ID, v),
			Position:      model.NewCoord(a.Position),
			Completed:     a.Completed,
			TotalTime:     a.Steps,
		})
	}
}

func (s *RescueServer) HandleState() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		m, v, err := s.State()
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, HTTP_SUCCESS, model.NewStateResponse(m.ID, v))
	}
}

func (s *RescueServer) HandleMission() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report, err := s.Archive.Get(way.Param(r.Context(), "id"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, HTTP_SUCCESS, report)
	}
}

func HandleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("OK"))
	}
}
