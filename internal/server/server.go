// Package server exposes the HTTP surface: worker callbacks behind a
// shared secret and the public read API.
package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"csgo-tracker/internal/config"
	"csgo-tracker/internal/constants"
	"csgo-tracker/internal/coordinator"
	"csgo-tracker/internal/demo"
	"csgo-tracker/internal/middleware"
	"csgo-tracker/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
)

type Server struct {
	coordinator *coordinator.Coordinator
	profiles    *service.ProfileService
	sharing     *service.SharingService
	ingest      *service.IngestService
	logger      zerolog.Logger
	cfg         *config.Config
}

func New(coord *coordinator.Coordinator, profiles *service.ProfileService, sharing *service.SharingService, ingest *service.IngestService, cfg *config.Config, logger zerolog.Logger) *Server {
	return &Server{
		coordinator: coord,
		profiles:    profiles,
		sharing:     sharing,
		ingest:      ingest,
		logger:      logger,
		cfg:         cfg,
	}
}

// Handler builds the full routing tree with middleware applied.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID(s.logger))

	r.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(middleware.WorkerAuth(s.cfg.WorkerPassword, s.logger))
			r.Post("/worker", s.handleRegisterWorker)
			r.Post("/demo", s.handleDemoResult)
			r.Post("/demo/replay", s.handleReplayUpload)
		})

		r.Get("/profile/{id}", s.handleProfile)
		r.Get("/profile/{id}/matches", s.handleProfileMatches)
		r.Get("/match/{id}", s.handleMatch)
		r.Get("/search", s.handleSearch)
		r.Get("/leaderboard", s.handleLeaderboard)
		r.Post("/steam/link", s.handleLink)
	})

	c := cors.New(cors.Options{
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedHeaders: []string{"Content-Type", "X-Request-ID", middleware.WorkerKeyHeader},
	})
	return c.Handler(r)
}

type registerWorkerRequest struct {
	Address string `json:"address"`
}

func (s *Server) handleRegisterWorker(w http.ResponseWriter, r *http.Request) {
	var req registerWorkerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Address == "" {
		respondError(w, http.StatusBadRequest, "address is required")
		return
	}
	s.coordinator.Register(req.Address)
	respondJSON(w, http.StatusOK, map[string]string{"status": "registered"})
}

type demoResultRequest struct {
	Address string             `json:"address"`
	Match   *demo.MatchPayload `json:"match"` // absent when the replay could not be processed
}

func (s *Server) handleDemoResult(w http.ResponseWriter, r *http.Request) {
	var req demoResultRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Address == "" {
		respondError(w, http.StatusBadRequest, "address is required")
		return
	}
	if err := s.coordinator.Complete(r.Context(), req.Address, req.Match); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to record match")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleReplayUpload decodes an uploaded replay in-process and ingests
// the result, bypassing the worker fleet. Used for manually uploaded
// demos.
func (s *Server) handleReplayUpload(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(io.LimitReader(r.Body, constants.MaxReplayUpload))
	if err != nil {
		respondError(w, http.StatusBadRequest, "failed to read replay body")
		return
	}

	payload, err := demo.Decode(raw)
	if err != nil {
		var decodeErr *demo.DecodeError
		if errors.As(err, &decodeErr) {
			s.logger.Warn().Err(err).Msg("rejecting malformed replay upload")
			respondError(w, http.StatusUnprocessableEntity, decodeErr.Error())
			return
		}
		respondError(w, http.StatusBadRequest, "invalid replay")
		return
	}

	// The replay itself carries no wall-clock date; uploads count from
	// the moment they arrive.
	if payload.Date.IsZero() {
		payload.Date = time.Now()
	}

	if err := s.ingest.SaveMatch(r.Context(), payload); err != nil {
		s.logger.Error().Err(err).Msg("failed to ingest uploaded replay")
		respondError(w, http.StatusInternalServerError, "failed to record match")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok", "map": payload.Map})
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	profile, err := s.profiles.GetProfile(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, service.ErrNotFound) {
		respondError(w, http.StatusNotFound, "player not found")
		return
	}
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to build profile")
		respondError(w, http.StatusInternalServerError, "failed to build profile")
		return
	}
	respondJSON(w, http.StatusOK, profile)
}

func (s *Server) handleProfileMatches(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	history, err := s.profiles.PlayerMatches(r.Context(), chi.URLParam(r, "id"), page)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to load match history")
		respondError(w, http.StatusInternalServerError, "failed to load match history")
		return
	}
	respondJSON(w, http.StatusOK, history)
}

func (s *Server) handleMatch(w http.ResponseWriter, r *http.Request) {
	matchID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "match id must be numeric")
		return
	}
	detail, err := s.profiles.GetMatch(r.Context(), matchID)
	if errors.Is(err, service.ErrNotFound) {
		respondError(w, http.StatusNotFound, "match not found")
		return
	}
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to load match")
		respondError(w, http.StatusInternalServerError, "failed to load match")
		return
	}
	respondJSON(w, http.StatusOK, detail)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	players, err := s.profiles.Search(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		s.logger.Error().Err(err).Msg("search failed")
		respondError(w, http.StatusInternalServerError, "search failed")
		return
	}
	respondJSON(w, http.StatusOK, players)
}

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	board, err := s.profiles.Leaderboard(r.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to load leaderboard")
		respondError(w, http.StatusInternalServerError, "failed to load leaderboard")
		return
	}
	respondJSON(w, http.StatusOK, board)
}

type linkRequest struct {
	PlayerID    string `json:"playerId"`
	SteamID64   string `json:"steamId64"`
	AuthCode    string `json:"authCode"`
	KnownCode   string `json:"knownCode"`
	ProfileLink string `json:"profileLink"`
}

func (s *Server) handleLink(w http.ResponseWriter, r *http.Request) {
	var req linkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.PlayerID == "" || req.SteamID64 == "" || req.AuthCode == "" || req.KnownCode == "" {
		respondError(w, http.StatusBadRequest, "playerId, steamId64, authCode and knownCode are required")
		return
	}

	if err := s.sharing.LinkAccount(r.Context(), req.PlayerID, req.SteamID64, req.AuthCode, req.KnownCode, req.ProfileLink); err != nil {
		if errors.Is(err, service.ErrInvalidCode) {
			respondError(w, http.StatusBadRequest, "knownCode is not a valid sharing code")
			return
		}
		s.logger.Error().Err(err).Str("player", req.PlayerID).Msg("failed to link account")
		respondError(w, http.StatusInternalServerError, "failed to link account")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "linked"})
}

func respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
