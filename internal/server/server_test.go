package server_test

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"csgo-tracker/internal/api"
	"csgo-tracker/internal/config"
	"csgo-tracker/internal/coordinator"
	"csgo-tracker/internal/database"
	"csgo-tracker/internal/demo"
	"csgo-tracker/internal/repository"
	"csgo-tracker/internal/server"
	"csgo-tracker/internal/service"

	"github.com/rs/zerolog"
)

type nopWorkerAPI struct{}

func (nopWorkerAPI) Health(context.Context, string) error            { return nil }
func (nopWorkerAPI) SubmitJob(context.Context, string, string) error { return nil }

type nopSteam struct{}

func (nopSteam) NextCode(context.Context, string, string, string) (string, error) {
	return "", api.ErrNoNewerCode
}

func newTestServer(t *testing.T) (http.Handler, *service.IngestService) {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	if err := database.Migrate(db, zerolog.Nop()); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	log := zerolog.Nop()
	matches := repository.NewMatchRepository(db, log)
	players := repository.NewPlayerRepository(db, log)
	accounts := repository.NewAccountRepository(db, log)
	codes := repository.NewMatchCodeRepository(db, log)

	profiles := service.NewProfileService(players, matches, log)
	ingest := service.NewIngestService(matches, profiles, log)
	coord := coordinator.New(nopWorkerAPI{}, ingest, codes, log)
	sharing := service.NewSharingService(accounts, codes, nopSteam{}, coord, log)

	cfg := &config.Config{WorkerPassword: "hunter2"}
	srv := server.New(coord, profiles, sharing, ingest, cfg, log)
	return srv.Handler(), ingest
}

func seedMatch(t *testing.T, ingest *service.IngestService) {
	t.Helper()
	err := ingest.SaveMatch(context.Background(), &demo.MatchPayload{
		Map:      "Dust II",
		Date:     time.Now().Add(-time.Hour),
		Duration: 1800,
		CTRounds: 16,
		TRounds:  9,
		Winner:   "CT",
		Players: []demo.PlayerResult{{
			SteamID3:  "p1",
			SteamID64: "76561198000000001",
			Name:      "alice",
			Kills:     20,
			Score:     55,
			Side:      "CT",
		}},
	})
	if err != nil {
		t.Fatalf("SaveMatch: %v", err)
	}
}

func TestWorkerRoutesRequireSecret(t *testing.T) {
	handler, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/worker", strings.NewReader(`{"address":"http://w1:3000"}`))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("without secret: status = %d, want 401", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/worker", strings.NewReader(`{"address":"http://w1:3000"}`))
	req.Header.Set("X-Worker-Key", "hunter2")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("with secret: status = %d, want 200", rec.Code)
	}
}

func TestProfileEndpoint(t *testing.T) {
	handler, ingest := newTestServer(t)
	seedMatch(t, ingest)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/profile/p1", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var profile struct {
		Name          string `json:"name"`
		MatchesPlayed int    `json:"matchesPlayed"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &profile); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if profile.Name != "alice" || profile.MatchesPlayed != 1 {
		t.Errorf("profile = %+v, want alice with one match", profile)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/profile/ghost", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown player: status = %d, want 404", rec.Code)
	}
}

func TestMatchEndpoint(t *testing.T) {
	handler, ingest := newTestServer(t)
	seedMatch(t, ingest)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/match/1", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var detail struct {
		Match struct {
			Map string `json:"map"`
		} `json:"match"`
		Scoreboard []json.RawMessage `json:"scoreboard"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &detail); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if detail.Match.Map != "Dust II" || len(detail.Scoreboard) != 1 {
		t.Errorf("match = %+v, want Dust II with one scoreboard line", detail)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/match/notanumber", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad id: status = %d, want 400", rec.Code)
	}
}

func TestSearchAndLeaderboardEndpoints(t *testing.T) {
	handler, ingest := newTestServer(t)
	seedMatch(t, ingest)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/search?q=al", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("search status = %d, want 200", rec.Code)
	}
	var players []struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &players); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(players) != 1 || players[0].ID != "p1" {
		t.Errorf("search = %+v, want p1", players)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/leaderboard", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("leaderboard status = %d, want 200", rec.Code)
	}
}

func TestReplayUploadRejectsGarbage(t *testing.T) {
	handler, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/demo/replay", strings.NewReader("not a replay"))
	req.Header.Set("X-Worker-Key", "hunter2")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("garbage replay: status = %d, want 422", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/demo/replay", strings.NewReader("not a replay"))
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("without secret: status = %d, want 401", rec.Code)
	}
}

func TestLinkInvalidCodeRejected(t *testing.T) {
	handler, _ := newTestServer(t)

	body := `{"playerId":"p1","steamId64":"76561198000000001","authCode":"AAAA-BBBBB-CCCC","knownCode":"not-a-code"}`
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/steam/link", strings.NewReader(body)))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("invalid code: status = %d, want 400", rec.Code)
	}
}

func TestLinkValidation(t *testing.T) {
	handler, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/steam/link",
		strings.NewReader(`{"playerId":"p1"}`)))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("incomplete link: status = %d, want 400", rec.Code)
	}
}
