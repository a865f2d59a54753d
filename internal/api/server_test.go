package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Wesquire/pruuf/internal/breaks"
	"github.com/Wesquire/pruuf/internal/cache"
	"github.com/Wesquire/pruuf/internal/clock"
	"github.com/Wesquire/pruuf/internal/config"
	"github.com/Wesquire/pruuf/internal/lifecycle"
	"github.com/Wesquire/pruuf/internal/location"
	"github.com/Wesquire/pruuf/internal/notify"
	"github.com/Wesquire/pruuf/internal/pruuf"
	"github.com/Wesquire/pruuf/internal/store"
	"github.com/Wesquire/pruuf/internal/streak"
)

type fakeHealth struct {
	err error
}

func (f *fakeHealth) HealthCheck(context.Context) error { return f.err }

type env struct {
	store  *store.Memory
	clock  *clock.Fixed
	health *fakeHealth
	router http.Handler
}

func newEnv(t *testing.T) *env {
	t.Helper()
	mem := store.NewMemory()
	clk := &clock.Fixed{Instant: time.Date(2026, 8, 30, 8, 0, 0, 0, time.UTC)}
	logger := slog.Default()

	scheduler := notify.NewScheduler(mem, mem, clk, logger)
	verifier := location.MaxAccuracy{Meters: config.MaxLocationAccuracyMeters}
	engine := lifecycle.NewEngine(mem, clk, mem, verifier, scheduler, config.DefaultGraceMinutes, logger)
	mgr := breaks.NewManager(mem, engine, scheduler, clk, mem, logger)
	calc := streak.NewCalculator(mem, clk, mem)

	health := &fakeHealth{}
	cfg := &config.Config{
		CORSAllowOrigins: []string{"*"},
		RateLimitEnabled: false,
	}

	router := NewRouter(Deps{
		Engine:  engine,
		Breaks:  mgr,
		Streaks: calc,
		Reads:   mem,
		DB:      health,
		Cache:   cache.New(false),
		Now:     clk.Now,
	}, cfg)

	return &env{store: mem, clock: clk, health: health, router: router}
}

func (e *env) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func (e *env) seedPing(id string, status pruuf.PingStatus) pruuf.Ping {
	scheduled := time.Date(2026, 8, 30, 9, 0, 0, 0, time.UTC)
	p := pruuf.Ping{
		ID:           id,
		ConnectionID: "conn-1",
		SenderID:     "sender-1",
		ReceiverID:   "receiver-1",
		Day:          "2026-08-30",
		ScheduledAt:  scheduled,
		DeadlineAt:   scheduled.Add(90 * time.Minute),
		Status:       status,
	}
	e.store.PutPing(p)
	return p
}

func TestHealthEndpoint(t *testing.T) {
	e := newEnv(t)
	rec := e.do(t, http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body map[string]interface{}
	json.Unmarshal(rec.Body.Bytes(), &body)
	if body["status"] != "healthy" {
		t.Errorf("status field = %v, want healthy", body["status"])
	}
}

func TestHealthDB_Unavailable(t *testing.T) {
	e := newEnv(t)
	e.health.err = errors.New("connection refused")

	rec := e.do(t, http.MethodGet, "/health/db", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}

func TestCompletePing(t *testing.T) {
	e := newEnv(t)
	e.seedPing("ping-1", pruuf.PingPending)

	rec := e.do(t, http.MethodPost, "/api/v1/pings/ping-1/complete", `{"method":"tap"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var body map[string]interface{}
	json.Unmarshal(rec.Body.Bytes(), &body)
	if body["status"] != "completed" {
		t.Errorf("ping status = %v, want completed", body["status"])
	}
	if body["late"] != false {
		t.Errorf("late = %v, want false before the deadline", body["late"])
	}
}

func TestCompletePing_NotFound(t *testing.T) {
	e := newEnv(t)
	rec := e.do(t, http.MethodPost, "/api/v1/pings/missing/complete", `{"method":"tap"}`)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestCompletePing_ExpiredIsGone(t *testing.T) {
	e := newEnv(t)
	e.seedPing("ping-1", pruuf.PingMissed)

	rec := e.do(t, http.MethodPost, "/api/v1/pings/ping-1/complete", `{"method":"tap"}`)
	if rec.Code != http.StatusGone {
		t.Errorf("status = %d, want 410", rec.Code)
	}
}

func TestTodayPings_RequiresSender(t *testing.T) {
	e := newEnv(t)
	rec := e.do(t, http.MethodGet, "/api/v1/pings/today", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestTodayPings_ListsWithDerivedLate(t *testing.T) {
	e := newEnv(t)
	p := e.seedPing("ping-1", pruuf.PingCompleted)
	late := p.DeadlineAt.Add(time.Hour)
	p.CompletedAt = &late
	p.Method = pruuf.MethodTap
	e.store.PutPing(p)

	rec := e.do(t, http.MethodGet, "/api/v1/pings/today?sender_id=sender-1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var body struct {
		Day   string `json:"day"`
		Pings []struct {
			ID   string `json:"id"`
			Late bool   `json:"late"`
		} `json:"pings"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid body: %v", err)
	}
	if body.Day != "2026-08-30" {
		t.Errorf("day = %s, want 2026-08-30", body.Day)
	}
	if len(body.Pings) != 1 || !body.Pings[0].Late {
		t.Errorf("pings = %+v, want one late ping", body.Pings)
	}
}

func TestScheduleBreak_ThenOverlapConflicts(t *testing.T) {
	e := newEnv(t)

	rec := e.do(t, http.MethodPost, "/api/v1/breaks",
		`{"sender_id":"sender-1","start_date":"2026-09-01","end_date":"2026-09-05"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	rec = e.do(t, http.MethodPost, "/api/v1/breaks",
		`{"sender_id":"sender-1","start_date":"2026-09-04","end_date":"2026-09-08"}`)
	if rec.Code != http.StatusConflict {
		t.Errorf("overlap status = %d, want 409", rec.Code)
	}
}

func TestScheduleBreak_BadDate(t *testing.T) {
	e := newEnv(t)
	rec := e.do(t, http.MethodPost, "/api/v1/breaks",
		`{"sender_id":"sender-1","start_date":"09/01/2026","end_date":"2026-09-05"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestCancelBreak_WrongOwner(t *testing.T) {
	e := newEnv(t)
	rec := e.do(t, http.MethodPost, "/api/v1/breaks",
		`{"sender_id":"sender-1","start_date":"2026-09-01","end_date":"2026-09-05"}`)
	var created struct {
		Break struct {
			ID string `json:"id"`
		} `json:"break"`
	}
	json.Unmarshal(rec.Body.Bytes(), &created)

	rec = e.do(t, http.MethodPost, "/api/v1/breaks/"+created.Break.ID+"/cancel",
		`{"sender_id":"sender-2"}`)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404 for foreign break", rec.Code)
	}
}

func TestGetStreak(t *testing.T) {
	e := newEnv(t)
	for offset := 0; offset < 3; offset++ {
		day := pruuf.Date("2026-08-30").AddDays(-offset)
		scheduled := day.StartOfDay(time.UTC).Add(9 * time.Hour)
		done := scheduled.Add(time.Hour)
		e.store.PutPing(pruuf.Ping{
			ID:           "ping-" + day.String(),
			ConnectionID: "conn-1",
			SenderID:     "sender-1",
			ReceiverID:   "receiver-1",
			Day:          day,
			ScheduledAt:  scheduled,
			DeadlineAt:   scheduled.Add(90 * time.Minute),
			Status:       pruuf.PingCompleted,
			CompletedAt:  &done,
			Method:       pruuf.MethodTap,
		})
	}

	rec := e.do(t, http.MethodGet, "/api/v1/streaks/sender-1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var body struct {
		Streak int `json:"streak"`
	}
	json.Unmarshal(rec.Body.Bytes(), &body)
	if body.Streak != 3 {
		t.Errorf("streak = %d, want 3", body.Streak)
	}
}
