package api_test

import (
	"math/rand"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ranklite/backlink-engine/internal/api"
	"github.com/ranklite/backlink-engine/internal/config"
	"github.com/ranklite/backlink-engine/internal/handlers"
	"github.com/ranklite/backlink-engine/internal/ledger"
	"github.com/ranklite/backlink-engine/internal/matching"
	"github.com/ranklite/backlink-engine/internal/placement"
	"github.com/ranklite/backlink-engine/internal/repository"
	"github.com/ranklite/backlink-engine/internal/scheduler"
	"github.com/ranklite/backlink-engine/internal/testhelpers"
	"github.com/ranklite/backlink-engine/internal/throttle"
	"github.com/ranklite/backlink-engine/internal/verification"
	"github.com/ranklite/backlink-engine/internal/worker"
)

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)

	db, _ := testhelpers.NewMockDB(t)
	log := testhelpers.NewTestLogger()

	participants := repository.NewParticipantRepository(db, log)
	links := repository.NewLinkRepository(db, log)
	tasks := repository.NewTaskRepository(db, log)
	creditLedger := ledger.New(db, log)
	velocity := throttle.New(repository.NewUsageRepository(db, log), log, nil)
	plans := throttle.StaticPlanSource{Limits: throttle.PlanLimits{
		DailyBacklinkCap:   cfg.Engine.DailyBacklinkCap,
		MonthlyBacklinkCap: cfg.Engine.MonthlyBacklinkCap,
	}}
	placer := &placement.Recorder{}
	drip := scheduler.NewPlanner(rand.New(rand.NewSource(1)), 9, 17)
	verifier := verification.NewService(
		participants,
		verification.NewMetaTagVerifier(cfg.Engine.VerifyTimeout, log),
		verification.NewDNSVerifier(cfg.Engine.DoHResolver, cfg.Engine.VerifyTimeout, log),
		nil,
		nil,
		log,
	)

	exchange := worker.NewExchangeCycle(
		participants, links, creditLedger, matching.New(3, nil), velocity, plans, placer, nil, log,
	)
	planner := worker.NewPlanner(tasks, velocity, plans, drip, log, nil)
	taskWorker := worker.NewTaskWorker(tasks, velocity, nil, placer, nil, 3, log, nil)

	engineHandler := handlers.NewEngineHandler(exchange, planner, taskWorker, log)
	participantHandler := handlers.NewParticipantHandler(participants, verifier, log)
	creditHandler := handlers.NewCreditHandler(creditLedger, links, log)

	return api.NewRouter(cfg, engineHandler, participantHandler, creditHandler, log)
}

func TestRouter_Health(t *testing.T) {
	router := newTestRouter(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)
}

func TestRouter_UnknownRoute(t *testing.T) {
	router := newTestRouter(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/nope", nil))

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRouter_RejectsMalformedRegistration(t *testing.T) {
	router := newTestRouter(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/participants", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}
