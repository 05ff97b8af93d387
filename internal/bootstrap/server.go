package bootstrap

import (
	"github.com/ranklite/backlink-engine/internal/api"
	"github.com/ranklite/backlink-engine/internal/config"
	"github.com/ranklite/backlink-engine/internal/database"
	"github.com/ranklite/backlink-engine/internal/events"
	"github.com/ranklite/backlink-engine/internal/handlers"
	"github.com/ranklite/backlink-engine/internal/ledger"
	"github.com/ranklite/backlink-engine/internal/logger"
	"github.com/ranklite/backlink-engine/internal/matching"
	"github.com/ranklite/backlink-engine/internal/placement"
	"github.com/ranklite/backlink-engine/internal/repository"
	"github.com/ranklite/backlink-engine/internal/scheduler"
	"github.com/ranklite/backlink-engine/internal/throttle"
	"github.com/ranklite/backlink-engine/internal/verification"
	"github.com/ranklite/backlink-engine/internal/worker"
)

// Engine holds the wired engine components shared by the HTTP server and
// the cycle daemon.
type Engine struct {
	Participants *repository.ParticipantRepository
	Links        *repository.LinkRepository
	Tasks        *repository.TaskRepository
	Ledger       *ledger.Ledger
	Verifier     *verification.Service
	Exchange     *worker.ExchangeCycle
	Planner      *worker.Planner
	Worker       *worker.TaskWorker
	Maintenance  *worker.Maintenance
}

// SetupEngine wires repositories, the credit ledger, and the work loops.
func SetupEngine(
	cfg *config.Config,
	db *database.DB,
	publisher *events.Publisher,
	log logger.Logger,
) *Engine {
	participantRepo := repository.NewParticipantRepository(db.DB(), log)
	linkRepo := repository.NewLinkRepository(db.DB(), log)
	taskRepo := repository.NewTaskRepository(db.DB(), log)
	usageRepo := repository.NewUsageRepository(db.DB(), log)

	creditLedger := ledger.New(db.DB(), log)
	matcher := matching.New(cfg.Engine.DailyReceiveCap, nil)
	velocity := throttle.New(usageRepo, log, nil)
	plans := throttle.StaticPlanSource{Limits: throttle.PlanLimits{
		DailyBacklinkCap:   cfg.Engine.DailyBacklinkCap,
		MonthlyBacklinkCap: cfg.Engine.MonthlyBacklinkCap,
	}}

	var integrations verification.IntegrationStore
	if cfg.Engine.IntegrationEndpoint != "" {
		integrations = verification.NewHTTPIntegrationStore(
			cfg.Engine.IntegrationEndpoint, cfg.Engine.VerifyTimeout, log,
		)
	}
	verifier := verification.NewService(
		participantRepo,
		verification.NewMetaTagVerifier(cfg.Engine.VerifyTimeout, log),
		verification.NewDNSVerifier(cfg.Engine.DoHResolver, cfg.Engine.VerifyTimeout, log),
		integrations,
		publisher,
		log,
	)

	placer := placement.NewHTTPExecutor(cfg.Engine.PlacementEndpoint, cfg.Engine.PlacementTimeout, log)
	drip := scheduler.NewPlanner(nil, cfg.Engine.DripWindowStart, cfg.Engine.DripWindowEnd)

	return &Engine{
		Participants: participantRepo,
		Links:        linkRepo,
		Tasks:        taskRepo,
		Ledger:       creditLedger,
		Verifier:     verifier,
		Exchange: worker.NewExchangeCycle(
			participantRepo, linkRepo, creditLedger, matcher, velocity, plans, placer, publisher, log,
		),
		Planner: worker.NewPlanner(taskRepo, velocity, plans, drip, log, nil),
		Worker: worker.NewTaskWorker(
			taskRepo, velocity, nil, placer, publisher, cfg.Engine.MaxTaskRetries, log, nil,
		),
		Maintenance: worker.NewMaintenance(
			participantRepo, linkRepo, creditLedger,
			worker.NewHTTPLinkChecker(cfg.Engine.VerifyTimeout, log),
			log, nil,
		),
	}
}

// SetupHTTPServer wires the engine components and creates the HTTP server.
func SetupHTTPServer(
	cfg *config.Config,
	db *database.DB,
	publisher *events.Publisher,
	log logger.Logger,
) *api.Server {
	engine := SetupEngine(cfg, db, publisher, log)

	engineHandler := handlers.NewEngineHandler(engine.Exchange, engine.Planner, engine.Worker, log)
	participantHandler := handlers.NewParticipantHandler(engine.Participants, engine.Verifier, log)
	creditHandler := handlers.NewCreditHandler(engine.Ledger, engine.Links, log)

	router := api.NewRouter(cfg, engineHandler, participantHandler, creditHandler, log)
	return api.NewServer(cfg, router, log)
}
