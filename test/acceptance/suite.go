package acceptance

import (
	"context"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/orb-community/orb-acceptance/internal/config"
	"github.com/orb-community/orb-acceptance/internal/diag"
	"github.com/orb-community/orb-acceptance/internal/fleetdb"
	"github.com/orb-community/orb-acceptance/internal/infra"
	"github.com/orb-community/orb-acceptance/internal/orb"
	"github.com/orb-community/orb-acceptance/internal/steps"
)

// Options narrows the scenarios of a run.
type Options struct {
	LabelFilter string
	Focus       []string
}

var (
	cfg      config.Configuration
	client   *orb.Client
	recorder *diag.Recorder
	observer *diag.Observer
	stack    *infra.AgentStack
	fleet    *fleetdb.Reader
)

// Run executes the scenarios and reports whether all of them passed.
func Run(c config.Configuration, opts Options) bool {
	cfg = c

	suiteConfig, reporterConfig := GinkgoConfiguration()
	suiteConfig.LabelFilter = opts.LabelFilter
	suiteConfig.FocusStrings = opts.Focus

	RegisterFailHandler(Fail)
	return RunSpecs(&testing.T{}, "Orb Acceptance Suite", suiteConfig, reporterConfig)
}

var _ = BeforeSuite(func() {
	ctx := context.Background()

	var exchanges chan diag.Exchange
	recorder, exchanges = diag.NewRecorder(orb.NewTransport(cfg.Orb.VerifyTLS), 256)
	observer = diag.NewObserver(exchanges, 50)

	client = orb.NewClient(cfg.Orb.URL, cfg.Credentials.Email, cfg.Credentials.Password,
		orb.WithTransport(recorder),
		orb.WithTimeout(cfg.Timeouts.Request),
	)
	Expect(client.Login(ctx)).To(Succeed(), "failed to log in to orb")

	runner, err := infra.NewPodmanRunner(cfg.Podman.Socket)
	Expect(err).ToNot(HaveOccurred(), "failed to connect to podman")
	stack = infra.NewAgentStack(runner, cfg)

	if cfg.FleetDB.DSN != "" {
		fleet, err = fleetdb.Open(ctx, cfg.FleetDB.DSN)
		Expect(err).ToNot(HaveOccurred(), "failed to open the fleet database")
	}

	GinkgoWriter.Printf("Running against %s with agent image %s\n", cfg.Orb.URL, cfg.Agent.Image)
})

var _ = AfterSuite(func() {
	if fleet != nil {
		_ = fleet.Close()
	}
	if observer != nil {
		observer.Close()
	}
	if recorder != nil {
		recorder.Close()
	}
})

// newWorld builds the state of one scenario and registers its cleanup.
func newWorld() *steps.World {
	opts := []steps.Option{steps.WithObserver(observer)}
	if fleet != nil {
		opts = append(opts, steps.WithFleetDB(fleet))
	}
	world := steps.NewWorld(cfg, client, stack, opts...)

	DeferCleanup(func(ctx SpecContext) {
		if !cfg.Cleanup.Enabled {
			GinkgoWriter.Println("Keeping containers and resources (cleanup disabled)")
			return
		}
		if err := world.Cleanup(ctx); err != nil {
			zap.S().Warnw("cleanup failed", "error", err)
		}
	})
	return world
}
