package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/MJE43/blackjack-policy/internal/api"
	"github.com/MJE43/blackjack-policy/internal/blackjack"
	"github.com/MJE43/blackjack-policy/internal/config"
	"github.com/MJE43/blackjack-policy/internal/dealer"
	"github.com/MJE43/blackjack-policy/internal/engine"
	"github.com/MJE43/blackjack-policy/internal/report"
	"github.com/MJE43/blackjack-policy/internal/scripting"
	"github.com/MJE43/blackjack-policy/internal/seedvault"
	"github.com/MJE43/blackjack-policy/internal/simulate"
	"github.com/MJE43/blackjack-policy/internal/solver"
	"github.com/MJE43/blackjack-policy/internal/store"
	"github.com/MJE43/blackjack-policy/internal/store/boltstore"
)

var errUnknownCommand = errors.New("unknown command")

func run(ctx context.Context, cmd string, args []string, cfg config.Config, log zerolog.Logger, out io.Writer) error {
	if cmd == "seeds" {
		return runSeeds(args, cfg, seedvault.New(seedvault.DefaultService, cfg.SecretsPath), out)
	}

	var fn func(context.Context, []string, config.Config, store.Store, zerolog.Logger, io.Writer) error
	switch cmd {
	case "dealer":
		fn = runDealer
	case "solve":
		fn = runSolve
	case "show":
		fn = runShow
	case "simulate":
		fn = runSimulate
	case "serve":
		fn = runServe
	case "runs":
		fn = runRuns
	default:
		return fmt.Errorf("%w %q", errUnknownCommand, cmd)
	}

	st, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := st.Close(); err != nil {
			log.Error().Err(err).Msg("close store")
		}
	}()
	return fn(ctx, args, cfg, st, log, out)
}

func openStore(ctx context.Context, cfg config.Config, log zerolog.Logger) (store.Store, error) {
	if dir := filepath.Dir(cfg.DBPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}
	switch cfg.Backend {
	case config.BackendBolt:
		return boltstore.Open(cfg.DBPath, log)
	default:
		return store.OpenSQLite(ctx, cfg.DBPath, log)
	}
}

func newSolver(cfg config.Config, log zerolog.Logger) *solver.Solver {
	s := solver.New(log)
	s.Horizon = cfg.Horizon
	s.Tolerance = cfg.Tolerance
	if cfg.Workers > 0 {
		s.Workers = cfg.Workers
	}
	return s
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printDealer(out io.Writer, format string, run store.Run, t dealer.OutcomeTable) error {
	switch format {
	case "csv":
		return report.DealerCSV(out, t)
	case "json":
		return writeJSON(out, struct {
			Run   store.Run          `json:"run"`
			Cells []store.DealerCell `json:"cells"`
		}{run, store.EncodeDealer(t)})
	default:
		return report.DealerTable(out, t)
	}
}

func printPolicy(out io.Writer, format string, run store.Run, p solver.Policy) error {
	switch format {
	case "csv":
		return report.PolicyCSV(out, p)
	case "json":
		return writeJSON(out, struct {
			Run    store.Run     `json:"run"`
			Policy solver.Policy `json:"policy"`
		}{run, p})
	default:
		return report.Policy(out, p)
	}
}

func runDealer(ctx context.Context, _ []string, cfg config.Config, st store.Store, log zerolog.Logger, out io.Writer) error {
	t, err := dealer.NewModel(blackjack.InfiniteDeck(), log).Compute(cfg.Tolerance)
	if err != nil {
		return err
	}
	run, err := st.SaveDealerTable(ctx, t)
	if err != nil {
		return err
	}
	return printDealer(out, cfg.Format, run, t)
}

func loadDealer(ctx context.Context, st store.Store) (dealer.OutcomeTable, error) {
	t, _, err := st.LoadDealerTable(ctx)
	if errors.Is(err, store.ErrNotFound) {
		return t, fmt.Errorf("%w; run the dealer command first", err)
	}
	return t, err
}

func runSolve(ctx context.Context, _ []string, cfg config.Config, st store.Store, log zerolog.Logger, out io.Writer) error {
	t, err := loadDealer(ctx, st)
	if err != nil {
		return err
	}
	J, err := newSolver(cfg, log).Solve(ctx, t)
	if err != nil {
		return err
	}
	p, err := solver.ExtractPolicy(J, cfg.Timestep)
	if err != nil {
		return err
	}
	if cost, err := J.InitialCost(blackjack.InfiniteDeck()); err == nil {
		log.Info().Str("op", "solve_operation").Float64("not_beaten", -cost).Msg("optimal value of a fresh hand")
	}
	run, err := st.SavePolicy(ctx, p)
	if err != nil {
		return err
	}
	return printPolicy(out, cfg.Format, run, p)
}

func runShow(ctx context.Context, args []string, cfg config.Config, st store.Store, _ zerolog.Logger, out io.Writer) error {
	what := "policy"
	if len(args) > 0 {
		what = args[0]
	}
	switch what {
	case "dealer":
		t, run, err := st.LoadDealerTable(ctx)
		if err != nil {
			return err
		}
		return printDealer(out, cfg.Format, run, t)
	case "policy":
		p, run, err := st.LoadPolicy(ctx)
		if err != nil {
			return err
		}
		return printPolicy(out, cfg.Format, run, p)
	}
	return fmt.Errorf("show: want dealer or policy, got %q", what)
}

func runSimulate(ctx context.Context, _ []string, cfg config.Config, st store.Store, log zerolog.Logger, out io.Writer) error {
	if cfg.Hands == 0 {
		return fmt.Errorf("hands must be at least 1")
	}
	t, err := loadDealer(ctx, st)
	if err != nil {
		return err
	}
	J, err := newSolver(cfg, log).Solve(ctx, t)
	if err != nil {
		return err
	}

	seeds, err := simulationSeeds(cfg, seedvault.New(seedvault.DefaultService, cfg.SecretsPath))
	if err != nil {
		return err
	}

	var policy simulate.Policy = J
	if cfg.ScriptPath != "" {
		src, err := os.ReadFile(cfg.ScriptPath)
		if err != nil {
			return fmt.Errorf("read script: %w", err)
		}
		if policy, err = scripting.Load(string(src), J); err != nil {
			return err
		}
		log.Info().Str("op", "simulate_operation").Str("script", cfg.ScriptPath).Msg("simulating scripted strategy")
	}

	sim := simulate.New(log)
	if cfg.Workers > 0 {
		sim.Workers = cfg.Workers
	}
	req := simulate.Request{
		Seeds:      seeds,
		NonceStart: cfg.NonceStart,
		NonceEnd:   cfg.NonceStart + cfg.Hands - 1,
		TimeoutMs:  int(cfg.SimTimeout.Milliseconds()),
	}
	summary, err := sim.Run(ctx, req, policy)
	if err != nil && !errors.Is(err, simulate.ErrTimeout) {
		return err
	}
	if cfg.Format == "json" {
		if werr := writeJSON(out, summary); werr != nil {
			return werr
		}
	} else if werr := report.Summary(out, *summary); werr != nil {
		return werr
	}
	return err
}

func runServe(ctx context.Context, _ []string, cfg config.Config, st store.Store, log zerolog.Logger, _ io.Writer) error {
	srv := api.NewServer(st, cfg.HTTPAddr, cfg.RequestTimeout, log)
	if err := srv.Start(); err != nil {
		return err
	}
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	log.Info().Str("op", "api_operation").Msg("shutting down")
	return srv.Shutdown(shutdownCtx)
}

func runRuns(ctx context.Context, args []string, cfg config.Config, st store.Store, _ zerolog.Logger, out io.Writer) error {
	var kind store.Kind
	if len(args) > 0 {
		var err error
		if kind, err = store.ParseKind(args[0]); err != nil {
			return err
		}
	}
	runs, err := st.ListRuns(ctx, kind, cfg.RunsLimit)
	if err != nil {
		return err
	}
	if cfg.Format == "json" {
		return writeJSON(out, runs)
	}
	return report.Runs(out, runs)
}

// simulationSeeds prefers seeds given on the command line and falls back to
// the stored profile.
func simulationSeeds(cfg config.Config, vault *seedvault.Vault) (engine.Seeds, error) {
	if cfg.ServerSeed != "" || cfg.SeedProfile == "" {
		return engine.Seeds{Server: cfg.ServerSeed, Client: cfg.ClientSeed}, nil
	}
	seeds, err := vault.Load(cfg.SeedProfile)
	if err != nil {
		return engine.Seeds{}, fmt.Errorf("seed profile %q: %w", cfg.SeedProfile, err)
	}
	if cfg.ClientSeed != "" {
		seeds.Client = cfg.ClientSeed
	}
	return seeds, nil
}

// runSeeds handles "seeds save|show|delete <profile>".
func runSeeds(args []string, cfg config.Config, vault *seedvault.Vault, out io.Writer) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: seeds save|show|delete <profile>")
	}
	action, profile := args[0], args[1]
	switch action {
	case "save":
		return vault.Save(profile, engine.Seeds{Server: cfg.ServerSeed, Client: cfg.ClientSeed})
	case "show":
		seeds, err := vault.Load(profile)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(out, "profile      %s\nserver hash  %s\nclient seed  %s\n", profile, seedvault.ServerSeedHash(seeds), seeds.Client)
		return err
	case "delete":
		return vault.Delete(profile)
	}
	return fmt.Errorf("seeds: unknown action %q", action)
}
