package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/freeeve/enclaves/internal/bot"
	"github.com/freeeve/enclaves/internal/config"
	"github.com/freeeve/enclaves/internal/repository"
	"github.com/freeeve/enclaves/internal/repository/sqlite"
	"github.com/freeeve/enclaves/internal/worker"
	"github.com/freeeve/enclaves/pkg/conflict"
)

func main() {
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	var (
		width    int
		height   int
		p1       string
		p2       string
		numGames int
		workers  int
		maxTurns int
		seed     int64
		hazard   float64
		dbPath   string
		dryRun   bool
		jsonOut  bool
		verbose  bool
	)

	flag.IntVar(&width, "w", 4, "Grid width")
	flag.IntVar(&height, "h", 4, "Grid height")
	flag.StringVar(&p1, "p1", "normal", "Player one difficulty (normal, hard, random, hold)")
	flag.StringVar(&p2, "p2", "random", "Player two difficulty")
	flag.IntVar(&numGames, "n", 1, "Number of games to run")
	flag.IntVar(&workers, "workers", 1, "Concurrency (parallel games)")
	flag.IntVar(&maxTurns, "max-turns", 100, "Max turns before draw")
	flag.Int64Var(&seed, "seed", 0, "Base seed (0 = random)")
	flag.Float64Var(&hazard, "hazard", -1, "Per-turn hazard chance (default HAZARD_CHANCE)")
	flag.StringVar(&dbPath, "db", "", "SQLite path (default SQLITE_PATH)")
	flag.BoolVar(&dryRun, "dry-run", false, "Skip database writes")
	flag.BoolVar(&jsonOut, "json", false, "Output results as JSON")
	flag.BoolVar(&verbose, "v", false, "Debug logging")
	flag.Parse()

	if verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}
	engine, err := cfg.Engine()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load event catalogue")
	}
	if hazard < 0 {
		hazard = cfg.HazardChance
	}
	if dbPath == "" {
		dbPath = cfg.SQLitePath
	}
	if seed != 0 {
		bot.SeedBotRng(seed)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle graceful shutdown
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		log.Info().Msg("Shutting down...")
		cancel()
	}()

	var store *sqlite.Store
	var turns repository.TurnRepository
	if !dryRun {
		store, err = sqlite.Open(dbPath)
		if err != nil {
			log.Fatal().Err(err).Str("path", dbPath).Msg("Database open failed")
		}
		defer store.Close()
		turns = store
	}

	label := fmt.Sprintf("%s-vs-%s %dx%d", p1, p2, width, height)
	results := make([]*bot.ArenaResult, numGames)
	var mu sync.Mutex
	var wg sync.WaitGroup
	sem := make(chan struct{}, max(1, workers))
	errCount := 0

	for i := 0; i < numGames; i++ {
		wg.Add(1)
		sem <- struct{}{}

		go func(idx int) {
			defer wg.Done()
			defer func() { <-sem }()

			gameSeed := seed
			if seed != 0 {
				gameSeed = seed + int64(idx)
			}

			// Each game gets its own worker so responses never interleave.
			w := worker.New()
			defer w.Close()

			result, err := bot.RunGame(ctx, bot.ArenaConfig{
				Name:         fmt.Sprintf("%s #%d", label, idx+1),
				Width:        width,
				Height:       height,
				PlayerOne:    p1,
				PlayerTwo:    p2,
				MaxTurns:     maxTurns,
				Seed:         gameSeed,
				HazardChance: hazard,
				Engine:       engine,
			}, w, turns)
			if err != nil {
				log.Error().Err(err).Int("game", idx+1).Msg("Game failed")
				mu.Lock()
				errCount++
				mu.Unlock()
				return
			}

			if store != nil {
				saveMeta(ctx, store, result, gameSeed)
			}

			mu.Lock()
			results[idx] = result
			mu.Unlock()

			log.Info().Int("game", idx+1).Str("outcome", string(result.Outcome)).Int("turns", result.Turns).Msg("Game completed")
		}(i)
	}

	wg.Wait()

	if jsonOut {
		printJSON(results, numGames, errCount)
	} else {
		printSummary(results, label, errCount, dbPath, dryRun)
	}
}

func saveMeta(ctx context.Context, store *sqlite.Store, r *bot.ArenaResult, seed int64) {
	meta := map[string]string{
		r.SessionID + ":name":    r.Name,
		r.SessionID + ":outcome": string(r.Outcome),
		r.SessionID + ":seed":    strconv.FormatInt(seed, 10),
	}
	for k, v := range meta {
		if err := store.SaveMeta(ctx, k, v); err != nil {
			log.Warn().Err(err).Str("key", k).Msg("Failed to save skirmish metadata")
		}
	}
}

func printSummary(results []*bot.ArenaResult, label string, errCount int, dbPath string, dryRun bool) {
	counts := map[conflict.Outcome]int{}
	completed, totalTurns, hazards, limited := 0, 0, 0, 0
	for _, r := range results {
		if r == nil {
			continue
		}
		completed++
		counts[r.Outcome]++
		totalTurns += r.Turns
		hazards += r.Hazards
		if r.TurnLimit {
			limited++
		}
	}

	fmt.Printf("\nResults for %s (%d games):\n", label, completed)
	if errCount > 0 {
		fmt.Printf("  (%d games failed)\n", errCount)
	}
	if completed == 0 {
		return
	}
	fmt.Printf("  player one wins: %d\n", counts[conflict.OutcomeVictory])
	fmt.Printf("  player two wins: %d\n", counts[conflict.OutcomeDefeat])
	fmt.Printf("  draws:           %d (%d at the turn limit)\n", counts[conflict.OutcomeDraw], limited)
	fmt.Printf("  avg turns:       %.1f\n", float64(totalTurns)/float64(completed))
	fmt.Printf("  hazards spawned: %d\n", hazards)

	if !dryRun {
		fmt.Printf("\nTurns saved to %s\n", dbPath)
	}
}

func printJSON(results []*bot.ArenaResult, total, errCount int) {
	out := struct {
		Total   int                `json:"total"`
		Errors  int                `json:"errors"`
		Results []*bot.ArenaResult `json:"results"`
	}{
		Total:   total,
		Errors:  errCount,
		Results: results,
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.Encode(out)
}
