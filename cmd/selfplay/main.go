// Command selfplay runs AI-vs-AI tic-tac-toe games through the full move
// pipeline in process and prints a win/loss/draw tally per strategy.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/gametable/gametable/internal/ai"
	"github.com/gametable/gametable/internal/lock"
	"github.com/gametable/gametable/internal/registry"
	"github.com/gametable/gametable/internal/repository/memory"
	"github.com/gametable/gametable/internal/service"
	"github.com/gametable/gametable/pkg/game"
	"github.com/gametable/gametable/pkg/games/tictactoe"
)

type gameResult struct {
	GameID string `json:"gameId"`
	Winner string `json:"winner"` // strategy id, "" for a draw
	Moves  int    `json:"moves"`
}

func main() {
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	var (
		numGames   int
		workers    int
		seed       int64
		strategies string
		jsonOut    bool
	)

	flag.IntVar(&numGames, "n", 1, "Number of games to run")
	flag.IntVar(&workers, "workers", 1, "Concurrency (parallel games)")
	flag.Int64Var(&seed, "seed", 0, "RNG seed (0 = random; reproducible with -workers 1)")
	flag.StringVar(&strategies, "strategies", "tactical-vs-random", "Matchup x-vs-o (e.g. tactical-vs-random)")
	flag.BoolVar(&jsonOut, "json", false, "Output results as JSON")
	flag.Parse()

	stratX, stratO, err := parseMatchup(strategies)
	if err != nil {
		log.Fatal().Err(err).Str("strategies", strategies).Msg("Bad matchup")
	}
	if seed != 0 {
		ai.SeedAIRng(seed)
	}

	// In-process stack: memory store, no subscribers.
	engines := registry.New()
	if err := engines.Register(tictactoe.New()); err != nil {
		log.Fatal().Err(err).Msg("Engine registration failed")
	}
	repo := memory.NewStore()
	locks := lock.NewManager()
	driver := ai.NewDriver()
	gameSvc := service.NewGameService(repo, engines, locks, nil)
	moveSvc := service.NewMoveService(repo, engines, locks, nil, driver)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		log.Info().Msg("Shutting down...")
		cancel()
	}()

	results := make([]*gameResult, numGames)
	var mu sync.Mutex
	var wg sync.WaitGroup
	sem := make(chan struct{}, workers)
	errCount := 0

	for i := 0; i < numGames; i++ {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		sem <- struct{}{}

		go func(idx int) {
			defer wg.Done()
			defer func() { <-sem }()

			result, err := runGame(ctx, gameSvc, moveSvc, driver, engines, stratX, stratO)
			if err != nil {
				log.Error().Err(err).Int("game", idx+1).Msg("Game failed")
				mu.Lock()
				errCount++
				mu.Unlock()
				return
			}

			mu.Lock()
			results[idx] = result
			mu.Unlock()

			log.Info().Int("game", idx+1).Str("winner", result.Winner).Int("moves", result.Moves).Msg("Game completed")
		}(i)
	}

	wg.Wait()

	if jsonOut {
		printJSON(results, numGames, errCount)
	} else {
		printSummary(results, stratX, stratO, errCount)
	}
}

// runGame creates one AI-vs-AI game and pushes it to completion through the
// real pipeline: each submitted move triggers the AI chain for the replies.
func runGame(ctx context.Context, gameSvc *service.GameService, moveSvc *service.MoveService, driver *ai.Driver, engines *registry.Registry, stratX, stratO string) (*gameResult, error) {
	st, err := gameSvc.CreateGame(ctx, service.CreateGameInput{
		GameType: "tictactoe",
		Config: map[string]any{
			"aiPlayers": []any{
				map[string]any{"name": "X", "strategyId": stratX},
				map[string]any{"name": "O", "strategyId": stratO},
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create game: %w", err)
	}

	eng, _ := engines.Get(st.GameType)
	strategyBySeat := map[string]string{
		st.Players[0].ID: stratX,
		st.Players[1].ID: stratO,
	}

	// The chain only runs after a submitted move, so each round we generate
	// the current seat's move and submit it; the opponent answers inside the
	// same call.
	for st.Lifecycle == game.LifecycleActive {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		pid := eng.CurrentPlayer(st)
		if pid == "" {
			return nil, fmt.Errorf("game %s active with no current player", st.GameID)
		}
		mv, err := driver.GenerateMove(ctx, st, eng, pid)
		if err != nil {
			return nil, fmt.Errorf("generate move: %w", err)
		}
		st, err = moveSvc.ApplyMove(ctx, st.GameID, pid, mv, st.Version)
		if err != nil {
			return nil, fmt.Errorf("apply move: %w", err)
		}
	}

	if st.Lifecycle != game.LifecycleCompleted {
		return nil, fmt.Errorf("game %s ended in lifecycle %s", st.GameID, st.Lifecycle)
	}
	return &gameResult{
		GameID: st.GameID,
		Winner: strategyBySeat[st.Winner],
		Moves:  len(st.MoveHistory),
	}, nil
}

// parseMatchup splits "x-vs-o" into the two strategy ids; a bare id plays
// both seats.
func parseMatchup(s string) (string, string, error) {
	if s == "" {
		return "", "", fmt.Errorf("empty matchup")
	}
	parts := strings.SplitN(s, "-vs-", 2)
	if len(parts) == 1 {
		return parts[0], parts[0], nil
	}
	if parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("matchup needs a strategy on both sides")
	}
	return parts[0], parts[1], nil
}

func printSummary(results []*gameResult, stratX, stratO string, errCount int) {
	var xWins, oWins, draws, completed, totalMoves int
	for _, r := range results {
		if r == nil {
			continue
		}
		completed++
		totalMoves += r.Moves
		switch r.Winner {
		case "":
			draws++
		case stratX:
			xWins++
		default:
			oWins++
		}
	}

	fmt.Printf("\nResults (%d games):\n", completed)
	if errCount > 0 {
		fmt.Printf("  (%d games failed)\n", errCount)
	}
	fmt.Printf("  X %-10s  %d wins\n", "("+stratX+"):", xWins)
	fmt.Printf("  O %-10s  %d wins\n", "("+stratO+"):", oWins)
	fmt.Printf("  draws:          %d\n", draws)
	if completed > 0 {
		fmt.Printf("  avg moves:      %.1f\n", float64(totalMoves)/float64(completed))
	}
}

func printJSON(results []*gameResult, total, errCount int) {
	out := struct {
		Total   int           `json:"total"`
		Errors  int           `json:"errors"`
		Results []*gameResult `json:"results"`
	}{
		Total:   total,
		Errors:  errCount,
		Results: results,
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.Encode(out)
}
