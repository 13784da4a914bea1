// Command worldsim is the composition root: load configuration and the
// world's JSON description, wire the LLM client, state store, webhook
// notifier and Control API around one Engine, then run until signalled.
// Grounded on the teacher's main.go: .env load, config-from-env, client
// construction via functional options, run-scoped logging, and a long-lived
// run call guarded by a panic recoverer.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path"
	"syscall"

	"github.com/worldsim/worldsim/internal/apiserver"
	"github.com/worldsim/worldsim/internal/config"
	"github.com/worldsim/worldsim/internal/engine"
	"github.com/worldsim/worldsim/internal/llm"
	"github.com/worldsim/worldsim/internal/llm/openai"
	"github.com/worldsim/worldsim/internal/logging"
	"github.com/worldsim/worldsim/internal/store"
	"github.com/worldsim/worldsim/internal/webhook"
)

func main() {
	env, err := config.LoadEnv()
	if err != nil {
		panic(fmt.Sprintf("load environment: %v", err))
	}

	rl, err := logging.NewRunLogs(logging.Config{
		BaseDir:        path.Join(env.LogDir),
		AlsoToStderr:   true,
		EnableDebugLog: true,
	})
	if err != nil {
		panic(fmt.Sprintf("create run logger: %v", err))
	}
	defer func() { _ = rl.Close() }()
	defer logging.RecoverAndLog(rl.Log, rl.Sync)

	decideMode := engine.DecideModeRule
	if env.DecideMode == "llm" {
		decideMode = engine.DecideModeLLM
	}

	world, err := config.LoadWorld(env.WorldDir, decideMode)
	if err != nil {
		panic(fmt.Sprintf("load world: %v", err))
	}

	var gateway llm.Gateway
	if env.LLMAPIKey != "" {
		opts := []openai.ClientOpt{openai.WithAPIKey(env.LLMAPIKey), openai.WithLogger(rl.Log)}
		if env.LLMBaseURL != "" {
			opts = append(opts, openai.WithURL(env.LLMBaseURL))
		}
		if env.LLMModel != "" {
			opts = append(opts, openai.WithTextModel(env.LLMModel))
		}
		gateway = openai.New(opts...)
	} else if decideMode == engine.DecideModeLLM {
		rl.Log.Warn("decide_mode_llm_without_api_key", "fallback", "rule")
		decideMode = engine.DecideModeRule
		world.Engine.DecideMode = engine.DecideModeRule
	}

	notifier := webhook.New(env.ErrorWebhookURL, rl.Log)

	deps := engine.Deps{
		Store:    store.New(),
		Gateway:  gateway,
		Notifier: notifier,
	}

	eng := engine.New(rl.Log)
	if _, err := eng.Initialize(world.Engine, deps, world.Maps, world.Characters, world.NPCs, world.StartMapID, world.StartTime); err != nil {
		panic(fmt.Sprintf("initialize engine: %v", err))
	}

	if err := eng.Start(); err != nil {
		panic(fmt.Sprintf("start engine: %v", err))
	}

	eng.SubscribeToLogs(func(entry engine.ActivityLogEntry) {
		rl.Log.Info("activity",
			"kind", string(entry.Kind),
			"characterId", entry.CharacterID,
			"characterName", entry.CharacterName,
		)
	})

	httpServer := &http.Server{
		Addr:    env.HTTPAddr,
		Handler: apiserver.New(eng, rl.Log).Handler(),
	}

	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			rl.Log.Error("http_server_failed", "error", err.Error())
		}
	}()

	rl.Log.Info("worldsim_started", "addr", env.HTTPAddr, "decideMode", string(decideMode))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	rl.Log.Info("worldsim_stopping")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), webhook.DefaultTimeout)
	defer cancel()
	_ = httpServer.Shutdown(shutdownCtx)

	if err := eng.Stop(); err != nil {
		rl.Log.Error("engine_stop_failed", "error", err.Error())
	}
}
