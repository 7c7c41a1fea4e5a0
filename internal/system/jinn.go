// Package system wires jinn's components together. Build is the one place
// where the store, the LLM client and the services on top of them are
// constructed, so the CLI and the HTTP server share the same wiring.
package system

import (
	"context"
	"errors"
	"fmt"

	"jinn/internal/api"
	"jinn/internal/auth"
	"jinn/internal/config"
	"jinn/internal/incantation"
	"jinn/internal/llm"
	"jinn/internal/logging"
	"jinn/internal/mishap"
	"jinn/internal/sandbox"
	"jinn/internal/speech"
	"jinn/internal/store"
	"jinn/internal/synthesis"
	"jinn/internal/types"
	"jinn/internal/wish"
)

// Jinn is a fully wired instance.
type Jinn struct {
	Config   *config.Config
	Store    *store.Store
	LLM      types.LLMClient
	Executor *sandbox.Executor
	Gateway  *synthesis.Gateway
	Registry *incantation.Registry
	Ledger   *mishap.Ledger
	Resolver *wish.Resolver
	Auth     *auth.Authenticator
	Speech   *speech.Gemini // nil when disabled
}

// Build opens the store and constructs every service from cfg.
func Build(ctx context.Context, cfg *config.Config) (*Jinn, error) {
	timer := logging.StartTimer(logging.CategoryBoot, "build")
	defer timer.Stop()

	// 1. Store
	st, err := store.Open(cfg.Store.Driver, cfg.Store.Path)
	if err != nil {
		return nil, err
	}
	j := &Jinn{Config: cfg, Store: st}

	// 2. LLM collaborator. The model is read from the store on every call so
	// an administrator can switch it at runtime.
	fallback := cfg.LLM.Model
	resolver := func(ctx context.Context) string {
		return st.ConfigString(ctx, store.KeyModel, fallback)
	}
	client, gemini, err := llm.NewClientFromConfig(ctx, cfg, resolver)
	if err != nil {
		j.Close()
		return nil, err
	}
	j.LLM = client

	// 3. Sandbox and synthesis
	j.Executor, err = sandbox.NewExecutor(sandbox.Options{
		AllowedPackages: cfg.Sandbox.AllowedPackages,
		Timeout:         cfg.GetExecuteTimeout(),
		CacheSize:       cfg.Sandbox.CacheSize,
	})
	if err != nil {
		j.Close()
		return nil, err
	}
	j.Gateway = synthesis.NewGateway(client, j.Executor, cfg.Sandbox.AllowedPackages)

	// 4. Domain services
	j.Registry = incantation.NewRegistry(st, j.Gateway, j.Executor)
	j.Ledger = mishap.NewLedger(st, j.Registry, j.Gateway)
	j.Resolver = wish.NewResolver(client, j.Registry, j.Ledger)

	// 5. Authentication
	sessions, err := auth.NewSessions(cfg.Server.SessionSecret, cfg.GetSessionTTL())
	if err != nil {
		j.Close()
		return nil, err
	}
	if cfg.Server.SessionSecret == "" {
		logging.BootWarn("No session secret configured; sessions will not survive a restart")
	}
	j.Auth = auth.NewAuthenticator(st, sessions)

	if cfg.Bootstrap.AdminMoniker != "" && cfg.Bootstrap.AdminPassword != "" {
		if _, err := j.Auth.Provision(ctx, cfg.Bootstrap.AdminMoniker, cfg.Bootstrap.AdminPassword); err != nil {
			j.Close()
			return nil, fmt.Errorf("failed to provision administrator %s: %w", cfg.Bootstrap.AdminMoniker, err)
		}
	}

	// 6. Speech shares the GenAI client
	if cfg.Speech.Enabled && gemini != nil {
		j.Speech = speech.NewGemini(gemini.GenAI(), speech.Options{
			TranscribeModel: cfg.Speech.TranscribeModel,
			VoiceModel:      cfg.Speech.VoiceModel,
			Voice:           cfg.Speech.Voice,
		})
	}

	logging.Boot("jinn ready: store=%s sandbox packages=%d speech=%v",
		st.Path(), len(cfg.Sandbox.AllowedPackages), j.Speech != nil)
	return j, nil
}

// Server returns the HTTP API bound to this instance.
func (j *Jinn) Server() *api.Server {
	deps := api.Deps{
		Store:          j.Store,
		Auth:           j.Auth,
		Registry:       j.Registry,
		Ledger:         j.Ledger,
		Resolver:       j.Resolver,
		LogFile:        j.Config.Logging.File,
		MaxUploadBytes: j.Config.Server.MaxUploadBytes,
	}
	if j.Speech != nil {
		deps.Transcriber = j.Speech
		deps.Voice = j.Speech
	}
	return api.NewServer(deps)
}

// Principal looks up a principal by moniker for CLI use.
func (j *Jinn) Principal(ctx context.Context, moniker string) (*store.Principal, error) {
	p, err := j.Store.PrincipalByMoniker(ctx, moniker)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, fmt.Errorf("%w: no principal named %q", types.ErrUnauthorized, moniker)
	}
	return p, auth.Authorize(p)
}

// Close releases resources held by the instance.
func (j *Jinn) Close() error {
	if j == nil {
		return nil
	}
	var errs []error
	if j.Store != nil {
		if err := j.Store.Close(); err != nil {
			errs = append(errs, err)
		}
		j.Store = nil
	}
	return errors.Join(errs...)
}

// LoggingOptions maps the logging section onto logging.Options.
func LoggingOptions(cfg *config.Config) logging.Options {
	return logging.Options{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		File:       cfg.Logging.File,
		Categories: cfg.Logging.Categories,
	}
}
