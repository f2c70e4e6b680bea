package main

import (
	"fmt"

	"github.com/coder/quartz"

	"github.com/openfelt/cardroom/cmd/cardroom/shared"
	"github.com/openfelt/cardroom/internal/ledger"
	"github.com/openfelt/cardroom/internal/server"
)

// ServerCmd runs the cardroom server.
type ServerCmd struct {
	Config   string `kong:"default='cardroom.hcl',help='Path to HCL configuration file'"`
	AuditLog string `kong:"help='Ledger audit trail destination (path, empty for stderr, discard to disable)'"`
	LogLevel string `kong:"help='Override the configured log level'"`
}

func (c *ServerCmd) Run() error {
	cfg, err := server.Load(c.Config)
	if err != nil {
		return err
	}
	if c.LogLevel != "" {
		cfg.Server.LogLevel = c.LogLevel
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger := shared.SetupLogger(cfg.Server.LogLevel)
	auditLog, closer, err := shared.SetupAuditLogger(c.AuditLog)
	if err != nil {
		return err
	}
	if closer != nil {
		defer closer.Close()
	}

	logger.Info("starting cardroom server",
		"addr", cfg.ListenAddress(),
		"tables", len(cfg.Tables),
		"ranked", cfg.Feed != nil,
		"version", version,
	)

	ctx := shared.SetupSignalHandler(logger)

	svc := server.NewService(cfg, logger, auditLog, quartz.NewReal())
	if err := svc.Start(ctx); err != nil {
		return err
	}

	srv := server.NewServer(cfg, logger, svc)
	if err := srv.Serve(ctx); err != nil {
		return err
	}
	return svc.Wait()
}

// CheckConfigCmd validates a configuration file without starting.
type CheckConfigCmd struct {
	Config string `kong:"arg='',default='cardroom.hcl',help='Path to HCL configuration file'"`
}

func (c *CheckConfigCmd) Run() error {
	cfg, err := server.Load(c.Config)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	fmt.Printf("%s: ok (%d tables, ranked=%v)\n", c.Config, len(cfg.Tables), cfg.Feed != nil)
	return nil
}

// SolveCmd brute-forces a withdrawal challenge nonce, mostly for
// poking at a local server by hand.
type SolveCmd struct {
	Seed       string `kong:"arg='',help='Challenge seed'"`
	Difficulty int    `kong:"default='5',help='Leading zero hex digits required'"`
}

func (c *SolveCmd) Run() error {
	nonce, ok := ledger.SolveChallenge(c.Seed, c.Difficulty)
	if !ok {
		return fmt.Errorf("no solution below the nonce cap")
	}
	fmt.Println(nonce)
	return nil
}
