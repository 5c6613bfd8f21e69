package main

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"reelsmith/internal/config"
	"reelsmith/internal/daemonrun"
	"reelsmith/internal/database"
	"reelsmith/internal/logging"
	"reelsmith/internal/queue"
	"reelsmith/internal/queueaccess"
	"reelsmith/internal/videostore"
)

type commandContext struct {
	apiFlag    *string
	configFlag *string
	jsonFlag   *bool

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(apiFlag, configFlag *string, jsonFlag *bool) *commandContext {
	return &commandContext{
		apiFlag:    apiFlag,
		configFlag: configFlag,
		jsonFlag:   jsonFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) jsonOutput() bool {
	return c.jsonFlag != nil && *c.jsonFlag
}

// apiBaseURL resolves the daemon API from --api or paths.api_bind.
func (c *commandContext) apiBaseURL(cfg *config.Config) string {
	addr := ""
	if c.apiFlag != nil {
		addr = strings.TrimSpace(*c.apiFlag)
	}
	if addr == "" && cfg != nil {
		addr = strings.TrimSpace(cfg.Paths.APIBind)
	}
	if addr == "" {
		return ""
	}
	if strings.HasPrefix(addr, "http://") || strings.HasPrefix(addr, "https://") {
		return strings.TrimRight(addr, "/")
	}
	return "http://" + addr
}

// withAccess opens a daemon session, falling back to the database, and runs fn.
func (c *commandContext) withAccess(ctx context.Context, fn func(queueaccess.Session) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	session, err := queueaccess.OpenWithFallback(ctx, c.apiBaseURL(cfg), func() (queueaccess.Store, error) {
		db, err := database.OpenConfig(ctx, cfg)
		if err != nil {
			return queueaccess.Store{}, err
		}
		return queueaccess.Store{
			Access: queueaccess.NewStoreAccess(queue.NewStore(db), videostore.New(db)),
			Close:  db.Close,
		}, nil
	})
	if err != nil {
		return err
	}
	defer session.Close()
	return fn(session)
}

// withRuntime opens the stores and gateways for commands that work without a daemon.
func (c *commandContext) withRuntime(ctx context.Context, fn func(*daemonrun.Runtime) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	rt, err := daemonrun.Open(ctx, cfg, cliLogger(cfg))
	if err != nil {
		return err
	}
	defer rt.Close()
	return fn(rt)
}

// cliLogger writes warnings and errors to stderr so table output stays clean.
func cliLogger(cfg *config.Config) *slog.Logger {
	logger, err := logging.New(logging.Options{Level: "warn", Format: cfg.Logging.Format, OutputPaths: []string{"stderr"}})
	if err != nil {
		return logging.NewNop()
	}
	return logger
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
