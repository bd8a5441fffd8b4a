package main

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"narrator/internal/api"
	"narrator/internal/config"
	"narrator/internal/daemonrun"
	"narrator/internal/logging"
)

// embeddedGrace bounds how long an in-process run gets to stop on exit.
const embeddedGrace = 10 * time.Second

type commandContext struct {
	configFlag *string
	apiFlag    *string
	localFlag  *bool

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag, apiFlag *string, localFlag *bool) *commandContext {
	return &commandContext{
		configFlag: configFlag,
		apiFlag:    apiFlag,
		localFlag:  localFlag,
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

func (c *commandContext) configValue() *config.Config {
	cfg, _ := c.ensureConfig()
	return cfg
}

// session is a client bound either to narratord or to a daemon running
// inside this process.
type session struct {
	client  *api.Client
	runtime *daemonrun.Runtime
	stop    context.CancelFunc
}

func (s *session) embedded() bool {
	return s.runtime != nil
}

func (s *session) Close() {
	if s.runtime == nil {
		return
	}
	s.runtime.Shutdown(embeddedGrace)
	s.stop()
	s.runtime.Close()
}

func (c *commandContext) withSession(ctx context.Context, fn func(*session) error) error {
	sess, err := c.openSession(ctx)
	if err != nil {
		return err
	}
	defer sess.Close()
	return fn(sess)
}

func (c *commandContext) withClient(ctx context.Context, fn func(*api.Client) error) error {
	return c.withSession(ctx, func(sess *session) error {
		return fn(sess.client)
	})
}

// remoteClient returns a client for narratord when it answers a health probe.
func (c *commandContext) remoteClient(ctx context.Context) (*api.Client, bool, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, false, err
	}
	addr := cfg.Paths.APIBind
	if c.apiFlag != nil && strings.TrimSpace(*c.apiFlag) != "" {
		addr = strings.TrimSpace(*c.apiFlag)
	}
	if strings.TrimSpace(addr) == "" {
		return nil, false, nil
	}
	client := api.NewClient(addr, cfg.Paths.APIToken)
	probeCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if _, err := client.Health(probeCtx); err != nil {
		if c.apiFlag != nil && strings.TrimSpace(*c.apiFlag) != "" {
			return nil, false, fmt.Errorf("connect to daemon at %s: %w", addr, err)
		}
		return nil, false, nil
	}
	return client, true, nil
}

func (c *commandContext) openSession(ctx context.Context) (*session, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	if c.localFlag == nil || !*c.localFlag {
		client, ok, err := c.remoteClient(ctx)
		if err != nil {
			return nil, err
		}
		if ok {
			return &session{client: client}, nil
		}
	}
	return startEmbedded(cfg)
}

// startEmbedded runs the daemon in-process on a loopback port. Its logs go to
// a file so they do not interleave with command output.
func startEmbedded(cfg *config.Config) (*session, error) {
	local := *cfg
	local.Paths.APIBind = "127.0.0.1:0"
	local.Paths.APIToken = ""

	logPath := filepath.Join(cfg.Paths.LogDir, "narrator-cli.log")
	logger, err := logging.New(logging.Options{
		Level:            cfg.Logging.Level,
		Format:           cfg.Logging.Format,
		OutputPaths:      []string{logPath},
		ErrorOutputPaths: []string{logPath},
	})
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	rt, err := daemonrun.Build(&local, logger)
	if err != nil {
		return nil, err
	}
	runCtx, stop := context.WithCancel(context.Background())
	if err := rt.Daemon.Start(runCtx); err != nil {
		stop()
		rt.Close()
		return nil, fmt.Errorf("start in-process daemon: %w", err)
	}
	return &session{
		client:  api.NewClient(rt.Daemon.Addr(), ""),
		runtime: rt,
		stop:    stop,
	}, nil
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
