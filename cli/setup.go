package main

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mwantia/vfsindex"
	"github.com/mwantia/vfsindex/config"
	"github.com/mwantia/vfsindex/config/consul"
	"github.com/mwantia/vfsindex/log"
	"github.com/prometheus/client_golang/prometheus"
)

// session is a started enumerator together with what it was built from.
type session struct {
	cfg        *config.Config
	log        *log.Logger
	enumerator *vfsindex.Enumerator
	registry   *prometheus.Registry
	consul     *consul.Source
	sync       *mountSync
}

// open loads the configuration, starts an enumerator and mounts every
// configured mount point. terminal is false for the browser, which owns the
// terminal while it runs.
func (c *CLI) open(ctx context.Context, terminal bool) (*session, error) {
	cfg, err := config.Load(c.Config)
	if err != nil {
		return nil, err
	}
	if c.LogLevel != "" {
		cfg.LogLevel = c.LogLevel
	}
	extra, err := config.ParseMounts(strings.Join(c.Mount, ";"))
	if err != nil {
		return nil, err
	}
	cfg.Mounts = append(cfg.Mounts, extra...)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := log.Discard()
	if terminal || cfg.LogFile != "" {
		logger = log.NewLogger("vfsindex", cfg.Level(), cfg.LogFile, !terminal)
	}

	s, err := cfg.Store.Open(ctx)
	if err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()
	opts := []vfsindex.EnumeratorOption{
		vfsindex.WithLogger(logger),
		vfsindex.WithCommitInterval(time.Duration(cfg.CommitInterval)),
		vfsindex.WithFileTypes(cfg.FileTypes...),
		vfsindex.WithMetrics(registry),
	}
	if s != nil {
		opts = append(opts, vfsindex.WithStore(s))
	}

	e, err := vfsindex.NewEnumerator(opts...)
	if err != nil {
		if s != nil {
			s.Close()
		}
		return nil, err
	}
	if err := e.Start(ctx); err != nil {
		e.Close()
		return nil, err
	}

	sess := &session{
		cfg:        cfg,
		log:        logger,
		enumerator: e,
		registry:   registry,
	}

	for _, m := range cfg.Mounts {
		sess.mount(m)
	}

	if cfg.Consul.Prefix != "" {
		if sess.consul, err = consul.New(cfg.Consul, logger.Named("consul")); err != nil {
			sess.Close()
			return nil, err
		}
		mounts, err := sess.consul.Mounts(ctx)
		if err != nil {
			sess.Close()
			return nil, fmt.Errorf("unable to load mounts from consul: %w", err)
		}
		sess.sync = newMountSync(e, logger)
		sess.sync.apply(mounts)
	}
	return sess, nil
}

func (s *session) mount(m config.Mount) bool {
	ok := <-s.enumerator.AddMountPoint(m.EnginePath, m.AbsolutePath)
	if !ok {
		s.log.Warn("Mount of '%s' at '%s' rejected", m.AbsolutePath, m.EnginePath)
	}
	return ok
}

// watchConsul keeps the mounts in sync with the Consul prefix until ctx is done.
func (s *session) watchConsul(ctx context.Context) {
	if s.consul == nil {
		return
	}

	if err := s.consul.Watch(ctx, s.sync.apply); err != nil && ctx.Err() == nil {
		s.log.Error("Consul watch stopped: %v", err)
	}
}

func (s *session) Close() error {
	return s.enumerator.Close()
}

// mountSync applies the mount lists reported by a watch. Only mounts added
// through it are ever removed by it.
type mountSync struct {
	mu      sync.Mutex
	target  mountTarget
	log     *log.Logger
	applied map[config.Mount]struct{}
}

type mountTarget interface {
	AddMountPoint(enginePath, absolutePath string) <-chan bool
	RemoveMountPoint(enginePath string) <-chan bool
}

func newMountSync(target mountTarget, logger *log.Logger) *mountSync {
	return &mountSync{
		target:  target,
		log:     logger,
		applied: make(map[config.Mount]struct{}),
	}
}

func (m *mountSync) apply(mounts []config.Mount) {
	m.mu.Lock()
	defer m.mu.Unlock()

	wanted := make(map[config.Mount]struct{}, len(mounts))
	for _, mount := range mounts {
		wanted[mount] = struct{}{}
	}

	for mount := range m.applied {
		if _, ok := wanted[mount]; ok {
			continue
		}
		delete(m.applied, mount)
		if <-m.target.RemoveMountPoint(mount.EnginePath) {
			m.log.Info("Removed mount '%s'", mount.EnginePath)
		}
	}

	for _, mount := range mounts {
		if _, ok := m.applied[mount]; ok {
			continue
		}
		if !<-m.target.AddMountPoint(mount.EnginePath, mount.AbsolutePath) {
			m.log.Warn("Mount of '%s' at '%s' rejected", mount.AbsolutePath, mount.EnginePath)
			continue
		}
		m.applied[mount] = struct{}{}
		m.log.Info("Mounted '%s' at '%s'", mount.AbsolutePath, mount.EnginePath)
	}
}
