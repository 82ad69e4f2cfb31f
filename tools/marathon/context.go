package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"golang.org/x/text/language"

	"cinemarathon/internal/apiclient"
	"cinemarathon/internal/coordinator"
	"cinemarathon/internal/marathon"
	"cinemarathon/internal/slot"
	"cinemarathon/services/catalog"
)

type commandContext struct {
	configFlag  *string
	dataDirFlag *string
	storageFlag *string
	fs          afero.Fs

	configOnce sync.Once
	config     cliConfig
	configErr  error
}

func newCommandContext(fsys afero.Fs, configFlag, dataDirFlag, storageFlag *string) *commandContext {
	return &commandContext{
		configFlag:  configFlag,
		dataDirFlag: dataDirFlag,
		storageFlag: storageFlag,
		fs:          fsys,
	}
}

func (c *commandContext) ensureConfig() (cliConfig, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = *c.configFlag
		}
		cfg, err := loadCLIConfig(c.fs, path)
		if err != nil {
			c.configErr = err
			return
		}
		if c.dataDirFlag != nil && strings.TrimSpace(*c.dataDirFlag) != "" {
			cfg.DataDir = *c.dataDirFlag
		}
		if c.storageFlag != nil && strings.TrimSpace(*c.storageFlag) != "" {
			cfg.Storage = *c.storageFlag
		}
		if err := cfg.normalize(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) workspace() (*workspace, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	return newWorkspace(c.fs, cfg.DataDir)
}

// apiClient returns a backend client carrying the stored token, if any.
func (c *commandContext) apiClient() (*apiclient.Client, *workspace, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, nil, err
	}
	ws, err := newWorkspace(c.fs, cfg.DataDir)
	if err != nil {
		return nil, nil, err
	}
	client, err := apiclient.New(cfg.APIURL)
	if err != nil {
		return nil, nil, err
	}
	token, err := ws.Token()
	if err != nil {
		return nil, nil, err
	}
	client.SetToken(token)
	return client, ws, nil
}

// session is the client side of one invocation: the aggregator restored from
// the workspace, the catalog, and the coordinator joining them.
type session struct {
	cfg     cliConfig
	ws      *workspace
	agg     *marathon.Aggregator
	catalog catalog.Gateway
	coord   *coordinator.Coordinator
	client  *apiclient.Client

	closers []func() error
}

func (c *commandContext) withSession(cmd *cobra.Command, fn func(context.Context, *session) error) (err error) {
	s, err := c.openSession(cmd.Context())
	if err != nil {
		return err
	}
	defer func() {
		if cerr := s.close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return fn(cmd.Context(), s)
}

func (c *commandContext) openSession(ctx context.Context) (*session, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	ws, err := newWorkspace(c.fs, cfg.DataDir)
	if err != nil {
		return nil, err
	}
	s := &session{cfg: cfg, ws: ws}

	store, err := s.openStore()
	if err != nil {
		s.closeAll()
		return nil, err
	}
	s.agg = marathon.New(store)

	movies, err := ws.Movies()
	if err != nil {
		s.closeAll()
		return nil, err
	}
	s.agg.Restore(movies)

	opts := []catalog.ClientOption{catalog.WithLanguage(cfg.Language)}
	if cfg.TMDBBaseURL != "" {
		opts = append(opts, catalog.WithBaseURL(cfg.TMDBBaseURL))
	}
	s.catalog = catalog.NewService(catalog.NewClient(cfg.TMDBAPIKey, opts...), nil, catalog.DefaultTTLs())

	tag, err := language.Parse(cfg.Language)
	if err != nil {
		tag = language.English
	}
	s.coord = coordinator.New(s.catalog, s.agg,
		coordinator.WithDebounce(cfg.debounce()),
		coordinator.WithLanguage(tag),
		coordinator.WithNameThreshold(cfg.NameThreshold),
	)
	return s, nil
}

func (s *session) openStore() (marathon.Store, error) {
	if s.cfg.Storage == storageRemote {
		client, err := apiclient.New(s.cfg.APIURL)
		if err != nil {
			return nil, err
		}
		token, err := s.ws.Token()
		if err != nil {
			return nil, err
		}
		if token == "" {
			return nil, errors.New("remote storage needs a login; run `marathon login` first")
		}
		client.SetToken(token)
		s.client = client
		return marathon.NewRemoteStore(client), nil
	}

	var sl slot.Slot
	switch s.cfg.LocalDriver {
	case driverBadger:
		b, err := slot.OpenBadgerSlot(filepath.Join(s.cfg.DataDir, "badger"), marathon.SlotName)
		if err != nil {
			return nil, fmt.Errorf("open badger store: %w", err)
		}
		sl = b
	default:
		f, err := slot.NewFileSlot(s.ws.fs, s.cfg.DataDir, marathon.SlotName,
			slot.WithProcessLock(filepath.Join(s.cfg.DataDir, marathon.SlotName+".lock")))
		if err != nil {
			return nil, err
		}
		sl = f
	}
	s.closers = append(s.closers, sl.Close)
	return marathon.NewLocalStore(sl), nil
}

// close waits for runtime lookups, persists the working set and releases the store.
func (s *session) close() error {
	s.coord.Wait()
	s.coord.Close()
	err := s.ws.SaveMovies(s.agg.Movies())
	if cerr := s.closeAll(); err == nil {
		err = cerr
	}
	return err
}

func (s *session) closeAll() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}
