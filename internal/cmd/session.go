package cmd

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/steveyegge/userdir/internal/config"
	"github.com/steveyegge/userdir/internal/slack"
	"github.com/steveyegge/userdir/internal/store"
	"github.com/steveyegge/userdir/internal/store/jsonfile"
	"github.com/steveyegge/userdir/internal/store/memory"
	"github.com/steveyegge/userdir/internal/store/sqlite"
	"github.com/steveyegge/userdir/internal/user"
)

// notifyTimeout bounds best-effort webhook posts made by commands.
const notifyTimeout = 5 * time.Second

// lockTimeout is how long a command waits for another userdir process to
// release the store.
var lockTimeout = 10 * time.Second

// access says whether a command may change the directory.
type access int

const (
	readOnly access = iota
	readWrite
)

// session is one command invocation's view of the directory: config, the
// snapshot store and the restored directory.
type session struct {
	root   string
	cfg    *config.Config
	store  store.Store
	unlock func() error
	dir    *user.Directory
	slack  *slack.Client
	watch  *slack.Watcher
}

// resolveRoot returns the --root flag or the default settings root.
func resolveRoot() (string, error) {
	if rootDir != "" {
		return rootDir, nil
	}
	return config.DefaultRoot()
}

// openStore returns the snapshot store selected by cfg.
func openStore(cfg *config.Config, root string) (store.Store, error) {
	path := cfg.StorePath(root)

	switch cfg.Store {
	case config.StoreJSON:
		return jsonfile.New(path), nil
	case config.StoreSQLite:
		s, err := sqlite.Open(path)
		if err != nil {
			return nil, fmt.Errorf("opening sqlite store: %w", err)
		}
		return s, nil
	case config.StoreMemory:
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("%w: unknown store %q", config.ErrInvalidConfig, cfg.Store)
	}
}

// openSession loads config, restores the directory from the store (or
// seeds a new one) and watches it for Slack. With readWrite the store stays
// locked until Close, so concurrent invocations cannot overwrite each
// other's changes.
func openSession(ctx context.Context, mode access) (*session, error) {
	root, err := resolveRoot()
	if err != nil {
		return nil, err
	}

	cfg, err := config.Load(root)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	st, err := openStore(cfg, root)
	if err != nil {
		return nil, err
	}

	s := &session{
		root:  root,
		cfg:   cfg,
		store: st,
		slack: slack.NewClient(&cfg.Slack),
	}

	lctx, cancel := context.WithTimeout(ctx, lockTimeout)
	defer cancel()

	if l, ok := st.(store.Locker); ok && mode == readWrite {
		s.unlock, err = l.Lock(lctx)
		if err != nil {
			_ = st.Close()
			return nil, fmt.Errorf("locking directory: %w", err)
		}
	}

	s.dir, _, err = store.LoadOrNew(lctx, st, cfg.NewDirectory, user.WithUpdatePolicy(cfg.Policy()))
	if err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("loading directory: %w", err)
	}

	if s.slack.Enabled() {
		s.watch = s.slack.Watch(s.dir)
	}
	return s, nil
}

// save writes the directory snapshot back to the store.
func (s *session) save(ctx context.Context) error {
	if err := s.store.Save(ctx, s.dir.Snapshot()); err != nil {
		return fmt.Errorf("saving directory: %w", err)
	}
	return nil
}

// switchCurrent records name as a new current user and saves it. The Slack
// announcement goes out only after the save succeeded.
func (s *session) switchCurrent(ctx context.Context, name, source string) (int, error) {
	id := s.dir.SetCurrent(name)
	if err := s.save(ctx); err != nil {
		return 0, err
	}
	s.announce(ctx, source)
	return id, nil
}

// announce posts a saved current-user change to Slack, if there is one.
// Failures are logged, not returned.
func (s *session) announce(ctx context.Context, source string) {
	if s.watch == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, notifyTimeout)
	defer cancel()

	if err := s.watch.Flush(ctx, map[string]string{slack.FieldSource: source}); err != nil {
		log.Printf("[slack] notification failed: %v", err)
	}
}

// notify posts an event to Slack. Failures are logged, not returned.
func (s *session) notify(ctx context.Context, event slack.EventType, fields map[string]string) {
	if !s.slack.Enabled() {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, notifyTimeout)
	defer cancel()

	if err := s.slack.Post(ctx, event, fields); err != nil {
		log.Printf("[slack] notification failed: %v", err)
	}
}

// Close drops unsent changes, releases the store lock and closes the store.
func (s *session) Close() error {
	if s.watch != nil {
		s.watch.Stop()
	}
	var errs []error
	if s.unlock != nil {
		errs = append(errs, s.unlock())
	}
	errs = append(errs, s.store.Close())
	return errors.Join(errs...)
}
