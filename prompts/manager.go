// Package prompts manages versioned prompt definitions fetched from the
// Evalsight platform: a per-manager cache keyed by minor version, weighted
// selection across versions, and a background refresh loop that keeps
// "latest" entries current.
package prompts

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/chainguard-dev/clog"
	"golang.org/x/sync/errgroup"

	"github.com/stellarlinkco/evalsight-go/internal/env"
	"github.com/stellarlinkco/evalsight-go/internal/transport"
)

const (
	// DefaultEndpoint is the REST API endpoint prompts are fetched from.
	DefaultEndpoint = "https://api.evalsight.com"

	defaultInitTimeout     = 30 * time.Second
	defaultRefreshTimeout  = 30 * time.Second
	defaultRefreshInterval = 10 * time.Second
	minRefreshInterval     = time.Second
)

// ManagerConfig configures a prompt Manager. PromptID and MajorVersion
// are required; the API key falls back to EVALSIGHT_API_KEY.
type ManagerConfig struct {
	PromptID     string
	MajorVersion string
	APIKey       string

	// Endpoint overrides DefaultEndpoint; also read from
	// EVALSIGHT_API_ENDPOINT when empty.
	Endpoint string

	// InitTimeout bounds all construction-time fetches together (default 30s).
	InitTimeout time.Duration

	// RefreshTimeout bounds each background re-fetch of "latest" (default 30s).
	RefreshTimeout time.Duration

	// RefreshInterval is the sleep between background re-fetches
	// (default 10s, minimum 1s).
	RefreshInterval time.Duration

	client *transport.Client // test seam
}

func (cfg *ManagerConfig) withDefaults() error {
	if cfg.PromptID == "" {
		return errors.New("prompts: missing prompt id")
	}
	if cfg.MajorVersion == "" {
		return errors.New("prompts: missing major version")
	}
	if cfg.APIKey == "" {
		cfg.APIKey = env.APIKey.Get()
	}
	if cfg.APIKey == "" {
		return fmt.Errorf("prompts: missing api key: pass APIKey or set %s", env.APIKey)
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = env.APIEndpoint.Get()
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.InitTimeout <= 0 {
		cfg.InitTimeout = defaultInitTimeout
	}
	if cfg.RefreshTimeout <= 0 {
		cfg.RefreshTimeout = defaultRefreshTimeout
	}
	if cfg.RefreshInterval == 0 {
		cfg.RefreshInterval = defaultRefreshInterval
	}
	if cfg.RefreshInterval < minRefreshInterval {
		return fmt.Errorf("prompts: refresh interval must be at least 1s (got %s)", cfg.RefreshInterval)
	}
	return nil
}

// Manager owns a cache of prompt versions for one prompt id + major
// version. The cache is fully populated at construction (one concurrent
// fetch per distinct requested minor version, all-or-nothing) and only the
// "latest" entry is ever replaced afterwards, by the background refresh
// loop. Close stops the loop; the manager remains usable on its cached
// versions after Close.
type Manager struct {
	cfg      ManagerConfig
	selector VersionSelector
	client   *transport.Client

	mu    sync.RWMutex
	cache map[string]*Prompt
	order []string // insertion order, for the cache-miss fallback

	cancel    context.CancelFunc
	done      chan struct{}
	refreshes bool
}

// NewManager fetches every minor version the selector names and returns a
// usable manager. Any fetch failure is fatal; there is no partial
// initialization. If the selector includes "latest", or the major version
// is the undeployed sentinel, a background refresh loop is started.
func NewManager(ctx context.Context, cfg ManagerConfig, selector VersionSelector) (*Manager, error) {
	if ctx == nil {
		return nil, errors.New("prompts: nil context")
	}
	if err := selector.validate(); err != nil {
		return nil, err
	}
	if err := cfg.withDefaults(); err != nil {
		return nil, err
	}

	client := cfg.client
	if client == nil {
		client = transport.NewClient(cfg.Endpoint, cfg.APIKey)
	}

	m := &Manager{
		cfg:      cfg,
		selector: selector,
		client:   client,
		cache:    make(map[string]*Prompt),
	}

	if err := m.init(ctx); err != nil {
		return nil, err
	}

	if selector.contains(VersionLatest) || cfg.MajorVersion == VersionUndeployed {
		m.refreshes = true
		refreshCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		m.cancel = cancel
		m.done = make(chan struct{})
		clog.FromContext(ctx).With("prompt_id", cfg.PromptID).
			Infof("refreshing latest prompt every %s", cfg.RefreshInterval)
		go m.refreshLoop(refreshCtx)
	}

	return m, nil
}

func (m *Manager) init(ctx context.Context) error {
	initCtx, cancel := context.WithTimeout(ctx, m.cfg.InitTimeout)
	defer cancel()

	versions := m.selector.versions()
	fetched := make([]*Prompt, len(versions))

	g, gctx := errgroup.WithContext(initCtx)
	for i, version := range versions {
		i, version := i, version
		g.Go(func() error {
			p, err := m.fetch(gctx, version)
			if err != nil {
				return err
			}
			fetched[i] = p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("prompts: initialize manager for prompt %q: %w", m.cfg.PromptID, err)
	}

	log := clog.FromContext(ctx).With("prompt_id", m.cfg.PromptID)
	for i, version := range versions {
		// Keyed by the requested minor version, not the fetched one: a
		// request for "latest" resolves to a concrete version number.
		m.cache[version] = fetched[i]
		m.order = append(m.order, version)
		log.Infof("fetched version %q of prompt %q", fetched[i].Version, m.cfg.PromptID)
	}
	return nil
}

func (m *Manager) fetch(ctx context.Context, minorVersion string) (*Prompt, error) {
	path := fmt.Sprintf("/prompts/%s/major/%s/minor/%s",
		url.PathEscape(m.cfg.PromptID),
		url.PathEscape(m.cfg.MajorVersion),
		url.PathEscape(minorVersion),
	)
	var p Prompt
	if err := m.client.Get(ctx, path, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (m *Manager) refreshLoop(ctx context.Context) {
	defer close(m.done)
	ticker := time.NewTicker(m.cfg.RefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if err := m.refreshLatest(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			clog.FromContext(ctx).With("prompt_id", m.cfg.PromptID).
				Warnf("failed to refresh latest prompt: %v", err)
		}
	}
}

func (m *Manager) refreshLatest(ctx context.Context) error {
	fetchCtx, cancel := context.WithTimeout(ctx, m.cfg.RefreshTimeout)
	defer cancel()

	latest, err := m.fetch(fetchCtx, VersionLatest)
	if err != nil {
		return err
	}

	m.mu.Lock()
	old := m.cache[VersionLatest]
	if old != nil && old.RevisionID == latest.RevisionID {
		// Unchanged upstream; keep the cached entry so in-flight readers
		// and identity-based tests see a stable pointer.
		m.mu.Unlock()
		return nil
	}
	m.cache[VersionLatest] = latest
	m.mu.Unlock()

	if old != nil && old.Version != latest.Version {
		clog.FromContext(ctx).With("prompt_id", m.cfg.PromptID).
			Infof("updated latest prompt from v%s to v%s", old.Version, latest.Version)
	}
	return nil
}

// Close stops the background refresh loop, if one is running, and waits
// for it to exit. The manager keeps serving its cached versions.
func (m *Manager) Close() {
	if m == nil || m.cancel == nil {
		return
	}
	m.cancel()
	<-m.done
	m.cancel = nil
}

// Exec draws one version by weighted random sampling, resolves it from the
// cache, and invokes fn with a scoped execution context for that version.
// The context must not be retained beyond the call.
func (m *Manager) Exec(ctx context.Context, fn func(context.Context, *ExecutionContext) error) error {
	if m == nil {
		return errors.New("prompts: nil manager")
	}
	if fn == nil {
		return errors.New("prompts: nil exec function")
	}

	p, err := m.choosePrompt(ctx)
	if err != nil {
		return err
	}
	return fn(ctx, newExecutionContext(p))
}

func (m *Manager) choosePrompt(ctx context.Context) (*Prompt, error) {
	chosen := m.selector.sample()

	m.mu.RLock()
	defer m.mu.RUnlock()

	if p, ok := m.cache[chosen]; ok {
		return p, nil
	}

	// The fail-fast construction should make this unreachable, but callers
	// must not fail on a miss: fall back to the most recently inserted
	// cached entry.
	if len(m.order) > 0 {
		last := m.cache[m.order[len(m.order)-1]]
		clog.FromContext(ctx).With("prompt_id", m.cfg.PromptID).
			Errorf("version %s.%s not in cache (have %v); falling back to cached v%s",
				m.cfg.MajorVersion, chosen, m.order, last.Version)
		return last, nil
	}

	return nil, errors.New("prompts: no prompts available in cache")
}
