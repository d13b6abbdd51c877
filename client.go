package todoclient

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	glog "github.com/goliatone/go-logger/glog"
	persistence "github.com/goliatone/go-persistence-bun"

	"github.com/todotomorrow/go-client/core"
	"github.com/todotomorrow/go-client/deeplink"
	"github.com/todotomorrow/go-client/session"
	sqlstore "github.com/todotomorrow/go-client/store/sql"
	clientsync "github.com/todotomorrow/go-client/sync"
	"github.com/todotomorrow/go-client/tasks"
	"github.com/todotomorrow/go-client/verify"
)

// ErrNoPendingLink is returned by HandleDeepLink when no observer delivered a
// deep link and no launch URL is pending.
var ErrNoPendingLink = fmt.Errorf("todoclient: no pending deep link")

type Option func(*clientOptions)

type clientOptions struct {
	logger          glog.Logger
	loggerProvider  glog.LoggerProvider
	identity        core.IdentityService
	vault           core.SessionVault
	repo            core.TaskRepository
	bridge          core.CaptureBridge
	initialURL      core.InitialURLQuery
	metrics         core.MetricsRecorder
	configProvider  core.ConfigProvider
	optionsResolver core.OptionsResolver
	persistence     *persistence.Client
	factory         *sqlstore.RepositoryFactory
	now             func() time.Time
}

func WithLogger(logger glog.Logger) Option {
	return func(o *clientOptions) { o.logger = logger }
}

func WithLoggerProvider(provider glog.LoggerProvider) Option {
	return func(o *clientOptions) { o.loggerProvider = provider }
}

func WithIdentityService(identity core.IdentityService) Option {
	return func(o *clientOptions) { o.identity = identity }
}

func WithSessionVault(vault core.SessionVault) Option {
	return func(o *clientOptions) { o.vault = vault }
}

func WithTaskRepository(repo core.TaskRepository) Option {
	return func(o *clientOptions) { o.repo = repo }
}

func WithCaptureBridge(bridge core.CaptureBridge) Option {
	return func(o *clientOptions) { o.bridge = bridge }
}

func WithInitialURLQuery(query core.InitialURLQuery) Option {
	return func(o *clientOptions) { o.initialURL = query }
}

func WithMetricsRecorder(metrics core.MetricsRecorder) Option {
	return func(o *clientOptions) { o.metrics = metrics }
}

func WithConfigProvider(provider core.ConfigProvider) Option {
	return func(o *clientOptions) { o.configProvider = provider }
}

func WithOptionsResolver(resolver core.OptionsResolver) Option {
	return func(o *clientOptions) { o.optionsResolver = resolver }
}

func WithPersistenceClient(client *persistence.Client) Option {
	return func(o *clientOptions) { o.persistence = client }
}

func WithRepositoryFactory(factory *sqlstore.RepositoryFactory) Option {
	return func(o *clientOptions) { o.factory = factory }
}

func WithNow(now func() time.Time) Option {
	return func(o *clientOptions) { o.now = now }
}

// Client is the device-side engine: it owns deep-link arbitration, magic-link
// verification, the session store, and the optimistic task store.
type Client struct {
	cfg      core.Config
	logger   glog.Logger
	identity core.IdentityService
	parser   *deeplink.Parser
	arbiter  *deeplink.Arbiter
	verifier *verify.Verifier
	sessions *session.Store
	tasks    *tasks.Store
	refresh  *session.RefreshRunner
	syncer   *clientsync.Orchestrator
	repo     core.TaskRepository
	metrics  core.MetricsRecorder

	mu sync.Mutex
	// lastAddress is the address the user most recently requested a magic
	// link for; extracted verification payloads inherit it as the claimed
	// address when the link itself carries none.
	lastAddress string
}

// New wires a client from an already resolved config. Use Setup to layer a
// config provider and runtime overrides on top of the defaults first.
func New(cfg core.Config, opts ...Option) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	options := clientOptions{}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&options)
	}
	if options.identity == nil {
		return nil, fmt.Errorf("todoclient: identity service is required")
	}

	_, logger := glog.Resolve(cfg.AppName, options.loggerProvider, options.logger)

	if options.factory == nil && options.persistence != nil {
		factory, err := sqlstore.NewRepositoryFactoryFromPersistence(options.persistence)
		if err != nil {
			return nil, err
		}
		options.factory = factory
	}
	if options.factory != nil {
		if options.vault == nil {
			options.vault = options.factory.SessionVault()
		}
		if options.repo == nil {
			options.repo = options.factory.TaskStore()
		}
	}
	if options.repo == nil {
		return nil, fmt.Errorf("todoclient: task repository is required")
	}
	metrics := options.metrics
	if metrics == nil {
		metrics = core.NopMetricsRecorder{}
	}

	client := &Client{
		cfg:      cfg,
		logger:   logger,
		identity: options.identity,
		repo:     options.repo,
		metrics:  metrics,
	}

	client.parser = deeplink.NewParser(cfg.Callback)
	client.arbiter = deeplink.NewArbiter(deeplink.ArbiterConfig{
		Bridge:     options.bridge,
		InitialURL: options.initialURL,
		Retry:      cfg.InitialURL,
		Logger:     logger,
		Now:        options.now,
	})
	client.sessions = session.NewStore(session.StoreConfig{
		Identity: options.identity,
		Vault:    options.vault,
		Logger:   logger,
		Now:      options.now,
	})

	verifier, err := verify.NewVerifier(verify.Config{
		Identity:     options.identity,
		Sink:         client.sessions,
		RecheckDelay: cfg.SessionRecheckDelay,
		Logger:       logger,
		Now:          options.now,
	})
	if err != nil {
		return nil, err
	}
	client.verifier = verifier

	taskStore, err := tasks.NewStore(tasks.StoreConfig{
		Repo:     options.repo,
		Identity: func() (core.OwnerIdentity, bool) { return client.sessions.Current().Identity() },
		Logger:   logger,
		Metrics:  metrics,
		Now:      options.now,
	})
	if err != nil {
		return nil, err
	}
	client.tasks = taskStore

	refresh, err := session.NewRefreshRunner(session.RefreshRunnerConfig{
		Identity: options.identity,
		Store:    client.sessions,
		Scheduler: session.ExponentialBackoffScheduler{
			Initial: cfg.Refresh.InitialBackoff,
			Max:     cfg.Refresh.MaxBackoff,
		},
		MaxAttempts: cfg.Refresh.MaxAttempts,
		Window:      cfg.Refresh.ExpiryWindow,
		Logger:      logger,
		Now:         options.now,
	})
	if err != nil {
		return nil, err
	}
	client.refresh = refresh

	syncer, err := clientsync.NewOrchestrator(clientsync.OrchestratorConfig{
		Refresher: refresh,
		Tasks:     taskStore,
		Logger:    logger,
		Now:       options.now,
	})
	if err != nil {
		return nil, err
	}
	client.syncer = syncer

	return client, nil
}

// Setup resolves the effective config through the provider and options
// resolver, then wires the client. Runtime overrides in cfg win over loaded
// values, which win over the defaults.
func Setup(ctx context.Context, cfg core.Config, opts ...Option) (*Client, error) {
	options := clientOptions{}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&options)
	}

	defaults := core.DefaultConfig()
	loaded := defaults
	if options.configProvider != nil {
		var err error
		loaded, err = options.configProvider.Load(ctx, defaults)
		if err != nil {
			return nil, err
		}
	}
	resolver := options.optionsResolver
	if resolver == nil {
		resolver = core.GoOptionsResolver{}
	}
	resolved, err := resolver.Resolve(defaults, loaded, cfg)
	if err != nil {
		return nil, err
	}
	return New(resolved, opts...)
}

// Initialize restores any persisted session and reconciles it with the
// identity service. Call once at app start, before task operations.
func (c *Client) Initialize(ctx context.Context) session.Snapshot {
	snapshot := c.sessions.Initialize(ctx)
	if snapshot.Authenticated() {
		c.metrics.IncCounter(ctx, "session.restored", 1, nil)
	}
	return snapshot
}

// SendMagicLink requests a one-time sign-in link for the address. The
// embedded redirect points back at this app's callback deep link.
func (c *Client) SendMagicLink(ctx context.Context, address string) error {
	address = strings.TrimSpace(address)
	if address == "" {
		return fmt.Errorf("todoclient: email address is required")
	}
	if err := c.identity.SendMagicLink(ctx, address, c.cfg.Callback.RedirectTarget()); err != nil {
		return err
	}
	c.mu.Lock()
	c.lastAddress = address
	c.mu.Unlock()
	c.metrics.IncCounter(ctx, "auth.magic_link_sent", 1, nil)
	return nil
}

// ObserveDeepLink feeds a runtime link-open event into the arbiter without
// handling it. HandleDeepLink with an empty URL picks it up.
func (c *Client) ObserveDeepLink(rawURL string, source core.DeepLinkSource) bool {
	_, ok := c.arbiter.Observe(rawURL, source)
	return ok
}

// HandleDeepLink drives one deep link through parse, credential extraction
// and verification. With an empty link it resolves the pending link from the
// capture bridge or the launch URL instead.
func (c *Client) HandleDeepLink(ctx context.Context, link core.RawDeepLink) (core.Session, error) {
	if strings.TrimSpace(link.URL) == "" {
		resolved, ok := c.arbiter.Resolve(ctx)
		if !ok {
			return core.Session{}, ErrNoPendingLink
		}
		link = resolved
	} else if taken, ok := c.arbiter.Take(link.URL, link.Source); ok {
		link = taken
	} else {
		// The arbiter already handled this URL inside the dedup window.
		return core.Session{}, verify.ErrPayloadConsumed
	}

	parsed := c.parser.Parse(link.URL)
	payload, err := c.parser.ExtractCredentials(parsed)
	if err != nil {
		c.logger.Info("deep link ignored", "source", string(link.Source), "error", err.Error())
		return core.Session{}, err
	}
	if payload.Kind == core.CredentialKindVerificationToken && strings.TrimSpace(payload.ClaimedAddress) == "" {
		c.mu.Lock()
		payload.ClaimedAddress = c.lastAddress
		c.mu.Unlock()
	}

	established, err := c.verifier.Handle(ctx, payload)
	if err != nil {
		return core.Session{}, err
	}
	c.arbiter.Consume(ctx, link)
	c.metrics.IncCounter(ctx, "auth.verified", 1, map[string]string{"kind": string(payload.Kind)})
	return established, nil
}

// SignOut revokes the session remotely, then clears local state and drops
// the cached task list. A remote failure surfaces and leaves the session in
// place so the user can retry.
func (c *Client) SignOut(ctx context.Context) error {
	if err := c.sessions.SignOut(ctx); err != nil {
		return err
	}
	c.tasks.Reset()
	return nil
}

// CurrentSession implements the read side for session queries.
func (c *Client) CurrentSession(context.Context) (core.Session, error) {
	snapshot := c.sessions.Current()
	if !snapshot.Authenticated() {
		return core.Session{}, core.ErrIdentityMissing
	}
	return snapshot.Session, nil
}

func (c *Client) LoadTasks(ctx context.Context) ([]core.Task, error) {
	err := c.tasks.LoadTasks(ctx)
	return c.tasks.Current().Tasks, err
}

func (c *Client) AddTask(ctx context.Context, text string) (string, error) {
	return c.tasks.AddTask(ctx, text)
}

func (c *Client) DeleteTask(ctx context.Context, id string) error {
	return c.tasks.DeleteTask(ctx, id)
}

func (c *Client) UpdateTask(ctx context.Context, id string, text string) error {
	return c.tasks.UpdateTask(ctx, id, text)
}

// Sessions exposes the session store for status subscriptions.
func (c *Client) Sessions() *session.Store {
	return c.sessions
}

// Tasks exposes the task store for snapshot subscriptions.
func (c *Client) Tasks() *tasks.Store {
	return c.tasks
}

// TaskRepository exposes the persistence-backed repository for read queries.
func (c *Client) TaskRepository() core.TaskRepository {
	return c.repo
}

// RefreshRunner exposes the token refresh runner bound to this client's
// session store.
func (c *Client) RefreshRunner() *session.RefreshRunner {
	return c.refresh
}

// Sync refreshes the session if due and reloads the task list.
func (c *Client) Sync(ctx context.Context) (clientsync.Result, error) {
	return c.syncer.SyncNow(ctx)
}

// OnForeground runs a throttled sync pass for an app-became-active event.
func (c *Client) OnForeground(ctx context.Context) (clientsync.Result, error) {
	return c.syncer.OnForeground(ctx)
}

// Config returns the resolved configuration.
func (c *Client) Config() core.Config {
	return c.cfg
}
