// adaptorlib - Enterprise Search Appliance adaptor core
// SPDX-License-Identifier: Apache-2.0

package adaptorlib

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/adaptorlib/acl"
	"github.com/tomtom215/adaptorlib/docid"
	"github.com/tomtom215/adaptorlib/internal/adaptorerr"
	"github.com/tomtom215/adaptorlib/internal/auth"
	"github.com/tomtom215/adaptorlib/internal/authz"
	"github.com/tomtom215/adaptorlib/internal/batchauthz"
	"github.com/tomtom215/adaptorlib/internal/config"
	"github.com/tomtom215/adaptorlib/internal/dochandler"
	"github.com/tomtom215/adaptorlib/internal/docidsender"
	"github.com/tomtom215/adaptorlib/internal/feed"
	"github.com/tomtom215/adaptorlib/internal/incrpoll"
	"github.com/tomtom215/adaptorlib/internal/journal"
	"github.com/tomtom215/adaptorlib/internal/logging"
	"github.com/tomtom215/adaptorlib/internal/oneshot"
	"github.com/tomtom215/adaptorlib/internal/samlauth"
	"github.com/tomtom215/adaptorlib/internal/scheduler"
	"github.com/tomtom215/adaptorlib/internal/session"
	"github.com/tomtom215/adaptorlib/internal/supervisor"
)

// Controller is the embedder-facing runtime: it owns every long-running
// concern (feed scheduling, content serving, SAML authn/authz) and
// drives the embedding Adaptor through the lifecycle adaptor.go
// describes. Construct one with NewController and call Start.
type Controller struct {
	adaptor Adaptor
	cfg     *config.Config
	codec   *docid.Codec

	registry   *prometheus.Registry
	journal    *journal.Journal
	sessions   *session.Manager
	scheduler  *scheduler.Scheduler
	fullGate   *oneshot.Gate
	feedSender *feed.Sender
	docSender  *docidsender.Sender

	samlHandler *samlauth.Handler
	certCache   *samlauth.IdPCertCache
	relayState  *samlauth.RelayStateSigner

	enforcer  *authz.Enforcer
	jwtMgr    *auth.JWTManager
	dochHndlr *dochandler.Handler
	authz2    *batchauthz.Handler

	tree       *supervisor.SupervisorTree
	httpServer *http.Server

	mu      sync.Mutex
	started bool
}

// NewController wires every component described by cfg around adaptor.
// It performs no network I/O and starts no listener, scheduler or
// supervisor tree; that happens in Start. When the Casbin or relay-state
// settings are present it does build the authz.Enforcer, which starts
// its decision-cache cleanup goroutine and, when a policy file is
// configured, Casbin's policy auto-reload.
func NewController(adaptor Adaptor, cfg *config.Config) (*Controller, error) {
	if adaptor == nil {
		return nil, fmt.Errorf("%w: adaptor must not be nil", adaptorerr.ErrFatal)
	}
	if cfg == nil {
		return nil, fmt.Errorf("%w: config must not be nil", adaptorerr.ErrFatal)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", adaptorerr.ErrFatal, err)
	}

	scheme := "http"
	if cfg.Server.Secure {
		scheme = "https"
	}
	base, err := url.Parse(fmt.Sprintf("%s://%s%s", scheme, cfg.Server.Hostname, cfg.Server.DocIdPath))
	if err != nil {
		return nil, fmt.Errorf("%w: building document base url: %v", adaptorerr.ErrFatal, err)
	}
	codec := docid.NewCodec(base)

	registry := prometheus.NewRegistry()
	j := journal.New(registry)
	sessions := session.New(cfg.Security.SessionTTL, cfg.Security.SessionSweepPeriod)

	applianceURL := fmt.Sprintf("https://%s", cfg.GSA.Hostname)
	feedSender := feed.NewSender(applianceURL, cfg.GSA.Datasource)
	docSender := &docidsender.Sender{
		Datasource: cfg.GSA.Datasource,
		Codec:      codec,
		FeedSender: feedSender,
		Journal:    j,
		FeedType:   feed.Full,
	}

	allowlist, err := parseAllowlist(cfg.GSA.ApplianceAllowlist)
	if err != nil {
		return nil, fmt.Errorf("%w: gsa.appliance_allowlist: %v", adaptorerr.ErrFatal, err)
	}

	c := &Controller{
		adaptor:    adaptor,
		cfg:        cfg,
		codec:      codec,
		registry:   registry,
		journal:    j,
		sessions:   sessions,
		scheduler:  scheduler.New(nil),
		feedSender: feedSender,
		docSender:  docSender,
	}
	c.fullGate = &oneshot.Gate{
		Primary: c.runFullListing,
		Fallback: func(context.Context) {
			logging.Warn().Msg("controller: full-listing push already in flight, skipping scheduled tick")
		},
	}

	coreAdaptor := &adaptorShim{a: adaptor}
	c.dochHndlr = &dochandler.Handler{
		Adaptor:      coreAdaptor,
		Codec:        codec,
		Sessions:     sessions,
		CookieName:   cfg.Security.SessionCookieName,
		CookieSecure: cfg.Security.SessionCookieSecure,
		ApplianceIPs: allowlist,
	}
	c.authz2 = &batchauthz.Handler{
		Authorizer:        coreAdaptor,
		Codec:             codec,
		RequireClientCert: cfg.Security.RequireClientCertForAuthz,
	}

	if cfg.SAML.IdPSSOURL != "" {
		relayState, err := samlauth.NewRelayStateSigner([]byte(cfg.Security.RelayStateSecret), cfg.Security.RelayStateTTL)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", adaptorerr.ErrFatal, err)
		}
		c.relayState = relayState

		if len(cfg.SAML.TrustedCertPaths) == 1 && strings.HasPrefix(cfg.SAML.TrustedCertPaths[0], "https://") {
			c.certCache = samlauth.NewIdPCertCache(cfg.SAML.TrustedCertPaths[0], nil, 15*time.Minute, nil)
		}
		trusted, err := loadTrustedCertificates(cfg.SAML.TrustedCertPaths)
		if err != nil {
			return nil, fmt.Errorf("%w: loading saml.trusted_cert_paths: %v", adaptorerr.ErrFatal, err)
		}

		samlHandler, err := samlauth.New(samlauth.Config{
			IdPSSOURL:           cfg.SAML.IdPSSOURL,
			IdPIssuer:           cfg.SAML.IdPIssuer,
			SPIssuer:            cfg.SAML.SPIssuer,
			ACSURL:              cfg.SAML.ACSURL,
			TrustedCertificates: trusted,
			CertCache:           c.certCache,
			RelayState:          relayState,
			Sessions:            sessions,
			CookieName:          cfg.Security.SessionCookieName,
			CookieSecure:        cfg.Security.SessionCookieSecure,
		})
		if err != nil {
			return nil, fmt.Errorf("%w: %v", adaptorerr.ErrFatal, err)
		}
		c.samlHandler = samlHandler

		c.dochHndlr.OnAuthenticationRequired = func(w http.ResponseWriter, r *http.Request) {
			c.samlHandler.RedirectToIdP(w, r, r.URL.String())
		}
	}

	if cfg.Security.Casbin.ModelPath != "" || cfg.Security.Casbin.PolicyPath != "" || cfg.Security.RelayStateSecret != "" {
		enforcerCfg := authz.DefaultEnforcerConfig()
		enforcerCfg.ModelPath = cfg.Security.Casbin.ModelPath
		enforcerCfg.PolicyPath = cfg.Security.Casbin.PolicyPath
		enforcer, err := authz.NewEnforcer(context.Background(), enforcerCfg)
		if err != nil {
			return nil, fmt.Errorf("%w: building authorization enforcer: %v", adaptorerr.ErrFatal, err)
		}
		c.enforcer = enforcer

		jwtMgr, err := auth.NewJWTManager(&cfg.Security)
		if err != nil {
			return nil, fmt.Errorf("%w: building admin api token manager: %v", adaptorerr.ErrFatal, err)
		}
		c.jwtMgr = jwtMgr
	}

	return c, nil
}

// Start initializes the embedding Adaptor, starts the session sweeper,
// the cron scheduler and the supervisor tree (feed scheduling,
// incremental polling, IdP certificate rotation, HTTPS listener), and
// returns once the tree has been launched in the background. It does
// not wait for the listener to bind: the port is bound inside the
// listener service, after Adaptor.Init, and a bind failure shows up as
// a restart of that service in the supervisor tree, not as an error
// from Start. It is an error to call Start more than once on the same
// Controller.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return adaptorerr.ErrAlreadyStarted
	}
	c.started = true
	c.mu.Unlock()

	pusher := &pusherShim{sender: c.docSender}
	initCtx := &Context{
		DocIdPath:     c.cfg.Server.DocIdPath,
		ApplianceHost: c.cfg.GSA.Hostname,
		Pusher:        pusher,
	}
	if err := c.adaptor.Init(ctx, initCtx); err != nil {
		return fmt.Errorf("%w: adaptor init: %v", adaptorerr.ErrFatal, err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	tree, err := supervisor.NewSupervisorTree(logger, supervisor.DefaultTreeConfig())
	if err != nil {
		return fmt.Errorf("%w: building supervisor tree: %v", adaptorerr.ErrFatal, err)
	}
	c.tree = tree

	if err := c.scheduler.Register("full-listing", c.cfg.Adaptor.FullListingSchedule, func(tickCtx context.Context) {
		c.fullGate.RunInNewThread(tickCtx)
	}); err != nil {
		return fmt.Errorf("%w: registering full-listing schedule: %v", adaptorerr.ErrFatal, err)
	}
	tree.AddPushService(schedulerService{s: c.scheduler})

	if poller, ok := c.adaptor.(IncrementalPoller); ok && c.cfg.Adaptor.IncrementalPollPeriod > 0 {
		tree.AddPushService(&incrpoll.Service{
			Poller: poller,
			Period: c.cfg.Adaptor.IncrementalPollPeriod,
		})
	}

	if c.certCache != nil {
		tree.AddServeService(&certCachePoller{cache: c.certCache, period: 15 * time.Minute})
	}

	handler := c.router()
	c.httpServer = &http.Server{
		Addr:    fmt.Sprintf(":%d", c.cfg.Server.Port),
		Handler: handler,
		TLSConfig: &tls.Config{
			ClientAuth: tls.RequestClientCert,
		},
	}
	listener, err := c.tlsListener()
	if err != nil {
		return fmt.Errorf("%w: %v", adaptorerr.ErrFatal, err)
	}
	tree.AddAPIService(&httpListenerService{server: c.httpServer, listener: listener})

	c.sessions.StartSweeper(c.cfg.Security.SessionSweepPeriod)
	c.scheduler.Start()
	tree.ServeBackground(ctx)

	logging.Info().Int("port", c.cfg.Server.Port).Msg("controller: started")
	return nil
}

// Stop gracefully shuts down every supervised service, waiting at most
// maxDelay for in-flight work to finish, then calls Adaptor.Destroy. It
// is an error to call Stop before Start, or more than once.
func (c *Controller) Stop(ctx context.Context, maxDelay time.Duration) error {
	c.mu.Lock()
	if !c.started {
		c.mu.Unlock()
		return adaptorerr.ErrNotStarted
	}
	c.started = false
	c.mu.Unlock()

	stopCtx, cancel := context.WithTimeout(ctx, maxDelay)
	defer cancel()

	if err := c.scheduler.Stop(stopCtx); err != nil {
		logging.Warn().Err(err).Msg("controller: scheduler did not stop cleanly")
	}
	c.fullGate.Stop(maxDelay)

	if c.httpServer != nil {
		if err := c.httpServer.Shutdown(stopCtx); err != nil {
			logging.Warn().Err(err).Msg("controller: http listener did not shut down cleanly")
		}
	}

	if c.enforcer != nil {
		c.enforcer.Close()
	}

	c.adaptor.Destroy(ctx)
	logging.Info().Msg("controller: stopped")
	return nil
}

func (c *Controller) runFullListing(ctx context.Context) {
	c.docSender.FeedType = feed.Full
	pusher := &pusherShim{sender: c.docSender}
	if err := c.adaptor.GetDocIds(ctx, pusher); err != nil {
		logging.Err(err).Msg("controller: full-listing push failed")
	}
}

func (c *Controller) router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get(c.cfg.Server.DocIdPath+"*", c.dochHndlr.ServeHTTP)
	r.Get("/metrics", promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{}).ServeHTTP)

	if c.samlHandler != nil {
		r.Post("/samlassertionconsumer", c.samlHandler.AssertionConsumer())
	}
	r.Post("/saml-authz", c.authz2.ServeHTTP)

	if c.enforcer != nil && c.jwtMgr != nil {
		r.Route("/admin", func(ar chi.Router) {
			if len(c.cfg.Security.CORSOrigins) > 0 {
				ar.Use(cors.Handler(cors.Options{
					AllowedOrigins: c.cfg.Security.CORSOrigins,
					AllowedMethods: []string{http.MethodGet, http.MethodPost},
				}))
			}
			if c.cfg.Security.RateLimitRequests > 0 {
				ar.Use(httprate.LimitByIP(c.cfg.Security.RateLimitRequests, c.cfg.Security.RateLimitWindow))
			}
			ar.Post("/push", c.requireAuthz("push", "trigger", c.adminPush))
			ar.Get("/status", c.requireAuthz("status", "read", c.adminStatus))
		})
	}

	return r
}

// requireAuthz wraps next with a bearer-token check followed by a
// Casbin decision for (object, action), in that order so an invalid
// token never reaches the enforcer.
func (c *Controller) requireAuthz(object, action string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			http.Error(w, "missing bearer token", http.StatusUnauthorized)
			return
		}
		claims, err := c.jwtMgr.ValidateToken(token)
		if err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}
		allowed, err := c.enforcer.EnforceWithRoles(claims.Username, []string{claims.Role}, object, action)
		if err != nil {
			logging.Err(err).Msg("controller: enforcement check failed")
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		if !allowed {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		next(w, r)
	}
}

func (c *Controller) adminPush(w http.ResponseWriter, r *http.Request) {
	_, started := c.fullGate.RunInNewThread(r.Context())
	if !started {
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte("push already in flight"))
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (c *Controller) adminStatus(w http.ResponseWriter, r *http.Request) {
	snap := c.journal.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"success_count":%d,"records_pushed":%d,"transient_failures":%d,"permanent_failures":%d}`,
		snap.SuccessCount, snap.RecordsPushed, snap.TransientFailureCount, snap.PermanentFailureCount)
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(h, prefix) {
		return ""
	}
	return strings.TrimPrefix(h, prefix)
}

func (c *Controller) tlsListener() (tlsListener, error) {
	if !c.cfg.Server.Secure {
		return plainListener{addr: c.httpServer.Addr}, nil
	}
	cert, err := loadKeypair(c.cfg.Server.KeyStore, c.cfg.Server.KeyAlias)
	if err != nil {
		return nil, err
	}
	c.httpServer.TLSConfig.Certificates = []tls.Certificate{cert}
	return secureListener{addr: c.httpServer.Addr}, nil
}

func loadKeypair(keyStore, alias string) (tls.Certificate, error) {
	certPath := filepath.Join(keyStore, alias+".crt")
	keyPath := filepath.Join(keyStore, alias+".key")
	return tls.LoadX509KeyPair(certPath, keyPath)
}

func loadTrustedCertificates(paths []string) ([]*samlauth.TrustedCertificate, error) {
	var out []*samlauth.TrustedCertificate
	for _, p := range paths {
		if strings.HasPrefix(p, "https://") {
			continue
		}
		raw, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("reading %q: %w", p, err)
		}
		cert, err := samlauth.ParseCertificatePEM(raw)
		if err != nil {
			return nil, fmt.Errorf("parsing %q: %w", p, err)
		}
		out = append(out, cert)
	}
	return out, nil
}

func parseAllowlist(hosts []string) ([]net.IP, error) {
	out := make([]net.IP, 0, len(hosts))
	for _, h := range hosts {
		ip := net.ParseIP(h)
		if ip == nil {
			return nil, fmt.Errorf("invalid ip %q", h)
		}
		out = append(out, ip)
	}
	return out, nil
}

// adaptorShim adapts an embedder's Adaptor to the narrower local
// interfaces internal/dochandler and internal/batchauthz depend on,
// translating between this package's Identity/Decision types and
// theirs so neither internal package needs to import the module root.
type adaptorShim struct {
	a Adaptor
}

func (s *adaptorShim) GetDocContent(ctx context.Context, req *dochandler.ContentRequest, resp dochandler.Response) error {
	var identity *Identity
	if !req.Anonymous {
		identity = &Identity{Principal: req.Principal, Groups: req.Groups}
	}
	return s.a.GetDocContent(ctx, &Request{
		ID:         req.ID,
		Identity:   identity,
		Anonymous:  req.Anonymous,
		LastAccess: req.LastAccess,
	}, resp)
}

func (s *adaptorShim) IsUserAuthorized(ctx context.Context, principal string, groups []string, ids []docid.ID) (map[docid.ID]acl.Decision, error) {
	var identity *Identity
	if principal != "" {
		identity = &Identity{Principal: principal, Groups: groups}
	}
	decisions, err := s.a.IsUserAuthorized(ctx, identity, ids)
	if err != nil {
		return nil, err
	}
	out := make(map[docid.ID]acl.Decision, len(decisions))
	for id, d := range decisions {
		out[id] = acl.Decision(d)
	}
	return out, nil
}

// pusherShim adapts docidsender.Sender (whose PushNamedResources takes
// an optional per-call error handler the embedder never needs to
// think about) to the Pusher contract handed to Adaptor.GetDocIds.
type pusherShim struct {
	sender *docidsender.Sender
}

func (p *pusherShim) PushRecords(ctx context.Context, batch []docid.Record) (*docid.Record, error) {
	return p.sender.PushRecords(ctx, batch)
}

func (p *pusherShim) PushNamedResources(ctx context.Context, resources map[docid.ID]acl.ACL) error {
	return p.sender.PushNamedResources(ctx, resources, nil)
}

// schedulerService gives the cron scheduler an entry in the push layer
// of the supervisor tree. Its Serve only waits for ctx: the cron loop
// runs in the scheduler's own goroutine, which Controller starts and
// stops directly, so the tree does not restart it.
type schedulerService struct {
	s *scheduler.Scheduler
}

func (s schedulerService) Serve(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

func (s schedulerService) String() string { return "cron-scheduler" }

// certCachePoller proactively refreshes the IdP certificate cache on a
// fixed period rather than relying solely on the lazy refresh-on-use in
// Certificates, so a rotation is picked up even during a lull in
// assertion traffic.
type certCachePoller struct {
	cache  *samlauth.IdPCertCache
	period time.Duration
}

func (p *certCachePoller) Serve(ctx context.Context) error {
	ticker := time.NewTicker(p.period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.cache.Certificates(ctx)
		}
	}
}

func (p *certCachePoller) String() string { return "idp-cert-cache-poller" }

// httpListenerService runs the document/SAML/admin HTTPS listener as a
// supervised service, translating context cancellation into a graceful
// Shutdown.
type httpListenerService struct {
	server   *http.Server
	listener tlsListener
}

func (s *httpListenerService) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.listener.serve(s.server)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
		<-errCh
		return ctx.Err()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *httpListenerService) String() string { return "https-listener" }

// tlsListener lets Controller swap between a plaintext listener (local
// development, cfg.Server.Secure == false) and a TLS one without
// httpListenerService needing to know which.
type tlsListener interface {
	serve(*http.Server) error
}

type plainListener struct{ addr string }

func (plainListener) serve(s *http.Server) error { return s.ListenAndServe() }

type secureListener struct{ addr string }

func (secureListener) serve(s *http.Server) error { return s.ListenAndServeTLS("", "") }
