package tempbox

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/sessions"
	"github.com/justinas/alice"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/ShovonSheikh/temp-box/credgen"
	"github.com/ShovonSheikh/temp-box/token"
)

// version is overridden at build time to inject the commit hash
var version = "dev"

// Config contains key configuration parameters to be passed to New()
type Config struct {
	// Key signs session cookies and account auth keys
	Key string
	// AdminKey guards the cleanup trigger and audit endpoints. Empty disables them.
	AdminKey   string
	Developing bool

	Lifecycle LifecycleConfig
	Cleaner   CleanerConfig
}

// Server bundles the core collaborators together for dependency injection
// into http handlers
type Server struct {
	sessionStore *sessions.CookieStore
	db           Database
	provider     Provider
	gen          *credgen.Generator
	tg           *token.Generator
	log          *zap.Logger
	cleaner      *Cleaner
	Router       *mux.Router

	cfg Config

	mu      sync.Mutex
	inboxes map[string]*Lifecycle
}

// New returns a temp-box server with the given settings
func New(cfg Config, db Database, provider Provider, log *zap.Logger) (*Server, error) {
	if log == nil {
		log = zap.NewNop()
	}

	s := Server{
		sessionStore: sessions.NewCookieStore([]byte(cfg.Key)),
		db:           db,
		provider:     provider,
		gen:          credgen.New(8, 20),
		tg:           token.NewGenerator(cfg.Key, 24*time.Hour),
		log:          log,
		cfg:          cfg,
		inboxes:      make(map[string]*Lifecycle),
	}

	s.sessionStore.MaxAge(86402) // set max cookie age to 24 hours + 2 seconds

	if err := s.db.Start(); err != nil {
		return nil, fmt.Errorf("failed to start database: %w", err)
	}

	s.cleaner = NewCleaner(db, provider, log.Named("cleaner"), cfg.Cleaner)

	s.Router = mux.NewRouter()
	s.Router.StrictSlash(true) // means router will match both "/path" and "/path/"

	// JSON API
	s.Router.Handle("/api/v1/inbox/",
		alice.New(JSONContentType, SetVersionHeader, SecurityHeaders).ThenFunc(s.NewInboxJSON),
	).Methods(http.MethodPost)

	s.Router.Handle("/api/v1/inbox/{accountID}/",
		alice.New(JSONContentType, SetVersionHeader, SecurityHeaders, s.CheckPermissionJSON).ThenFunc(s.GetInboxDetailsJSON),
	).Methods(http.MethodGet)

	s.Router.Handle("/api/v1/inbox/{accountID}/",
		alice.New(JSONContentType, SetVersionHeader, SecurityHeaders, s.CheckPermissionJSON).ThenFunc(s.DeleteInboxJSON),
	).Methods(http.MethodDelete)

	s.Router.Handle("/api/v1/inbox/{accountID}/extend/",
		alice.New(JSONContentType, SetVersionHeader, SecurityHeaders, s.CheckPermissionJSON).ThenFunc(s.ExtendInboxJSON),
	).Methods(http.MethodPost)

	s.Router.Handle("/api/v1/inbox/{accountID}/messages/",
		alice.New(JSONContentType, SetVersionHeader, SecurityHeaders, s.CheckPermissionJSON).ThenFunc(s.GetAllMessagesJSON),
	).Methods(http.MethodGet)

	s.Router.Handle("/api/v1/inbox/{accountID}/messages/{messageID}/",
		alice.New(JSONContentType, SetVersionHeader, SecurityHeaders, s.CheckPermissionJSON).ThenFunc(s.GetMessageJSON),
	).Methods(http.MethodGet)

	s.Router.Handle("/api/v1/inbox/{accountID}/messages/{messageID}/",
		alice.New(JSONContentType, SetVersionHeader, SecurityHeaders, s.CheckPermissionJSON).ThenFunc(s.DeleteMessageJSON),
	).Methods(http.MethodDelete)

	// Admin
	s.Router.Handle("/api/v1/cleanup/",
		alice.New(JSONContentType, SetVersionHeader, s.CheckAdminKey).ThenFunc(s.TriggerCleanupJSON),
	).Methods(http.MethodPost)

	s.Router.Handle("/api/v1/cleanup/stats/",
		alice.New(JSONContentType, SetVersionHeader).ThenFunc(s.CleanupStatsJSON),
	).Methods(http.MethodGet)

	s.Router.Handle("/api/v1/cleanup/log/",
		alice.New(JSONContentType, SetVersionHeader, s.CheckAdminKey).ThenFunc(s.CleanupLogJSON),
	).Methods(http.MethodGet)

	s.Router.Handle("/api/v1/audit/",
		alice.New(JSONContentType, SetVersionHeader, s.CheckAdminKey).ThenFunc(s.AuditLogJSON),
	).Methods(http.MethodGet)

	s.Router.Handle("/metrics", promhttp.Handler())
	s.Router.HandleFunc("/ping", s.Ping)

	return &s, nil
}

// Cleaner exposes the sweeper so main can run its schedule
func (s *Server) Cleaner() *Cleaner {
	return s.cleaner
}

// Ping returns PONG when called
func (s *Server) Ping(w http.ResponseWriter, r *http.Request) {
	if _, err := w.Write([]byte("PONG")); err != nil {
		s.log.Error("ping - failed to write out response", zap.Error(err))
	}
}

// newLifecycle builds an inbox state machine wired into the registry
func (s *Server) newLifecycle() *Lifecycle {
	l := NewLifecycle(s.provider, s.db, s.gen, s.log.Named("inbox"), s.cfg.Lifecycle)
	l.OnReset(func(accountID string) {
		s.mu.Lock()
		delete(s.inboxes, accountID)
		s.mu.Unlock()
	})
	return l
}

func (s *Server) registerInbox(l *Lifecycle) {
	s.mu.Lock()
	s.inboxes[l.Account().ID] = l
	s.mu.Unlock()
}

func (s *Server) getInbox(accountID string) (*Lifecycle, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.inboxes[accountID]
	return l, ok
}
