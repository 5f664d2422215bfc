package server

import (
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/jvillanueva/hilot/internal/backup"
	"github.com/jvillanueva/hilot/internal/handler"
	"github.com/jvillanueva/hilot/internal/middleware"
	"github.com/jvillanueva/hilot/internal/model"
	"github.com/jvillanueva/hilot/internal/notify"
	"github.com/jvillanueva/hilot/internal/store"
	ws "github.com/jvillanueva/hilot/internal/websocket"
)

// PushConfig holds VAPID keys for web push. Empty keys disable push.
type PushConfig struct {
	VAPIDPublicKey  string
	VAPIDPrivateKey string
}

type Server struct {
	db            *sql.DB
	hub           *ws.Hub
	authH         *handler.AuthHandler
	patientH      *handler.PatientHandler
	prenatalH     *handler.PrenatalHandler
	childH        *handler.ChildHandler
	immunizationH *handler.ImmunizationHandler
	vaccineH      *handler.VaccineHandler
	backupH       *handler.BackupHandler
	settingsH     *handler.SettingsHandler
	pushH         *handler.PushHandler
	sessionStore  *store.SessionStore
	userStore     *store.UserStore
	rateLimiter   *middleware.RateLimiter
	backupManager *backup.Manager
	logger        *slog.Logger
}

func New(db *sql.DB, backupCfg backup.Config, pushCfg PushConfig, logger *slog.Logger) *Server {
	hub := ws.NewHub(logger.With("component", "websocket"))

	userStore := store.NewUserStore(db)
	sessionStore := store.NewSessionStore(db)
	settingsStore := store.NewSettingsStore(db)
	patientStore := store.NewPatientStore(db)
	prenatalStore := store.NewPrenatalStore(db)
	childStore := store.NewChildStore(db)
	immunizationStore := store.NewImmunizationStore(db)
	vaccineStore := store.NewVaccineStore(db)
	backupStore := store.NewBackupRecordStore(db)
	restoreStore := store.NewRestoreOperationStore(db)
	pushStore := store.NewPushStore(db)

	var pushSvc *notify.Service
	var notifier *notify.Broadcaster
	var pushH *handler.PushHandler
	if pushCfg.VAPIDPublicKey != "" && pushCfg.VAPIDPrivateKey != "" {
		pushSvc = notify.NewService(pushCfg.VAPIDPublicKey, pushCfg.VAPIDPrivateKey)
		notifier = notify.NewBroadcaster(pushSvc, pushStore, logger)
		pushH = handler.NewPushHandler(pushStore, pushSvc, logger.With("component", "push_handler"))
	}

	backupLogger := logger.With("component", "backup")
	backupMgr := backup.NewManager(backupCfg, db, backupStore, restoreStore, settingsStore, func(ev backup.Event) {
		msg := ws.NewMessage(ev.Kind, ev.Status, ev.ID)
		msg.Progress = ev.Progress
		msg.Step = ev.Step
		msg.Error = ev.Error
		hub.Broadcast(msg)

		if notifier == nil {
			return
		}
		// Push only terminal events; progress ticks stay on the socket.
		switch {
		case ev.Kind == "backup" && (ev.Status == string(model.BackupStatusCompleted) || ev.Status == string(model.BackupStatusFailed)):
			if rec, err := backupStore.GetByID(ev.ID); err == nil && rec != nil {
				notifier.BackupFinished(rec)
			}
		case ev.Kind == "restore" && (ev.Status == string(model.RestoreStatusCompleted) || ev.Status == string(model.RestoreStatusFailed)):
			if op, err := restoreStore.GetByID(ev.ID); err == nil && op != nil {
				notifier.RestoreFinished(op)
			}
		}
	}, backupLogger)

	rateLimiter := middleware.NewRateLimiter()

	return &Server{
		db:            db,
		hub:           hub,
		authH:         handler.NewAuthHandler(userStore, sessionStore, rateLimiter, logger),
		patientH:      handler.NewPatientHandler(patientStore, hub, logger.With("component", "patient")),
		prenatalH:     handler.NewPrenatalHandler(prenatalStore, patientStore, hub, logger.With("component", "prenatal")),
		childH:        handler.NewChildHandler(childStore, patientStore, hub, logger.With("component", "child")),
		immunizationH: handler.NewImmunizationHandler(immunizationStore, childStore, vaccineStore, hub, notifier, logger.With("component", "immunization")),
		vaccineH:      handler.NewVaccineHandler(vaccineStore, hub, notifier, logger.With("component", "vaccine")),
		backupH:       handler.NewBackupHandler(backupMgr, backupStore, restoreStore, logger),
		settingsH:     handler.NewSettingsHandler(settingsStore, backupMgr, logger),
		pushH:         pushH,
		sessionStore:  sessionStore,
		userStore:     userStore,
		rateLimiter:   rateLimiter,
		backupManager: backupMgr,
		logger:        logger,
	}
}

// SessionStore returns the session store for cleanup tasks.
func (s *Server) SessionStore() *store.SessionStore {
	return s.sessionStore
}

// UserStore returns the user store for first-run seeding.
func (s *Server) UserStore() *store.UserStore {
	return s.userStore
}

// RateLimiter returns the rate limiter for cleanup tasks.
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

// BackupManager returns the backup manager.
func (s *Server) BackupManager() *backup.Manager {
	return s.backupManager
}

func (s *Server) Router() http.Handler {
	outerMux := http.NewServeMux()

	// Public routes
	outerMux.HandleFunc("POST /api/login", s.authH.Login)
	outerMux.HandleFunc("GET /health", s.healthHandler)

	// Everything else requires a session
	protectedMux := http.NewServeMux()
	s.registerProtectedRoutes(protectedMux)

	authMiddleware := middleware.RequireAuth(s.sessionStore, s.userStore)
	outerMux.Handle("/", authMiddleware(protectedMux))

	return middleware.RequestLogger(s.logger.With("component", "http"))(outerMux)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) registerProtectedRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/logout", s.authH.Logout)
	mux.HandleFunc("GET /api/me", s.authH.Me)

	editor := func(h http.HandlerFunc) http.Handler {
		return middleware.RequireEditor(h)
	}
	admin := func(h http.HandlerFunc) http.Handler {
		return middleware.RequireAdmin(h)
	}

	// Patient records
	mux.HandleFunc("GET /api/patients", s.patientH.List)
	mux.HandleFunc("GET /api/patients/{id}", s.patientH.Get)
	mux.Handle("POST /api/patients", editor(s.patientH.Create))
	mux.Handle("PUT /api/patients/{id}", editor(s.patientH.Update))
	mux.Handle("DELETE /api/patients/{id}", admin(s.patientH.Delete))

	// Prenatal monitoring
	mux.HandleFunc("GET /api/patients/{id}/prenatal", s.prenatalH.ListByPatient)
	mux.HandleFunc("GET /api/prenatal/{id}", s.prenatalH.Get)
	mux.HandleFunc("GET /api/prenatal/{id}/checkups", s.prenatalH.ListCheckups)
	mux.Handle("POST /api/prenatal", editor(s.prenatalH.Create))
	mux.Handle("POST /api/prenatal/{id}/close", editor(s.prenatalH.Close))
	mux.Handle("POST /api/prenatal/{id}/checkups", editor(s.prenatalH.AddCheckup))

	// Child records
	mux.HandleFunc("GET /api/children", s.childH.List)
	mux.HandleFunc("GET /api/children/{id}", s.childH.Get)
	mux.Handle("POST /api/children", editor(s.childH.Create))
	mux.Handle("PUT /api/children/{id}", editor(s.childH.Update))
	mux.Handle("DELETE /api/children/{id}", admin(s.childH.Delete))

	// Immunization records
	mux.HandleFunc("GET /api/children/{id}/immunizations", s.immunizationH.ListByChild)
	mux.Handle("POST /api/immunizations", editor(s.immunizationH.Create))
	mux.Handle("DELETE /api/immunizations/{id}", admin(s.immunizationH.Delete))

	// Vaccine management
	mux.HandleFunc("GET /api/vaccines", s.vaccineH.List)
	mux.HandleFunc("GET /api/vaccines/{id}", s.vaccineH.Get)
	mux.HandleFunc("GET /api/vaccines/{id}/transactions", s.vaccineH.ListTransactions)
	mux.HandleFunc("GET /api/vaccines/low-stock", s.vaccineH.LowStock)
	mux.Handle("POST /api/vaccines", editor(s.vaccineH.Create))
	mux.Handle("POST /api/vaccines/{id}/transactions", editor(s.vaccineH.RecordTransaction))

	// Backup and restore, admin only
	mux.Handle("POST /api/backups", admin(s.backupH.Create))
	mux.Handle("GET /api/backups", admin(s.backupH.List))
	mux.Handle("GET /api/backups/estimate", admin(s.backupH.Estimate))
	mux.Handle("GET /api/backups/{id}", admin(s.backupH.Get))
	mux.Handle("DELETE /api/backups/{id}", admin(s.backupH.Delete))
	mux.Handle("POST /api/backups/{id}/verify", admin(s.backupH.Verify))
	mux.Handle("GET /api/backups/{id}/progress", admin(s.backupH.Progress))
	mux.Handle("POST /api/restores", admin(s.backupH.Restore))
	mux.Handle("GET /api/restores", admin(s.backupH.ListRestores))
	mux.Handle("GET /api/restores/{id}/progress", admin(s.backupH.RestoreProgress))
	mux.Handle("GET /api/storage/status", admin(s.backupH.StorageStatus))

	// Settings, admin only
	mux.Handle("GET /api/settings/storage", admin(s.settingsH.GetStorage))
	mux.Handle("PUT /api/settings/storage", admin(s.settingsH.UpdateStorage))
	mux.Handle("GET /api/settings/backup", admin(s.settingsH.GetBackupSchedule))
	mux.Handle("PUT /api/settings/backup", admin(s.settingsH.UpdateBackupSchedule))

	// User administration
	mux.Handle("GET /api/users", admin(s.authH.ListUsers))
	mux.Handle("POST /api/users", admin(s.authH.CreateUser))
	mux.Handle("PUT /api/users/{id}/active", admin(s.authH.SetUserActive))

	// Push notifications
	if s.pushH != nil {
		mux.HandleFunc("GET /api/push/vapid-key", s.pushH.VAPIDKey)
		mux.HandleFunc("POST /api/push/subscribe", s.pushH.Subscribe)
		mux.HandleFunc("POST /api/push/unsubscribe", s.pushH.Unsubscribe)
	}

	// WebSocket
	mux.HandleFunc("GET /ws", ws.HandleWebSocket(s.hub, s.logger.With("component", "websocket")))
}

// StartCleanupLoop prunes expired sessions and stale rate-limit entries.
func (s *Server) StartCleanupLoop(stop <-chan struct{}) {
	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				if n, err := s.sessionStore.DeleteExpired(); err != nil {
					s.logger.Error("session cleanup", "error", err)
				} else if n > 0 {
					s.logger.Info("expired sessions removed", "count", n)
				}
				s.rateLimiter.Cleanup()
			}
		}
	}()
}
