package server

import (
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mvale/housetab/internal/backup"
	"github.com/mvale/housetab/internal/balance"
	"github.com/mvale/housetab/internal/config"
	"github.com/mvale/housetab/internal/events"
	"github.com/mvale/housetab/internal/handler"
	"github.com/mvale/housetab/internal/middleware"
	"github.com/mvale/housetab/internal/store"
	ws "github.com/mvale/housetab/internal/websocket"
)

type Server struct {
	db            *sql.DB
	hub           *ws.Hub
	familyH       *handler.FamilyHandler
	memberH       *handler.MemberHandler
	expenseH      *handler.ExpenseHandler
	paymentH      *handler.PaymentHandler
	backupH       *handler.BackupHandler
	rateLimiter   *middleware.RateLimiter
	backupManager *backup.Manager
	logger        *slog.Logger
}

func New(db *sql.DB, cfg *config.Config, publisher *events.Publisher, logger *slog.Logger) *Server {
	hub := ws.NewHub(logger.With("component", "websocket"))

	familyStore := store.NewFamilyStore(db)
	memberStore := store.NewMemberStore(db)
	expenseStore := store.NewExpenseStore(db)
	paymentStore := store.NewPaymentStore(db)
	backupStore := store.NewBackupStore(db)
	settingsStore := store.NewSettingsStore(db)

	svc := balance.NewService(db, logger.With("component", "balance"))

	backupCfg := backup.Config{
		S3: backup.S3Config{
			Endpoint:  cfg.S3Endpoint,
			Bucket:    cfg.S3Bucket,
			Region:    cfg.S3Region,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
		},
		DBPath:        cfg.DBPath,
		KeyPrefix:     cfg.S3KeyPrefix,
		ScheduleHour:  cfg.BackupHour,
		RetentionDays: cfg.BackupRetentionDays,
		Passphrase:    cfg.BackupPassphrase,
	}
	backupMgr := backup.NewManager(backupCfg, db, backupStore, settingsStore, logger.With("component", "backup"), func(st backup.Status) {
		hub.Broadcast(ws.Message{
			Type:   "backup_status",
			Entity: "backup",
			Action: string(st.State),
			Extra: map[string]any{
				"in_progress": st.InProgress,
				"error":       st.Error,
			},
		})
	})

	return &Server{
		db:            db,
		hub:           hub,
		familyH:       handler.NewFamilyHandler(familyStore, memberStore, expenseStore, paymentStore, svc, hub, publisher),
		memberH:       handler.NewMemberHandler(memberStore, expenseStore, paymentStore, svc, hub, publisher),
		expenseH:      handler.NewExpenseHandler(expenseStore, svc, hub, publisher),
		paymentH:      handler.NewPaymentHandler(paymentStore, svc, hub, publisher),
		backupH:       handler.NewBackupHandler(backupMgr, backupStore),
		rateLimiter:   middleware.NewRateLimiter(cfg.RateLimitPerMinute, cfg.RateLimitWindow()),
		backupManager: backupMgr,
		logger:        logger,
	}
}

// RateLimiter returns the rate limiter for cleanup tasks.
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

// BackupManager returns the backup manager for lifecycle control.
func (s *Server) BackupManager() *backup.Manager {
	return s.backupManager
}

func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", s.healthHandler)
	mux.Handle("GET /metrics", promhttp.Handler())

	// Families
	mux.HandleFunc("POST /api/families", s.familyH.Create)
	mux.HandleFunc("GET /api/families", s.familyH.List)
	mux.HandleFunc("GET /api/families/{id}", s.familyH.Get)
	mux.HandleFunc("PATCH /api/families/{id}", s.familyH.Update)
	mux.HandleFunc("GET /api/families/{id}/members", s.familyH.ListMembers)
	mux.HandleFunc("POST /api/families/{id}/members", s.familyH.CreateMember)
	mux.HandleFunc("GET /api/families/{id}/expenses", s.familyH.ListExpenses)
	mux.HandleFunc("GET /api/families/{id}/payments", s.familyH.ListPayments)
	mux.HandleFunc("GET /api/families/{id}/balances", s.familyH.Balances)
	mux.HandleFunc("GET /api/families/{id}/balances/{memberID}", s.familyH.MemberBalance)
	mux.HandleFunc("POST /api/families/{id}/cache/rebuild", s.familyH.RebuildCache)
	mux.HandleFunc("GET /api/families/{id}/diagnostics/consistency", s.familyH.Consistency)
	mux.HandleFunc("GET /api/families/{id}/diagnostics/duplicate-payments", s.familyH.DuplicatePayments)
	mux.HandleFunc("POST /api/families/{id}/diagnostics/duplicate-payments/cleanup", s.familyH.CleanupDuplicatePayments)

	// Members
	mux.HandleFunc("GET /api/members/{id}", s.memberH.Get)
	mux.HandleFunc("PATCH /api/members/{id}", s.memberH.Update)
	mux.HandleFunc("DELETE /api/members/{id}", s.memberH.Delete)
	mux.HandleFunc("GET /api/members/{id}/expenses", s.memberH.ListExpenses)
	mux.HandleFunc("GET /api/members/{id}/payments", s.memberH.ListPayments)

	// Expenses
	mux.HandleFunc("POST /api/expenses", s.expenseH.Create)
	mux.HandleFunc("GET /api/expenses/{id}", s.expenseH.Get)
	mux.HandleFunc("PUT /api/expenses/{id}", s.expenseH.Update)
	mux.HandleFunc("DELETE /api/expenses/{id}", s.expenseH.Delete)

	// Payments
	mux.HandleFunc("POST /api/payments", s.paymentH.Create)
	mux.HandleFunc("POST /api/adjustments", s.paymentH.CreateAdjustment)
	mux.HandleFunc("GET /api/payments/{id}", s.paymentH.Get)
	mux.HandleFunc("POST /api/payments/{id}/confirm", s.paymentH.Confirm)
	mux.HandleFunc("POST /api/payments/{id}/reject", s.paymentH.Reject)
	mux.HandleFunc("DELETE /api/payments/{id}", s.paymentH.Delete)

	// Backups
	mux.HandleFunc("POST /api/backup/run", s.backupH.Run)
	mux.HandleFunc("GET /api/backup/status", s.backupH.Status)
	mux.HandleFunc("GET /api/backups", s.backupH.List)
	mux.HandleFunc("GET /api/backups/{id}/download", s.backupH.Download)
	mux.HandleFunc("POST /api/backups/{id}/restore", s.backupH.Restore)

	// WebSocket
	mux.HandleFunc("GET /ws", ws.HandleWebSocket(s.hub))

	logged := middleware.RequestLogger(s.logger.With("component", "http"))
	return logged(s.rateLimiter.Limit(mux))
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
