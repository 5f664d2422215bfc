package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/jvillanueva/hilot/internal/backup"
	"github.com/jvillanueva/hilot/internal/database"
	"github.com/jvillanueva/hilot/internal/logging"
	"github.com/jvillanueva/hilot/internal/model"
	"github.com/jvillanueva/hilot/internal/server"

	"golang.org/x/crypto/bcrypt"
)

func main() {
	port := os.Getenv("HILOT_PORT")
	if port == "" {
		port = "8080"
	}

	dbPath := os.Getenv("HILOT_DB_PATH")
	if dbPath == "" {
		dbPath = "hilot.db"
	}

	logger := logging.Setup(os.Getenv("HILOT_LOG_LEVEL"), os.Getenv("HILOT_LOG_FORMAT"))

	db, err := database.Open(dbPath)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	backupCfg := backup.Config{
		S3: backup.S3Config{
			Endpoint:   os.Getenv("HILOT_S3_ENDPOINT"),
			Bucket:     os.Getenv("HILOT_S3_BUCKET"),
			Region:     os.Getenv("HILOT_S3_REGION"),
			AccessKey:  os.Getenv("HILOT_S3_ACCESS_KEY"),
			SecretKey:  os.Getenv("HILOT_S3_SECRET_KEY"),
			Prefix:     os.Getenv("HILOT_S3_PREFIX"),
			QuotaBytes: envInt64("HILOT_S3_QUOTA_BYTES"),
		},
		Passphrase: os.Getenv("HILOT_BACKUP_PASSPHRASE"),
	}

	pushCfg := server.PushConfig{
		VAPIDPublicKey:  os.Getenv("HILOT_VAPID_PUBLIC_KEY"),
		VAPIDPrivateKey: os.Getenv("HILOT_VAPID_PRIVATE_KEY"),
	}

	srv := server.New(db, backupCfg, pushCfg, logger)

	if err := seedAdmin(srv); err != nil {
		log.Fatalf("failed to seed admin user: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	srv.BackupManager().Start(ctx)
	defer srv.BackupManager().Stop()

	stopCleanup := make(chan struct{})
	srv.StartCleanupLoop(stopCleanup)
	defer close(stopCleanup)

	httpServer := &http.Server{
		Addr:         ":" + port,
		Handler:      srv.Router(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 120 * time.Second, // backups run inside the request
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		fmt.Printf("Hilot running at http://localhost:%s\n", port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	fmt.Println("\nShutting down...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("shutdown error: %v", err)
	}
}

// seedAdmin creates the initial admin account on an empty database so the
// first login is possible.
func seedAdmin(srv *server.Server) error {
	count, err := srv.UserStore().Count()
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	password := os.Getenv("HILOT_ADMIN_PASSWORD")
	if password == "" {
		password = "changeme123"
		fmt.Println("No HILOT_ADMIN_PASSWORD set; admin password is changeme123, change it immediately")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	_, err = srv.UserStore().Create("admin", "Administrator", model.RoleAdmin, string(hash))
	return err
}

func envInt64(key string) int64 {
	v := os.Getenv(key)
	if v == "" {
		return 0
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0
	}
	return n
}
