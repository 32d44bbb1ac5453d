package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"hokm-server/internal/authn"
	"hokm-server/internal/dispatcher"
	"hokm-server/internal/registry"
	"hokm-server/internal/session"
	"hokm-server/internal/store"
)

func main() {
	cfg := &Config{}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	cobra.CheckErr(newCmd(cfg).ExecuteContext(ctx))
}

func serve(ctx context.Context, cfg *Config) error {
	// The store constructors read their DSN/path from the environment;
	// flags just feed it.
	if cfg.sqlitePath != "" {
		os.Setenv("HOKM_SQLITE_PATH", cfg.sqlitePath)
	}
	if cfg.postgresDSN != "" {
		os.Setenv("HOKM_POSTGRES_DSN", cfg.postgresDSN)
	}

	st, storeMode, err := store.NewStoreFromEnv(cfg.storeMode)
	if err != nil {
		return err
	}
	defer st.Close()

	verifier, authMode := buildVerifier(cfg)

	sessions := session.NewManager(st, nil)
	disp := dispatcher.New(st, sessions, verifier)
	rooms := registry.NewRegistry(st, disp)
	defer rooms.Stop()
	sessions.SetNotifier(rooms)
	disp.AttachRegistry(rooms)

	recoverRooms(ctx, st, rooms)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", disp.HandleWebSocket)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	server := &http.Server{Addr: cfg.listen, Handler: mux}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("[server] shutdown: %v", err)
		}
	}()

	log.Printf("[server] store mode: %s", storeMode)
	log.Printf("[server] auth mode: %s", authMode)
	log.Printf("[server] listening on %s", cfg.listen)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	log.Printf("[server] stopped")
	return nil
}

func buildVerifier(cfg *Config) (authn.Verifier, string) {
	switch strings.ToLower(cfg.tokenAlg) {
	case "ed25519":
		return authn.Ed25519Verifier{PublicKey: cfg.tokenKeyBytes()}, "ed25519"
	case "hmac":
		return authn.HMACVerifier{Key: cfg.tokenKeyBytes()}, "hmac"
	default:
		return nil, "reconnect-only"
	}
}

// recoverRooms re-creates an actor for every room the store still holds
// state for, so games survive a process restart: reconnecting players
// find their room already live instead of racing its first join.
func recoverRooms(ctx context.Context, st store.Store, rooms *registry.Registry) {
	codes, err := st.IterActiveRooms(ctx)
	if err != nil {
		log.Printf("[server] room recovery scan failed: %v", err)
		return
	}
	recovered := 0
	for _, code := range codes {
		if _, err := rooms.GetOrCreate(code); err != nil {
			log.Printf("[server] recover room %s: %v", code, err)
			continue
		}
		recovered++
	}
	if recovered > 0 {
		log.Printf("[server] recovered %d active room(s)", recovered)
	}
}
