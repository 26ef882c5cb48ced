package main

import (
	"log/slog"
	"net/http"
	"os"

	"relay-server/internal/auth"
	"relay-server/internal/broker"
	"relay-server/internal/config"
	"relay-server/internal/relay"
	"relay-server/internal/ws"
)

func main() {
	cfg := config.Load()

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.Level(),
	})))

	// Optional handshake identification
	var verifier *auth.Verifier
	if cfg.AuthIssuerURL != "" {
		v, err := auth.NewVerifier(cfg.AuthIssuerURL)
		if err != nil {
			slog.Error("Failed to initialize JWKS", "issuer", cfg.AuthIssuerURL, "error", err)
			os.Exit(1)
		}
		verifier = v
	}

	// Create hub
	hub := ws.NewHub(relay.NewGateway())

	// Optional Redis backplane: broadcasts go out through Redis and come
	// back in through the subscription, on every relay instance
	if cfg.RedisURL != "" {
		brk, err := broker.NewClient(cfg.RedisURL)
		if err != nil {
			slog.Error("Failed to connect to Redis", "error", err)
			os.Exit(1)
		}
		hub.UsePublisher(brk)
		go broker.SubscribeToBroadcasts(brk, hub)
	}

	go hub.Run()

	// Routes
	http.Handle("/ws", ws.NewHandler(hub, verifier, cfg.AllowedOrigins))

	http.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	slog.Info("Relay server starting", "port", cfg.Port, "origins", cfg.AllowedOrigins)
	if err := http.ListenAndServe(":"+cfg.Port, nil); err != nil {
		slog.Error("Server exited", "error", err)
		os.Exit(1)
	}
}
