package workers

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"gobridgecore/config"
	"gobridgecore/types"
	"gobridgecore/workers/handlers"

	"github.com/ethereum/go-ethereum/log"
	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter wires every API route. Mutating routes need a bearer key from callers,
// the role checks happen in the components.
func NewRouter(api *handlers.API, callers map[string]types.Caller, gatherer prometheus.Gatherer) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(Auth(callers))

	r.Options("/*", CORSHeaders)

	r.Get("/state", api.State)
	r.Get("/health", api.HealthCheck)

	r.Route("/chains", func(r chi.Router) {
		r.Get("/", api.ListChains)
		r.Post("/", api.AddChain)
		r.Get("/{id}", api.GetChain)
		r.Put("/{id}", api.UpdateChain)
		r.Get("/{id}/gas", api.GetGasPrice)
		r.Put("/{id}/gas", api.SetGasPrice)
	})

	r.Route("/messages", func(r chi.Router) {
		r.Get("/", api.ListMessages)
		r.Post("/", api.CreateMessage)
		r.Post("/batch", api.CreateBatch)
		r.Get("/{id}", api.GetMessage)
		r.Post("/{id}/status", api.UpdateStatus)
		r.Post("/{id}/retry", api.RetryMessage)
	})

	r.Post("/orders", api.BridgeOrder)
	r.Get("/orders/{id}", api.GetOrder)
	r.Post("/trades", api.SettleTrade)
	r.Get("/trades/{id}", api.GetTrade)
	r.Get("/users/{address}/history", api.UserHistory)

	r.Get("/estimate", api.Estimate)
	r.Get("/decide", api.Decide)
	r.Get("/optimizer", api.GetOptimizer)
	r.Put("/optimizer", api.UpdateOptimizer)

	r.Post("/compress", api.Compress)
	r.Post("/decompress", api.Decompress)
	r.Get("/compressor/{type}", api.GetCompressor)
	r.Put("/compressor/{type}/params", api.SetCompressorParams)
	r.Put("/compressor/{type}/dictionary/{index}", api.SetDictionaryEntry)

	r.Get("/stats/chains", api.ChainStats)
	r.Get("/events", api.Events)
	if gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}
	return r
}

// Auth resolves the bearer key of a request to its caller. Requests without a key
// stay anonymous, an unknown key is refused.
func Auth(callers map[string]types.Caller) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				next.ServeHTTP(w, r)
				return
			}
			key, ok := strings.CutPrefix(header, "Bearer ")
			caller, known := callers[strings.TrimSpace(key)]
			if !ok || !known {
				w.Header().Set("Content-Type", "application/json; charset=utf-8")
				w.WriteHeader(http.StatusUnauthorized)
				w.Write([]byte(`{"status":"error","message":"unknown API key","field":""}`))
				return
			}
			next.ServeHTTP(w, r.WithContext(handlers.WithCaller(r.Context(), caller)))
		})
	}
}

// Worker_HTTP serves handler until ctx is cancelled
func Worker_HTTP(ctx context.Context, cfg config.ServerConfig, handler http.Handler) error {
	logger := log.New("module", "http")
	logger.Info("Starting HTTP service", "port", cfg.Port, "ssl", cfg.UseSSL)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           middleware.Logger(handler),
		ReadHeaderTimeout: 10 * time.Second,
	}
	if cfg.UseSSL {
		cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
		if err != nil {
			return fmt.Errorf("error loading TLS key pair: %w", err)
		}
		server.TLSConfig = &tls.Config{
			Certificates: []tls.Certificate{cert},
			MinVersion:   tls.VersionTLS12,
		}
	}

	errc := make(chan error, 1)
	go func() {
		var err error
		if cfg.UseSSL {
			err = server.ListenAndServeTLS("", "")
		} else {
			err = server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()
	logger.Info("HTTP service started")

	select {
	case err, ok := <-errc:
		if ok {
			return fmt.Errorf("error listening: %w", err)
		}
		return nil
	case <-ctx.Done():
	}
	logger.Info("HTTP service stopped")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("HTTP service shutdown error: %w", err)
	}
	logger.Info("HTTP service shutdown normal")
	return nil
}

func CORSHeaders(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT, DELETE")
	w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, Origin, X-Requested-With")
}
