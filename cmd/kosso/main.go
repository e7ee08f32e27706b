package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ahmatkosso56-cloud/kosso/internal/config"
	"github.com/ahmatkosso56-cloud/kosso/internal/httpapi"
	"github.com/ahmatkosso56-cloud/kosso/internal/hub"
	"github.com/ahmatkosso56-cloud/kosso/internal/notify"
	"github.com/ahmatkosso56-cloud/kosso/internal/store"
	"github.com/ahmatkosso56-cloud/kosso/internal/store/memory"
	"github.com/ahmatkosso56-cloud/kosso/internal/store/postgres"
	"github.com/ahmatkosso56-cloud/kosso/internal/telemetry"

	"github.com/google/uuid"
	"github.com/igm/sockjs-go/sockjs"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	cfg := config.Load()
	shutdownTelemetry := telemetry.Setup("kosso")
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTelemetry(ctx)
	}()

	var st store.Store
	var notifyStore notify.Store
	if cfg.DatabaseURL != "" {
		pool, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("db connect: %v", err)
		}
		defer pool.Close()
		pg := postgres.NewStore(pool, postgres.Options{SessionTTL: cfg.SessionTTL})
		st, notifyStore = pg, pg
	} else {
		log.Printf("DB_DSN not set, using in-memory store")
		mem := memory.NewStore()
		mem.SessionTTL = cfg.SessionTTL
		st, notifyStore = mem, mem
	}

	h := hub.New()
	handler := httpapi.NewHandler(st, h, httpapi.Options{
		BaseURL:       cfg.BaseURL,
		FinishedLimit: cfg.FinishedLimit,
	})
	limiter := httpapi.NewRateLimiter(httpapi.RateLimitConfig{
		IPPerMinute:   cfg.RateLimitPerMinute,
		IPBurst:       cfg.RateLimitBurst,
		PagePerMinute: cfg.PageRateLimitPerMinute,
		PageBurst:     cfg.PageRateLimitBurst,
	})

	mux := http.NewServeMux()
	mux.Handle("/realtime/", realtimeHandler(st, h))
	mux.Handle("/", httpapi.AuthMiddleware(st, handler.Routes()))

	otelHandler := otelhttp.NewHandler(httpapi.LoggingMiddleware(limiter.Middleware(mux)), "kosso")
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      otelHandler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	workerCtx, stopWorker := context.WithCancel(context.Background())
	defer stopWorker()
	worker := notify.NewWorker(notifyStore, notify.NewSender(cfg.SMSProvider, cfg.SMSWebhookToken), cfg.NotifyBatchSize)
	go worker.Start(workerCtx, cfg.NotifyInterval)

	go func() {
		log.Printf("kosso listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	stopWorker()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}

// realtimeHandler authenticates the sockjs session and pins every
// subscription to the session's own company.
func realtimeHandler(st store.Store, h *hub.Hub) http.Handler {
	return sockjs.NewHandler("/realtime", sockjs.DefaultOptions, func(session sockjs.Session) {
		req := session.Request()
		sessionID := sessionIDFromRequest(req)
		if sessionID == "" {
			_ = session.Close(4001, "missing session")
			return
		}
		authSession, err := st.GetSession(context.Background(), sessionID)
		if err != nil {
			_ = session.Close(4002, "invalid session")
			return
		}
		company, err := st.GetCompanyByEmail(context.Background(), authSession.Email)
		if err != nil {
			_ = session.Close(4003, "unknown company")
			return
		}

		client := &hub.Client{
			ID:           uuid.NewString(),
			Send:         make(chan []byte, 16),
			Subscription: hub.Subscription{CompanyID: company.CompanyID},
		}
		h.Register(client)
		defer h.Unregister(client)

		go func() {
			for msg := range client.Send {
				_ = session.Send(string(msg))
			}
		}()

		for {
			msg, err := session.Recv()
			if err != nil {
				return
			}
			parsed, ok := hub.ParseSubscribe([]byte(msg))
			if !ok {
				continue
			}
			if parsed.Action == "unsubscribe" {
				h.UpdateSubscription(client, hub.Subscription{CompanyID: company.CompanyID})
				continue
			}
			h.UpdateSubscription(client, hub.Subscription{
				CompanyID: company.CompanyID,
				ServiceID: parsed.ServiceID,
			})
		}
	})
}

func sessionIDFromRequest(r *http.Request) string {
	if r == nil {
		return ""
	}
	if token := bearerToken(r.Header.Get("Authorization")); token != "" {
		return token
	}
	return strings.TrimSpace(r.URL.Query().Get("session_id"))
}

func bearerToken(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.Fields(header)
	if len(parts) != 2 {
		return ""
	}
	if strings.ToLower(parts[0]) != "bearer" {
		return ""
	}
	return parts[1]
}
