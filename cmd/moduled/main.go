package main

import (
	"context"
	"encoding/json"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/modforge/moduled/internal/actions"
	"github.com/modforge/moduled/internal/agents"
	"github.com/modforge/moduled/internal/api"
	"github.com/modforge/moduled/internal/config"
	"github.com/modforge/moduled/internal/dispatch"
	"github.com/modforge/moduled/internal/editor"
	"github.com/modforge/moduled/internal/ledger"
	"github.com/modforge/moduled/internal/lifecycle"
	"github.com/modforge/moduled/internal/model"
	"github.com/modforge/moduled/internal/state"
	"github.com/modforge/moduled/internal/web"
)

func main() {
	cfg := config.Load()
	for _, dir := range []string{cfg.DataDir, cfg.BundleDir, cfg.WorkspaceRoot} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			log.Fatalf("create %s: %v", dir, err)
		}
	}

	db, err := state.Open(cfg.DBPath)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer db.Close()

	store := state.NewStore(db)
	machine := lifecycle.NewMachine(store)
	led := ledger.New(db)
	resolver := agents.NewResolver(agents.GoLoader{}, agents.Builtins()...)
	registry := actions.NewWorkspaceRegistry(editor.New())
	// Shared actions ("module/action") run against the named module's own
	// workspace through the same registry.
	registry.SetDelegate(func(ctx context.Context, moduleID, action string, args json.RawMessage) (any, error) {
		return registry.Execute(ctx, action, args, actions.ModuleContext{
			ModuleID:     moduleID,
			WorkspaceDir: filepath.Join(cfg.WorkspaceRoot, moduleID),
		})
	})

	var completer model.Completer
	if cfg.ModelName != "" && cfg.ModelAPIKey != "" {
		client, err := model.NewClient(model.Config{
			BaseURL: cfg.ModelBaseURL,
			Model:   cfg.ModelName,
			APIKey:  cfg.ModelAPIKey,
		})
		if err != nil {
			log.Printf("model disabled: %v", err)
		} else {
			completer = client
		}
	}
	if completer == nil {
		log.Printf("no model configured; dispatch requests will fail until MODULED_MODEL_NAME and MODULED_MODEL_API_KEY are set")
	}

	loop := &dispatch.Loop{
		Machine:       machine,
		Ledger:        led,
		Resolver:      resolver,
		Completer:     completer,
		Executor:      registry,
		WorkspaceRoot: cfg.WorkspaceRoot,
	}

	apiServer := &api.Server{
		Machine:   machine,
		Ledger:    led,
		Loop:      loop,
		Store:     store,
		StartedAt: time.Now().UTC(),
	}
	webServer := &web.Server{Dir: cfg.WebDir}

	mux := http.NewServeMux()
	mux.Handle("/api/", apiServer.Handler())
	mux.Handle("/", webServer.Handler())

	listener, err := net.Listen("tcp", cfg.HTTPAddr)
	if err != nil {
		log.Fatalf("listen: %v", err)
	}

	serverCtx, serverCancel := context.WithCancel(context.Background())
	httpServer := &http.Server{
		Handler:           loggingMiddleware(mux),
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext: func(_ net.Listener) context.Context {
			return serverCtx
		},
	}

	go func() {
		log.Printf("moduled listening on %s", listener.Addr())
		if err := httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http server error: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	serverCancel()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		log.Printf("server shutdown error: %v", err)
	}
	_ = httpServer.Close()
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("%s %s %s", r.Method, r.URL.Path, time.Since(start))
	})
}
