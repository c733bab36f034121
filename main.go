package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/MJE43/funcwar-server/internal/api"
	"github.com/MJE43/funcwar-server/internal/config"
	"github.com/MJE43/funcwar-server/internal/game"
	"github.com/MJE43/funcwar-server/internal/hint"
	"github.com/MJE43/funcwar-server/internal/hint/llm"
	"github.com/MJE43/funcwar-server/internal/hint/script"
	"github.com/MJE43/funcwar-server/internal/store"
	"github.com/MJE43/funcwar-server/internal/transport"
)

const (
	appConfigDirName = "funcwar-server"
	secretsFileName  = "secrets.json"
	shutdownTimeout  = 10 * time.Second
)

func main() {
	setKey := flag.String("set-hint-key", "", "store the hint API key for `provider` (read from stdin) and exit")
	flag.Parse()

	if *setKey != "" {
		if err := storeHintKey(*setKey); err != nil {
			log.Fatalf("set hint key: %v", err)
		}
		return
	}
	if err := run(); err != nil {
		log.Fatalf("funcwar: %v", err)
	}
}

func run() error {
	log.Printf("Starting funcwar server (Go %s)...", runtime.Version())

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	config.ResolveHintAPIKey(cfg, newSecretStore())

	hintLog := newLogger("[HINT] ")
	strategy, err := buildStrategy(cfg.Hint, hintLog)
	if err != nil {
		return err
	}
	advisor := hint.NewAdvisor(strategy, hintLog)

	var (
		recorder   game.MatchRecorder
		matchStore api.MatchStore
	)
	if path := cfg.Server.DBPath; path != "" && path != "off" {
		st, err := store.New(path, newLogger("[STORE] "))
		if err != nil {
			return fmt.Errorf("open match store %s: %w", path, err)
		}
		defer st.Close()
		rec := store.NewRecorder(st, 5*time.Second)
		defer rec.Close()
		recorder, matchStore = rec, st
		log.Printf("match results stored in %s", path)
	} else {
		log.Println("match storage disabled")
	}

	registry := game.NewRegistry(game.RegistryOptions{
		Game:        cfg.Game,
		Hinter:      advisor,
		HintTimeout: cfg.Hint.Timeout,
		Recorder:    recorder,
		Logger:      newLogger("[GAME] "),
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	done := make(chan struct{})
	go func() {
		registry.Run(ctx)
		close(done)
	}()

	ws := transport.NewHandler(registry, transport.Options{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Logger:         newLogger("[WS] "),
	})
	srv := api.NewServer(api.Options{
		Rooms:          registry,
		Store:          matchStore,
		WS:             ws,
		Game:           cfg.Game,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Logger:         newLogger("[API] "),
	})
	if err := srv.Start(cfg.Server.Addr); err != nil {
		stop()
		<-done
		return fmt.Errorf("listen %s: %w", cfg.Server.Addr, err)
	}
	log.Printf("ready addr=%s hint_provider=%s", srv.Addr(), cfg.Hint.Provider)

	<-ctx.Done()
	log.Println("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("http shutdown error: %v", err)
	}
	// Registry.Run stops every room once ctx is done.
	<-done
	return nil
}

// buildStrategy returns nil for the "none" provider; the advisor then goes
// straight to its deterministic search.
func buildStrategy(cfg config.Hint, logger *log.Logger) (hint.Strategy, error) {
	switch cfg.Provider {
	case "", "none":
		return nil, nil
	case "llm":
		if cfg.APIKey == "" {
			logger.Println("llm provider configured without an API key; hints will use the fallback search")
		}
		return llm.NewClient(llm.Config{
			Endpoint:      cfg.Endpoint,
			Model:         cfg.Model,
			APIKey:        cfg.APIKey,
			Timeout:       cfg.Timeout,
			MaxRetryDelay: cfg.MaxRetryDelay,
		}), nil
	case "script":
		s, err := script.Load(cfg.ScriptPath, logger)
		if err != nil {
			return nil, fmt.Errorf("load hint script: %w", err)
		}
		s.SetTimeout(cfg.Timeout)
		return s, nil
	default:
		return nil, fmt.Errorf("unknown hint provider %q", cfg.Provider)
	}
}

func storeHintKey(provider string) error {
	fmt.Fprint(os.Stderr, "hint API key: ")
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	key := strings.TrimSpace(line)
	if key == "" {
		return errors.New("empty key")
	}
	if err := newSecretStore().SetHintAPIKey(provider, key); err != nil {
		return err
	}
	log.Printf("hint API key stored for provider %s", provider)
	return nil
}

func newSecretStore() *config.SecretStore {
	return config.NewSecretStore(appConfigDirName, filepath.Join(appDataDir(), secretsFileName))
}

func newLogger(prefix string) *log.Logger {
	return log.New(os.Stdout, prefix, log.LstdFlags|log.Lshortfile)
}

func appDataDir() string {
	if d, err := os.UserConfigDir(); err == nil && d != "" {
		return filepath.Join(d, appConfigDirName)
	}
	if h, err := os.UserHomeDir(); err == nil && h != "" {
		return filepath.Join(h, "."+appConfigDirName)
	}
	return "."
}
