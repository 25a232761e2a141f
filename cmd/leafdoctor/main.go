package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/jo-hoe/leafdoctor/internal/common"
	appcfg "github.com/jo-hoe/leafdoctor/internal/config"
	"github.com/jo-hoe/leafdoctor/internal/diagnosis"
	"github.com/jo-hoe/leafdoctor/internal/image"
	"github.com/jo-hoe/leafdoctor/internal/llm"
	"github.com/jo-hoe/leafdoctor/internal/llm/aiproxy"
	"github.com/jo-hoe/leafdoctor/internal/llm/gemini"
	"github.com/jo-hoe/leafdoctor/internal/llm/mock"
	"github.com/jo-hoe/leafdoctor/internal/server"
	"github.com/jo-hoe/leafdoctor/internal/storage"
)

func main() {
	configPath := flag.String("config", "", "path to config file (default $"+common.EnvConfigPath+" or "+common.DefaultConfigFile+")")
	imagePath := flag.String("image", "", "diagnose a single PNG or JPEG file, print the report and exit")
	flag.Parse()

	// A .env file is optional; real environment variables take precedence.
	_ = godotenv.Load()

	// Bootstrap logger until the configured level is known
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	cfg, err := appcfg.Load(*configPath)
	if err != nil {
		logger.Error("load config", "err", err)
		os.Exit(1)
	}
	level, _ := appcfg.ParseLogLevel(cfg.Server.LogLevel) // validated by Load
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	llmClient, err := newLLMClient(cfg.LLM)
	if err != nil {
		logger.Error("init llm client", "provider", cfg.LLM.Provider, "err", err)
		os.Exit(1)
	}
	requester := diagnosis.New(logger, llmClient, cfg.LLM.Prompt)
	reader := storage.NewReader(cfg.Server.MaxUploadSize.Int64())

	rootCtx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if *imagePath != "" {
		if err := diagnoseFile(rootCtx, os.Stdout, requester, reader, *imagePath); err != nil {
			logger.Error("diagnose file", "path", *imagePath, "err", err)
			cancel()
			os.Exit(1)
		}
		return
	}

	svc := &server.Service{
		Log:       logger,
		Cfg:       cfg,
		Requester: requester,
		Reader:    reader,
	}
	if err := serve(rootCtx, logger, cfg, server.NewHTTPServer(svc)); err != nil {
		logger.Error("server error", "err", err)
		cancel()
		os.Exit(1)
	}
	logger.Info("server stopped")
}

func newLLMClient(cfg appcfg.LLMConfig) (llm.Client, error) {
	switch cfg.Provider {
	case common.ProviderGemini:
		return gemini.New(cfg.Gemini, cfg.Timeout), nil
	case common.ProviderAIProxy:
		return aiproxy.New(cfg.AIProxy, cfg.Timeout), nil
	case common.ProviderMock:
		return mock.New(cfg.Mock), nil
	default:
		return nil, fmt.Errorf("unsupported llm provider %q", cfg.Provider)
	}
}

// serve runs srv until ctx is cancelled or the listener fails, then drains in-flight
// requests for at most ShutdownGrace.
func serve(ctx context.Context, logger *slog.Logger, cfg *appcfg.Config, srv *http.Server) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("http server starting", "address", srv.Addr, "provider", cfg.LLM.Provider)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownGrace)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		return nil
	})

	return g.Wait()
}

// diagnoseFile runs one diagnosis on a local image and writes the markdown to stdout unchanged.
func diagnoseFile(ctx context.Context, stdout io.Writer, requester *diagnosis.Requester, reader *storage.Reader, path string) error {
	mimeType := storage.ResolveMimeType("", filepath.Base(path))
	if !storage.IsAllowedImageMime(mimeType) {
		return fmt.Errorf("%w: %s", storage.ErrUnsupportedType, filepath.Ext(path))
	}
	data, err := os.ReadFile(filepath.Clean(path)) // #nosec G304 - path given by the operator
	if err != nil {
		return fmt.Errorf("read image: %w", err)
	}
	if max := reader.MaxBytes(); max > 0 && int64(len(data)) > max {
		return fmt.Errorf("%w: %d bytes", storage.ErrTooLarge, len(data))
	}

	rec, err := image.Normalize(image.Uploaded{Data: data, MimeType: mimeType})
	if err != nil {
		return err
	}
	md, err := requester.Request(ctx, rec)
	if err != nil {
		return err
	}
	_, err = fmt.Fprint(stdout, md)
	return err
}
