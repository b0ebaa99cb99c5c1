package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"

	"resume-enhancer/internal/analysis"
	"resume-enhancer/internal/api"
	"resume-enhancer/internal/broker"
	"resume-enhancer/internal/engine"
	"resume-enhancer/internal/extraction"
	"resume-enhancer/internal/gateway"
	"resume-enhancer/internal/ledger"
	"resume-enhancer/internal/render"
	"resume-enhancer/internal/store"
	"resume-enhancer/internal/structuring"
	"resume-enhancer/pkg/logger"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file found, using process environment")
	}
	logger.Setup()

	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		slog.Error("GEMINI_API_KEY is required")
		os.Exit(1)
	}

	port := envOr("PORT", "3001")
	dataFile := envOr("DATA_FILE", "data.json")
	uploadDir := envOr("UPLOAD_DIR", "uploads")

	for _, dir := range []string{filepath.Join(uploadDir, "jds"), filepath.Join(uploadDir, "resumes")} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			slog.Error("could not create upload directory", "dir", dir, "error", err)
			os.Exit(1)
		}
	}

	ctx := context.Background()
	llm, err := gateway.New(ctx, apiKey, os.Getenv("GEMINI_MODEL"))
	if err != nil {
		slog.Error("could not initialize ai gateway", "error", err)
		os.Exit(1)
	}
	defer llm.Close()

	data, err := store.New(dataFile)
	if err != nil {
		slog.Error("could not open data file", "path", dataFile, "error", err)
		os.Exit(1)
	}

	jobs := ledger.New()
	events := broker.New(jobs)
	extractor := extraction.New()

	server := api.NewServer(api.Config{
		LLM:          llm,
		Extractor:    extractor,
		Structurer:   structuring.New(llm),
		Enhancer:     engine.New(llm, jobs, events),
		Analyzer:     analysis.New(llm, extractor, data),
		Materializer: render.NewMaterializer(jobs),
		Store:        data,
		Jobs:         jobs,
		Events:       events,
		UploadDir:    uploadDir,
	})

	addr := ":" + port
	slog.Info("server listening", "addr", addr, "data_file", dataFile, "upload_dir", uploadDir)
	if err := http.ListenAndServe(addr, server); err != nil {
		slog.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
