package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap"

	"github.com/Dinesh0401/RAG-Chatbot/internal/models"
	cfgPkg "github.com/Dinesh0401/RAG-Chatbot/pkg/config"
	"github.com/Dinesh0401/RAG-Chatbot/pkg/llm"
	"github.com/Dinesh0401/RAG-Chatbot/pkg/parser"
	"github.com/Dinesh0401/RAG-Chatbot/pkg/rag"
	"github.com/Dinesh0401/RAG-Chatbot/pkg/splitter"
	"github.com/Dinesh0401/RAG-Chatbot/pkg/store"
	"github.com/Dinesh0401/RAG-Chatbot/server"
)

type flags struct {
	configPath string
	ingestGlob string
	question   string
	debug      bool
}

func main() {
	_ = godotenv.Load() // .env is optional

	f, config, err := parseFlags()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger, err := newLogger(f.debug)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(f, config, logger); err != nil {
		logger.Fatal("exiting", zap.Error(err))
	}
}

func parseFlags() (flags, *cfgPkg.Config, error) {
	var f flags

	flag.StringVar(&f.configPath, "config", "", "Path to config file")
	flag.StringVar(&f.ingestGlob, "ingest", "", "Glob of PDF files to ingest, then exit")
	flag.StringVar(&f.question, "ask", "", "Ask a single question, then exit")
	flag.BoolVar(&f.debug, "debug", false, "Enable debug logging")

	ollamaURL := flag.String("ollama-url", "", "Ollama server URL")
	dbURL := flag.String("db-url", "", "PostgreSQL connection string")
	model := flag.String("model", "", "LLM model to use")
	embedModel := flag.String("embed-model", "", "Embedding model to use")
	chunkSize := flag.Int("chunk-size", 0, "Size of text chunks")
	chunkOverlap := flag.Int("chunk-overlap", 0, "Overlap between consecutive chunks")
	tableName := flag.String("table", "", "PostgreSQL table name")
	topK := flag.Int("top-k", 0, "Number of chunks retrieved per question")
	port := flag.Int("port", 0, "HTTP server port")
	flag.Parse()

	config, err := cfgPkg.LoadConfig(f.configPath)
	if err != nil {
		return f, nil, err
	}

	// Flags that were set explicitly win over config file and environment.
	flag.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "ollama-url":
			config.LLM.BaseURL = *ollamaURL
		case "db-url":
			config.Database.URL = *dbURL
		case "model":
			config.LLM.Model = *model
		case "embed-model":
			config.LLM.EmbedModel = *embedModel
		case "chunk-size":
			config.Splitter.ChunkSize = *chunkSize
		case "chunk-overlap":
			config.Splitter.ChunkOverlap = *chunkOverlap
		case "table":
			config.Database.TableName = *tableName
		case "top-k":
			config.Retrieval.TopK = *topK
		case "port":
			config.Server.Port = *port
		}
	})

	if errs := config.Validate(); len(errs) > 0 {
		for _, e := range errs {
			fmt.Fprintf(os.Stderr, "invalid config: %s\n", e.Error())
		}
		return f, nil, fmt.Errorf("invalid configuration")
	}

	return f, config, nil
}

func newLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// buildCore wires parser, splitter, embedder, store and chat engine into the
// RAG service. The returned cleanup closes the store's connection pool.
func buildCore(config *cfgPkg.Config, logger *zap.Logger) (*rag.Service, func(), error) {
	embedder, err := llm.NewEmbedderWithConfig(llm.EmbedderConfig{
		Model:   config.LLM.EmbedModel,
		BaseURL: config.LLM.BaseURL,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}

	chatEngine, err := llm.NewWithConfig(llm.ChatConfig{
		Model:       config.LLM.Model,
		MaxTokens:   config.LLM.MaxTokens,
		Temperature: config.LLM.Temperature,
		BaseURL:     config.LLM.BaseURL,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize chat engine: %w", err)
	}

	vectorStore, err := store.NewWithConfig(store.VectorStoreConfig{
		ConnString: config.Database.URL,
		TableName:  config.Database.TableName,
		VectorDim:  config.Database.VectorDim,
		BatchSize:  config.Database.BatchSize,
		EmbedRate:  config.Database.EmbedRate,
	}, embedder, logger.Named("store"))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize vector store: %w", err)
	}

	split, err := splitter.NewWithConfig(splitter.SplitterConfig{
		ChunkSize:    config.Splitter.ChunkSize,
		ChunkOverlap: config.Splitter.ChunkOverlap,
	})
	if err != nil {
		vectorStore.Close()
		return nil, nil, err
	}

	service := rag.NewService(rag.ServiceConfig{TopK: config.Retrieval.TopK},
		parser.New(logger.Named("parser")), split, vectorStore, chatEngine,
		logger.Named("rag"))

	return service, vectorStore.Close, nil
}

func run(f flags, config *cfgPkg.Config, logger *zap.Logger) error {
	switch {
	case f.ingestGlob != "":
		return runIngest(f.ingestGlob, config, logger)
	case f.question != "":
		return runAsk(f.question, config, logger)
	default:
		return runServer(config, logger)
	}
}

func runServer(config *cfgPkg.Config, logger *zap.Logger) error {
	// Construction failure must not keep the process from serving; calls
	// against the missing core fail fast with 503 instead.
	var service server.RAGService
	core, cleanup, err := buildCore(config, logger)
	if err != nil {
		logger.Error("failed to initialize RAG core, serving degraded", zap.Error(err))
	} else {
		service = core
		defer cleanup()
	}

	srv := server.NewServer(server.Config{
		Host: config.Server.Host,
		Port: config.Server.Port,
	}, service, logger.Named("server"))

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-stop:
		logger.Info("shutting down", zap.String("signal", sig.String()))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Stop(ctx)
}

func runIngest(pattern string, config *cfgPkg.Config, logger *zap.Logger) error {
	core, cleanup, err := buildCore(config, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	paths, err := filepath.Glob(pattern)
	if err != nil {
		return fmt.Errorf("bad glob %q: %w", pattern, err)
	}
	if len(paths) == 0 {
		return fmt.Errorf("no files match %q", pattern)
	}

	bar := getProgressBar(len(paths), "Ingesting documents...")
	totalChunks, totalPages := 0, 0

	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			color.Red("Failed to read %s: %v\n", path, err)
			bar.Add(1)
			continue
		}

		report, err := core.Ingest(context.Background(), []models.SourceFile{
			{Filename: filepath.Base(path), Data: data},
		})
		if err != nil {
			return fmt.Errorf("failed to ingest %s: %w", path, err)
		}
		totalChunks += report.ChunksWritten
		totalPages += report.PagesSeen
		bar.Add(1)
	}
	bar.Finish()

	color.Green("\n✓ Indexed %d chunks from %d pages across %d files\n",
		totalChunks, totalPages, len(paths))
	return nil
}

func runAsk(question string, config *cfgPkg.Config, logger *zap.Logger) error {
	core, cleanup, err := buildCore(config, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	spinner := getSpinner("Searching your documents...")
	assistantPrompt := color.New(color.FgCyan).PrintfFunc()

	firstDelta := true
	result, err := core.AnswerStream(context.Background(), question, config.Retrieval.TopK,
		func(delta string) {
			if firstDelta {
				spinner.Finish()
				fmt.Print("\n")
				firstDelta = false
			}
			assistantPrompt("%s", delta)
		})
	if err != nil {
		if firstDelta {
			spinner.Finish()
		}
		return err
	}

	fmt.Print("\n")
	if len(result.Sources) > 0 {
		color.Blue("\nSources:")
		for _, src := range result.Sources {
			color.Blue("  %s (page %d): %s", src.Source, src.Page, src.Snippet)
		}
	}
	return nil
}

func getProgressBar(total int, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetDescription(color.BlueString(description)),
		progressbar.OptionSetItsString("files"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetRenderBlankState(true),
	)
}

func getSpinner(description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(-1,
		progressbar.OptionSetDescription(color.CyanString(description)),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionSetWidth(20),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetRenderBlankState(true),
	)
}
