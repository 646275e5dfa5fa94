package main

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mkoval/hybridrag/internal/config"
	"github.com/mkoval/hybridrag/internal/ingest"
	"github.com/mkoval/hybridrag/internal/pipeline"
)

// --- ingest ---

var ingestCmd = &cobra.Command{
	Use:   "ingest [path]",
	Short: "Ingest documents into the vector index and the graph",
	Long: `Ingest a file or directory into the knowledge base.

Unchanged documents are skipped. Both stores are updated in a fixed order;
a document left partially synced is repaired by the next reconcile run.

Examples:
  hybridrag ingest ./docs
  hybridrag ingest ./docs/guide.md --force`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		force, _ := cmd.Flags().GetBool("force")

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.close(ctx)

		path := a.cfg.Storage.DocsDir
		if len(args) > 0 {
			path = args[0]
		}

		info, err := os.Stat(path)
		if err != nil {
			return fmt.Errorf("path not accessible: %w", err)
		}

		var reports []ingest.Report
		if info.IsDir() {
			reports, err = a.sync.SyncDir(ctx, path, force)
			if err != nil && len(reports) == 0 {
				return err
			}
		} else {
			report, ferr := a.sync.SyncFile(ctx, path, force)
			reports = []ingest.Report{report}
			if ferr != nil && report.Outcome == ingest.OutcomeFailed {
				printError("%s: %v", path, ferr)
			}
		}

		printReports(reports)
		return nil
	},
}

func printReports(reports []ingest.Report) {
	counts := map[string]int{}
	for _, r := range reports {
		counts[r.Outcome]++
		switch r.Outcome {
		case ingest.OutcomeSynced:
			printSuccess("%s (%d written, %d reused, %d deleted)",
				r.SourcePath, r.ChunksWritten, r.ChunksReused, r.ChunksDeleted)
		case ingest.OutcomeSkipped:
			printStep("%s unchanged, skipped", r.SourcePath)
		case ingest.OutcomePartial:
			printWarning("%s partially synced: %s (run `hybridrag reconcile`)", r.SourcePath, r.Error)
		default:
			printError("%s failed: %s", r.SourcePath, r.Error)
		}
	}
	printStatus("Documents", "%d synced, %d skipped, %d partial, %d failed",
		counts[ingest.OutcomeSynced], counts[ingest.OutcomeSkipped],
		counts[ingest.OutcomePartial], counts[ingest.OutcomeFailed])
}

func init() {
	ingestCmd.Flags().Bool("force", false, "re-ingest even if content is unchanged")
}

// --- ask ---

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask a question against the knowledge base",
	Long: `Ask a question. With no arguments, starts an interactive session.

Examples:
  hybridrag ask "how are chunks linked in the graph?"
  hybridrag ask`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.close(ctx)

		if len(args) > 0 {
			return askOnce(ctx, a, strings.Join(args, " "))
		}
		return askLoop(ctx, a)
	},
}

func askOnce(ctx context.Context, a *app, question string) error {
	answer, err := a.answerer.Answer(ctx, question)
	if err != nil {
		return err
	}
	printAnswer(answer)
	return nil
}

func askLoop(ctx context.Context, a *app) error {
	fmt.Fprintln(os.Stderr, "Interactive mode. Empty line or Ctrl-D exits.")
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Fprint(os.Stderr, colorize(colorBold, "? "))
		if !scanner.Scan() {
			fmt.Fprintln(os.Stderr)
			return scanner.Err()
		}
		question := strings.TrimSpace(scanner.Text())
		if question == "" {
			return nil
		}
		if err := askOnce(ctx, a, question); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			printError("%v", err)
		}
	}
}

func printAnswer(answer pipeline.Answer) {
	fmt.Println(answer.Answer)
	if answer.Warning != "" {
		printWarning("%s", answer.Warning)
	}
	for _, p := range answer.Provenance {
		printStep("%s  %s  score %.2f", p.ChunkID, p.Source, p.Score)
	}
	printStatus("Trace", "%s (%dms)", answer.TraceID, answer.DurationMs)
}

// --- reconcile ---

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Repair drift between the vector index and the graph",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.close(ctx)

		report, err := a.sync.Reconcile(ctx)
		if err != nil {
			return err
		}

		printStatus("Vector chunks", "%d", report.VectorChunks)
		printStatus("Graph chunks", "%d", report.GraphChunks)
		printStatus("Replayed to graph", "%d", report.GraphAdded)
		printStatus("Removed from graph", "%d", report.GraphRemoved)
		printStatus("Documents repaired", "%d", report.DocsRepaired)
		if report.GraphAdded == 0 && report.GraphRemoved == 0 && report.DocsRepaired == 0 {
			printSuccess("Stores are consistent")
		} else {
			printSuccess("Reconciliation complete")
		}
		return nil
	},
}

// --- status ---

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show configuration and store health",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(envFile)
		if err != nil {
			return err
		}

		client := &http.Client{Timeout: 2 * time.Second}

		if resp, err := client.Get(cfg.Ollama.BaseURL + "/api/version"); err != nil {
			printStatus("Ollama", "not running at %s", cfg.Ollama.BaseURL)
		} else {
			resp.Body.Close()
			printStatus("Ollama", "running at %s", cfg.Ollama.BaseURL)
		}
		printStatus("Chat model", "%s", cfg.Ollama.ChatModel)
		printStatus("Embed model", "%s", cfg.Ollama.EmbedModel)
		printStatus("Neo4j", "%s (db %s)", cfg.Neo4j.URI, cfg.Neo4j.Database)
		printStatus("Data dir", "%s", cfg.Storage.DataDir)
		printStatus("Docs dir", "%s", cfg.Storage.DocsDir)
		printStatus("Chunking", "size %d, overlap %d", cfg.Chunking.Size, cfg.Chunking.Overlap)
		printStatus("Retrieval", "top-k vectors %d, top-k graph %d, max hops %d",
			cfg.Retrieval.TopKVectors, cfg.Retrieval.TopKGraph, cfg.Retrieval.MaxHops)

		healthURL := fmt.Sprintf("http://127.0.0.1:%d/healthz", cfg.Server.Port)
		if resp, err := client.Get(healthURL); err != nil {
			printStatus("Server", "stopped")
		} else {
			resp.Body.Close()
			printStatus("Server", "running on port %d", cfg.Server.Port)
		}
		return nil
	},
}
