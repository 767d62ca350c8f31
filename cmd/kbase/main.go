// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/joho/godotenv"
	"github.com/poiesic/kbase"
	"github.com/poiesic/kbase/config"
	"github.com/poiesic/kbase/core"
	"github.com/poiesic/kbase/ingestion"
	"github.com/poiesic/kbase/reprocess"
	"github.com/poiesic/kbase/search"
	"github.com/urfave/cli/v2"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

// application carries the state shared by the commands once Before has run.
type application struct {
	cfg    *config.Config
	logger *slog.Logger
	// extra options are appended when opening the database.
	extra []kbase.DatabaseOption
}

func newApp(extra ...kbase.DatabaseOption) *cli.App {
	a := &application{extra: extra}
	return &cli.App{
		Name:  "kbase",
		Usage: "Document ingestion and semantic search for agent knowledge bases",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to YAML configuration file",
				EnvVars: []string{"KBASE_CONFIG"},
			},
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				EnvVars: []string{"KBASE_LOG_LEVEL"},
			},
			&cli.StringFlag{
				Name:    "data-dir",
				Aliases: []string{"d"},
				Usage:   "Data directory for the database and stored files",
				EnvVars: []string{"KBASE_DATA_DIR"},
			},
			&cli.StringFlag{
				Name:    "backend",
				Usage:   "Storage backend (badger, sqlite)",
				EnvVars: []string{"KBASE_BACKEND"},
			},
			&cli.StringFlag{
				Name:    "embedding-host",
				Usage:   "Embedding service host URL",
				EnvVars: []string{"KBASE_EMBEDDING_HOST"},
			},
			&cli.StringFlag{
				Name:    "embedding-model",
				Usage:   "Default embedding model name",
				EnvVars: []string{"KBASE_EMBEDDING_MODEL"},
			},
			&cli.StringFlag{
				Name:    "api-token",
				Usage:   "Embedding service API token",
				EnvVars: []string{"KBASE_API_TOKEN", "OPENAI_API_KEY"},
			},
		},
		Before: a.setup,
		Commands: []*cli.Command{
			{
				Name:      "upload",
				Usage:     "Store a file and register it as a pending document",
				ArgsUsage: "FILE",
				Action:    a.uploadCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "owner",
						Usage:   "Owning agent identifier",
						EnvVars: []string{"KBASE_OWNER"},
					},
					&cli.StringFlag{
						Name:  "title",
						Usage: "Document title (defaults to the file name)",
					},
					&cli.StringFlag{
						Name:  "mime-type",
						Usage: "MIME type of the file",
						Value: "application/pdf",
					},
					&cli.StringFlag{
						Name:  "model",
						Usage: "Embedding model for this document",
					},
					&cli.BoolFlag{
						Name:  "process",
						Usage: "Run the ingestion pipeline after upload",
					},
				},
			},
			{
				Name:      "process",
				Usage:     "Run the ingestion pipeline for documents",
				ArgsUsage: "ID...",
				Action:    a.processCommand,
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "force",
						Usage: "Reprocess even if a run appears to be in progress",
					},
				},
			},
			{
				Name:   "reprocess",
				Usage:  "Re-run the pipeline over failed or stale documents",
				Action: a.reprocessCommand,
				Flags: []cli.Flag{
					&cli.StringSliceFlag{
						Name:  "status",
						Usage: "Select documents in these states",
						Value: cli.NewStringSlice(string(core.StatusFailed)),
					},
					&cli.DurationFlag{
						Name:  "stale-after",
						Usage: "Also select documents processing for longer than this (0 disables)",
						Value: time.Hour,
					},
					&cli.IntFlag{
						Name:  "batch-size",
						Usage: "Number of documents to process in each batch",
						Value: reprocess.DefaultBatchSize,
					},
					&cli.IntFlag{
						Name:  "report-interval",
						Usage: "Report progress every N documents",
						Value: 1,
					},
				},
			},
			{
				Name:      "search",
				Usage:     "Find chunks similar to a query",
				ArgsUsage: "QUERY",
				Action:    a.searchCommand,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:    "limit",
						Aliases: []string{"n"},
						Usage:   "Maximum number of results",
						Value:   5,
					},
					&cli.StringSliceFlag{
						Name:  "document",
						Usage: "Restrict the search to these document ids",
					},
					&cli.Float64Flag{
						Name:  "threshold",
						Usage: "Minimum similarity (overrides the configured value)",
					},
				},
			},
			{
				Name:      "status",
				Usage:     "Show document processing status",
				ArgsUsage: "[ID]",
				Action:    a.statusCommand,
				Flags: []cli.Flag{
					&cli.StringSliceFlag{
						Name:  "status",
						Usage: "List only documents in these states",
					},
				},
			},
		},
	}
}

// setup loads .env and the configuration file, applies flag overrides and
// installs the default logger.
func (a *application) setup(c *cli.Context) error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("loading .env: %w", err)
	}

	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return err
	}
	if c.IsSet("log-level") {
		cfg.LogLevel = c.String("log-level")
	}
	if c.IsSet("data-dir") {
		cfg.Storage.DataDir = c.String("data-dir")
	}
	if c.IsSet("backend") {
		cfg.Storage.Backend = kbase.Backend(c.String("backend"))
	}
	if c.IsSet("embedding-host") {
		cfg.AI.EmbeddingHost = c.String("embedding-host")
	}
	if c.IsSet("embedding-model") {
		cfg.AI.EmbeddingModel = c.String("embedding-model")
	}
	if c.IsSet("api-token") {
		cfg.AI.APIToken = c.String("api-token")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	level, err := config.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	a.logger = slog.New(slog.NewTextHandler(c.App.ErrWriter, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(a.logger)
	a.cfg = cfg
	return nil
}

func (a *application) openDatabase() (*kbase.Database, error) {
	opts := append(a.cfg.DatabaseOptions(a.logger), a.extra...)
	db, err := kbase.NewDatabase(a.cfg.Storage.DataDir, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, nil
}

func (a *application) uploadCommand(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("upload takes exactly one file argument")
	}
	path := c.Args().First()
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	db, err := a.openDatabase()
	if err != nil {
		return err
	}
	defer db.Close()

	doc, err := db.UploadDocument(c.Context, kbase.UploadRequest{
		OwnerId:        c.String("owner"),
		Filename:       filepath.Base(path),
		Title:          c.String("title"),
		MimeType:       c.String("mime-type"),
		EmbeddingModel: c.String("model"),
		Data:           data,
	})
	if err != nil {
		return fmt.Errorf("upload failed: %w", err)
	}
	fmt.Fprintf(c.App.Writer, "%d\n", doc.Id)

	if !c.Bool("process") {
		return nil
	}
	pipeline, err := db.NewIngestionPipeline()
	if err != nil {
		return err
	}
	defer pipeline.Release()
	return printResult(c, doc.Id, pipeline.ProcessDocument(c.Context, doc.Id))
}

func (a *application) processCommand(c *cli.Context) error {
	ids, err := parseIDs(c.Args().Slice())
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return fmt.Errorf("process needs at least one document id")
	}

	db, err := a.openDatabase()
	if err != nil {
		return err
	}
	defer db.Close()

	pipeline, err := db.NewIngestionPipeline()
	if err != nil {
		return err
	}
	defer pipeline.Release()

	var errs []error
	for _, id := range ids {
		var result *ingestion.Result
		if c.Bool("force") {
			result = pipeline.Reprocess(c.Context, id)
		} else {
			result = pipeline.ProcessDocument(c.Context, id)
		}
		if err := printResult(c, id, result); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (a *application) reprocessCommand(c *cli.Context) error {
	statuses := make([]core.ProcessingStatus, 0, len(c.StringSlice("status")))
	for _, s := range c.StringSlice("status") {
		statuses = append(statuses, core.ProcessingStatus(s))
	}
	rcfg := &reprocess.Config{
		BatchSize:      c.Int("batch-size"),
		ReportInterval: c.Int("report-interval"),
		Selection: reprocess.Selection{
			Statuses:   statuses,
			StaleAfter: c.Duration("stale-after"),
		},
	}
	if rcfg.BatchSize <= 0 {
		return fmt.Errorf("batch-size must be greater than 0")
	}
	if rcfg.ReportInterval <= 0 {
		return fmt.Errorf("report-interval must be greater than 0")
	}

	db, err := a.openDatabase()
	if err != nil {
		return err
	}
	defer db.Close()

	pipeline, err := db.NewIngestionPipeline()
	if err != nil {
		return err
	}
	defer pipeline.Release()

	r, err := db.NewReprocessor(pipeline, rcfg, c.App.ErrWriter)
	if err != nil {
		return err
	}

	fmt.Fprintf(c.App.ErrWriter, "Data directory: %s\n", a.cfg.Storage.DataDir)
	fmt.Fprintf(c.App.ErrWriter, "Embedding model: %s\n", db.Provider().DefaultModel())
	fmt.Fprintln(c.App.ErrWriter)

	summary, err := r.Run(c.Context)
	if err != nil {
		return fmt.Errorf("reprocessing failed: %w", err)
	}
	for id, msg := range summary.Failures {
		fmt.Fprintf(c.App.Writer, "%d\tfailed\t%s\n", id, msg)
	}
	if summary.Failed > 0 {
		return fmt.Errorf("%d of %d documents failed", summary.Failed, summary.Selected)
	}
	return nil
}

func (a *application) searchCommand(c *cli.Context) error {
	if c.NArg() == 0 {
		return fmt.Errorf("search needs a query")
	}
	query := c.Args().First()
	ids, err := parseIDs(c.StringSlice("document"))
	if err != nil {
		return err
	}

	threshold := a.cfg.Search.Threshold
	if c.IsSet("threshold") {
		threshold = float32(c.Float64("threshold"))
	}

	db, err := a.openDatabase()
	if err != nil {
		return err
	}
	defer db.Close()

	searcher, err := db.NewSearcher(search.WithThreshold(threshold), search.WithLogger(a.logger))
	if err != nil {
		return err
	}
	results, err := searcher.FindSimilar(c.Context, query, ids, c.Int("limit"))
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	w := tabwriter.NewWriter(c.App.Writer, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SCORE\tDOCUMENT\tCHUNK\tPAGES\tCONTENT")
	for _, r := range results {
		fmt.Fprintf(w, "%.3f\t%d\t%d\t%d-%d\t%s\n",
			r.Score, r.Chunk.DocumentId, r.Chunk.Index, r.Chunk.PageStart, r.Chunk.PageEnd, preview(r.Chunk.Content, 60))
	}
	return w.Flush()
}

func (a *application) statusCommand(c *cli.Context) error {
	db, err := a.openDatabase()
	if err != nil {
		return err
	}
	defer db.Close()

	var docs []*core.Document
	if c.NArg() > 0 {
		ids, err := parseIDs(c.Args().Slice())
		if err != nil {
			return err
		}
		for _, id := range ids {
			doc, err := db.GetDocument(c.Context, id)
			if err != nil {
				return err
			}
			docs = append(docs, doc)
		}
	} else {
		var statuses []core.ProcessingStatus
		for _, s := range c.StringSlice("status") {
			statuses = append(statuses, core.ProcessingStatus(s))
		}
		docs, err = db.ListDocuments(c.Context, statuses...)
		if err != nil {
			return err
		}
	}

	w := tabwriter.NewWriter(c.App.Writer, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATUS\tCHUNKS\tVERSION\tTITLE\tERROR")
	for _, doc := range docs {
		fmt.Fprintf(w, "%d\t%s\t%d\t%d\t%s\t%s\n",
			doc.Id, doc.Status, doc.ChunkCount, doc.LatestVersion, doc.Title, doc.ProcessingError)
	}
	return w.Flush()
}

func printResult(c *cli.Context, id core.ID, result *ingestion.Result) error {
	out, err := json.Marshal(result)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "%d\t%s\n", id, out)
	if !result.Success {
		return fmt.Errorf("document %d: %w", id, result.Err())
	}
	return nil
}

func parseIDs(args []string) ([]core.ID, error) {
	ids := make([]core.ID, 0, len(args))
	for _, arg := range args {
		n, err := strconv.ParseUint(arg, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid document id %q", arg)
		}
		ids = append(ids, core.ID(n))
	}
	return ids, nil
}

func preview(s string, limit int) string {
	runes := []rune(s)
	for i, r := range runes {
		if r == '\n' || r == '\t' {
			runes[i] = ' '
		}
	}
	if len(runes) <= limit {
		return string(runes)
	}
	return string(runes[:limit]) + "..."
}
