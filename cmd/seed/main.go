// Command seed embeds a JSONL file of documents and loads the resulting
// vectors into a backend through its adapter. Each input line carries an id,
// a text to embed, and optional metadata.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"

	"github.com/vecbridge/vecbridge/engine/adapters"
	"github.com/vecbridge/vecbridge/engine/record"
	"github.com/vecbridge/vecbridge/pkg/embed"
)

type document struct {
	ID       string         `json:"id"`
	Text     string         `json:"text"`
	Metadata map[string]any `json:"metadata"`
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var (
		input       = flag.String("input", "", "JSONL file of documents to embed and load")
		backendType = flag.String("backend", "qdrant", "target adapter type")
		connJSON    = flag.String("connection", "{}", "adapter connection params, JSON")
		loadJSON    = flag.String("load", "{}", "adapter load params, JSON")
		batchSize   = flag.Int("batch", 32, "texts per embedding request")
	)
	flag.Parse()

	if *input == "" {
		log.Fatal("missing -input")
	}

	embedURL := envOr("EMBED_URL", "http://localhost:8000")

	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))

	f, err := os.Open(*input)
	if err != nil {
		log.Fatalf("open input: %v", err)
	}
	defer f.Close()

	var docs []document
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 1<<20), 1<<20)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var d document
		if err := json.Unmarshal(line, &d); err != nil {
			log.Fatalf("parse line %d: %v", len(docs)+1, err)
		}
		docs = append(docs, d)
	}
	if err := scanner.Err(); err != nil {
		log.Fatalf("read input: %v", err)
	}
	log.Printf("Read %d documents", len(docs))

	embedder := embed.NewClient(embedURL, embed.WithRateLimit(10, *batchSize))

	records := make([]record.Record, 0, len(docs))
	for start := 0; start < len(docs); start += *batchSize {
		end := start + *batchSize
		if end > len(docs) {
			end = len(docs)
		}
		texts := make([]string, 0, end-start)
		for _, d := range docs[start:end] {
			texts = append(texts, d.Text)
		}
		vectors, err := embedder.Embed(ctx, texts)
		if err != nil {
			log.Fatalf("embed batch at %d: %v", start, err)
		}
		for i, d := range docs[start:end] {
			records = append(records, record.Record{
				ID:       d.ID,
				Vector:   vectors[i],
				Metadata: d.Metadata,
			})
		}
		log.Printf("Embedded %d/%d", end, len(docs))
	}

	ctor, ok := adapters.Default().Lookup(*backendType)
	if !ok {
		log.Fatalf("unknown backend type %q", *backendType)
	}
	adapter := ctor(logger)

	if err := adapter.Connect(ctx, json.RawMessage(*connJSON)); err != nil {
		log.Fatalf("connect: %v", err)
	}
	defer adapter.Disconnect()

	result, err := adapter.Load(ctx, records, json.RawMessage(*loadJSON))
	if err != nil {
		log.Fatalf("load: %v", err)
	}

	log.Printf("Done! Inserted: %d, Processed: %d, Input: %d",
		result.InsertCount, result.ProcessedCount, result.InputCount)
	for _, e := range result.Errors {
		log.Printf("load error: %s", e)
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
