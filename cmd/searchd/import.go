package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/warming-afternoon/Odysseia-Forum-sub000/internal/config"
	"github.com/warming-afternoon/Odysseia-Forum-sub000/internal/forum"
	"github.com/warming-afternoon/Odysseia-Forum-sub000/internal/logging"
	"github.com/warming-afternoon/Odysseia-Forum-sub000/internal/objstore"
	"github.com/warming-afternoon/Odysseia-Forum-sub000/internal/search"
)

var importCmd = &cobra.Command{
	Use:   "import FILE",
	Short: "Load authors, threads and collections from a JSON export",
	Long: `import upserts the records of a JSON document into Postgres. FILE may be "-"
for standard input or an s3://bucket/key object read from OBJECT_STORE_ENDPOINT.
Threads are mirrored to Meilisearch when MEILI_URL is set.`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

type importThread struct {
	forum.Thread
	NotFoundCount int `json:"notFoundCount"`
}

type importCollection struct {
	UserID   int64 `json:"userId"`
	ThreadID int64 `json:"threadId"`
}

type importFile struct {
	Authors     []forum.Author     `json:"authors"`
	Threads     []importThread     `json:"threads"`
	Collections []importCollection `json:"collections"`
}

func decodeImport(r io.Reader) (importFile, error) {
	var f importFile
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&f); err != nil {
		return importFile{}, fmt.Errorf("decode import: %w", err)
	}
	for i, t := range f.Threads {
		if t.ID <= 0 {
			return importFile{}, fmt.Errorf("thread %d: threadId must be positive", i)
		}
		if t.CreatedAt.IsZero() {
			return importFile{}, fmt.Errorf("thread %d: createdAt is required", t.ID)
		}
	}
	return f, nil
}

func (f importFile) threads() []forum.Thread {
	out := make([]forum.Thread, len(f.Threads))
	for i, it := range f.Threads {
		out[i] = it.Thread
		out[i].NotFoundCount = it.NotFoundCount
		out[i].Normalize()
	}
	return out
}

// openSource resolves FILE to a reader: "-" is stdin, s3:// goes through the
// object store, anything else is a local path.
func openSource(ctx context.Context, cfg config.Config, name string, stdin io.Reader) (io.ReadCloser, error) {
	if name == "-" {
		return io.NopCloser(stdin), nil
	}
	if bucket, key, ok := objstore.ParseURL(name); ok {
		objects, err := objstore.New(objstore.Config{
			Endpoint:  cfg.ObjectStoreEndpoint,
			AccessKey: cfg.ObjectStoreAccessKey,
			SecretKey: cfg.ObjectStoreSecretKey,
			UseSSL:    cfg.ObjectStoreUseSSL,
		})
		if err != nil {
			return nil, err
		}
		return objects.Open(ctx, bucket, key)
	}
	return os.Open(name)
}

func runImport(cmd *cobra.Command, args []string) error {
	cfg, err := setup()
	if err != nil {
		return err
	}
	defer logging.Sync()
	log := logging.WithName("import")

	ctx := cmd.Context()
	in, err := openSource(ctx, cfg, args[0], cmd.InOrStdin())
	if err != nil {
		return err
	}
	defer in.Close()
	doc, err := decodeImport(in)
	if err != nil {
		return err
	}

	db, st, _, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	for _, a := range doc.Authors {
		if err := st.UpsertAuthor(ctx, a); err != nil {
			return err
		}
	}
	threads := doc.threads()
	for _, t := range threads {
		if err := st.UpsertThread(ctx, t); err != nil {
			return err
		}
	}
	for _, c := range doc.Collections {
		if err := st.AddToCollection(ctx, c.UserID, c.ThreadID); err != nil {
			return err
		}
	}
	log.Info("import finished", "authors", len(doc.Authors), "threads", len(threads), "collections", len(doc.Collections))

	if strings.TrimSpace(cfg.MeiliURL) == "" {
		return nil
	}
	mirror := search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey, st, logging.WithName("meilisearch"))
	defer mirror.Close()
	if !mirror.Healthy() {
		log.Info("meilisearch unavailable, run reindex later", "url", cfg.MeiliURL)
		return nil
	}
	return mirror.IndexThreads(ctx, threads)
}
