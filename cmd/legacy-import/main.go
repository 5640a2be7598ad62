// Command legacy-import copies books, accounts and entitlements from the old
// MongoDB deployment into Postgres. It is safe to run more than once: books
// and users are upserted and existing entitlements keep their original time.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/careerbooks/careerbooks/internal/repository"
	"github.com/careerbooks/careerbooks/internal/storage"
)

type importOptions struct {
	mongoURI     string
	mongoDB      string
	databaseURL  string
	filePrefix   string
	fallbackDate time.Time
	descriptions bool
	dryRun       bool
}

type summary struct {
	books        int
	descriptions int
	users        int
	entitlements int
	duplicates   int
	skipped      int
}

func main() {
	_ = godotenv.Load()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil)).With("service", "careerbooks-legacy-import")

	opts, err := parseFlags(os.Args[1:])
	if err != nil {
		logger.Error("invalid arguments", "error", err)
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()

	if err := run(ctx, opts, logger); err != nil {
		logger.Error("import failed", "error", err)
		os.Exit(1)
	}
}

func parseFlags(args []string) (*importOptions, error) {
	fs := flag.NewFlagSet("legacy-import", flag.ContinueOnError)
	var (
		o        importOptions
		fallback string
	)
	fs.StringVar(&o.mongoURI, "mongo-uri", os.Getenv("MONGODB_URI"), "Legacy MongoDB connection string")
	fs.StringVar(&o.mongoDB, "mongo-db", envOr("MONGODB_DATABASE", "careerbooks"), "Legacy database name")
	fs.StringVar(&o.databaseURL, "database-url", os.Getenv("DATABASE_URL"), "PostgreSQL connection string")
	fs.StringVar(&o.filePrefix, "file-prefix", "books/", "Object key prefix prepended to legacy file names")
	fs.StringVar(&fallback, "fallback-date", time.Now().UTC().Format(time.DateOnly), "Acquisition date for entitlements stored as bare slugs (YYYY-MM-DD)")
	fs.BoolVar(&o.descriptions, "descriptions", true, "Copy legacy descriptions into the description store")
	fs.BoolVar(&o.dryRun, "dry-run", false, "Read and convert without writing")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if o.mongoURI == "" {
		return nil, fmt.Errorf("MONGODB_URI or -mongo-uri is required")
	}
	if o.databaseURL == "" && !o.dryRun {
		return nil, fmt.Errorf("DATABASE_URL or -database-url is required")
	}
	t, err := time.Parse(time.DateOnly, fallback)
	if err != nil {
		return nil, fmt.Errorf("fallback-date: %w", err)
	}
	o.fallbackDate = t.UTC()
	return &o, nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func run(ctx context.Context, o *importOptions, logger *slog.Logger) error {
	client, err := mongo.Connect(options.Client().ApplyURI(o.mongoURI))
	if err != nil {
		return fmt.Errorf("connect mongo: %w", err)
	}
	defer func() { _ = client.Disconnect(context.Background()) }()
	if err := client.Ping(ctx, nil); err != nil {
		return fmt.Errorf("ping mongo: %w", err)
	}
	db := client.Database(o.mongoDB)

	var legacyBooks []legacyBook
	if err := readAll(ctx, db.Collection("books"), &legacyBooks); err != nil {
		return fmt.Errorf("read books: %w", err)
	}
	var legacyUsers []legacyUser
	if err := readAll(ctx, db.Collection("users"), &legacyUsers); err != nil {
		return fmt.Errorf("read users: %w", err)
	}
	logger.Info("legacy data loaded", "books", len(legacyBooks), "users", len(legacyUsers))

	now := time.Now().UTC()
	books, err := convertBooks(legacyBooks, o.filePrefix, now)
	if err != nil {
		return err
	}

	if o.dryRun {
		var ents, skipped int
		for _, d := range legacyUsers {
			e, s := normalizeEntitlements(d.UserID, d.PurchasedBooks, o.fallbackDate)
			ents += len(e)
			skipped += len(s)
		}
		logger.Info("dry run complete", "books", len(books), "users", len(legacyUsers), "entitlements", ents, "skipped", skipped)
		return nil
	}

	repo, err := repository.New(ctx, o.databaseURL, repository.DefaultPoolOptions)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer repo.Close()

	var sum summary

	// Books go first so entitlements reference existing slugs.
	for _, b := range books {
		if err := repo.UpsertImportedBook(ctx, b); err != nil {
			return err
		}
		sum.books++
	}

	if o.descriptions {
		n, err := importDescriptions(ctx, legacyBooks, logger)
		if err != nil {
			return err
		}
		sum.descriptions = n
	}

	for _, d := range legacyUsers {
		user, err := convertUser(d, uuid.NewString(), now)
		if err != nil {
			logger.Warn("user skipped", "error", err)
			sum.skipped++
			continue
		}
		id, err := repo.UpsertImportedUser(ctx, user)
		if err != nil {
			return err
		}
		sum.users++

		ents, skipped := normalizeEntitlements(id, d.PurchasedBooks, o.fallbackDate)
		for _, reason := range skipped {
			logger.Warn("entitlement skipped", "handle", user.Handle, "reason", reason)
		}
		sum.skipped += len(skipped)

		for _, e := range ents {
			inserted, err := repo.ImportEntitlement(ctx, e)
			if err != nil {
				// Usually an entitlement for a book that no longer exists.
				logger.Warn("entitlement not imported", "handle", user.Handle, "slug", e.BookSlug, "error", err)
				sum.skipped++
				continue
			}
			if inserted {
				sum.entitlements++
			} else {
				sum.duplicates++
			}
		}
	}

	logger.Info("import complete",
		"books", sum.books,
		"descriptions", sum.descriptions,
		"users", sum.users,
		"entitlements", sum.entitlements,
		"already_present", sum.duplicates,
		"skipped", sum.skipped,
	)
	return nil
}

func readAll[T any](ctx context.Context, col *mongo.Collection, out *[]T) error {
	cur, err := col.Find(ctx, bson.D{}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return err
	}
	return cur.All(ctx, out)
}

// importDescriptions writes non-empty legacy descriptions to the MinIO store
// configured through the same environment as the API.
func importDescriptions(ctx context.Context, docs []legacyBook, logger *slog.Logger) (int, error) {
	store, err := storage.NewDescriptionStore(storage.DescriptionStoreConfig{
		Endpoint:  envOr("MINIO_ENDPOINT", "localhost:9000"),
		AccessKey: envOr("MINIO_ACCESS_KEY", "minioadmin"),
		SecretKey: envOr("MINIO_SECRET_KEY", "minioadmin"),
		Bucket:    envOr("MINIO_BUCKET", "careerbooks-descriptions"),
		UseSSL:    os.Getenv("MINIO_USE_SSL") == "true",
	}, logger)
	if err != nil {
		return 0, fmt.Errorf("description store: %w", err)
	}
	if err := store.EnsureBucket(ctx); err != nil {
		return 0, fmt.Errorf("description bucket: %w", err)
	}

	n := 0
	for _, d := range docs {
		if d.Description == "" {
			continue
		}
		if err := store.Put(ctx, d.Slug, d.Description); err != nil {
			return n, fmt.Errorf("description %q: %w", d.Slug, err)
		}
		n++
	}
	return n, nil
}
