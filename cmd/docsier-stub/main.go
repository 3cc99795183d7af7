package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/docsier/docsier-go/internal/devserver"
	"github.com/docsier/docsier-go/internal/domain"
	"github.com/docsier/docsier-go/internal/observability"
)

type options struct {
	addr      string
	dbPath    string
	dbDSN     string
	secret    string
	redisAddr string
	seed      bool
}

func newRootCommand() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:          "docsier-stub",
		Short:        "Local Docsier backend stand-in for development",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), opts)
		},
	}
	cmd.Flags().StringVar(&opts.addr, "addr", ":8000", "listen address")
	cmd.Flags().StringVar(&opts.dbPath, "db", "docsier-stub.db", "sqlite database path")
	cmd.Flags().StringVar(&opts.dbDSN, "db-dsn", "", "postgres DSN (overrides --db)")
	cmd.Flags().StringVar(&opts.secret, "secret", "", "token signing secret (generated when empty)")
	cmd.Flags().StringVar(&opts.redisAddr, "redis-addr", "", "redis address for upload idempotency (optional)")
	cmd.Flags().BoolVar(&opts.seed, "seed", true, "seed demo clients, documents and deadlines")
	return cmd
}

func run(ctx context.Context, opts *options) error {
	logger := observability.NewLogger(os.Getenv("DOCSIER_LOG_LEVEL"))

	store, err := devserver.OpenStore(opts.dbPath, opts.dbDSN)
	if err != nil {
		return err
	}
	secret := opts.secret
	if secret == "" {
		secret = uuid.NewString()
	}
	cfg := devserver.Config{
		TokenSecret: secret,
		User:        devserver.Identity{ID: uuid.NewString(), Email: "dev@docsier.local", Name: "Dev User"},
	}
	if opts.redisAddr != "" {
		cfg.Redis = redis.NewClient(&redis.Options{Addr: opts.redisAddr})
	}
	srv := devserver.New(store, cfg, logger)

	if opts.seed {
		if err := seedDemoData(store); err != nil {
			return err
		}
	}
	token, err := srv.IssueLoginToken()
	if err != nil {
		return err
	}
	fmt.Printf("login token: %s\n", token)
	fmt.Printf("run: docsier login --token %s\n", token)

	httpServer := &http.Server{
		Addr:              opts.addr,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("devserver listening", "addr", opts.addr)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func seedDemoData(store *devserver.Store) error {
	existing, err := store.ListClients()
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return nil
	}

	clientID := uuid.NewString()
	if err := store.CreateClient(&devserver.ClientRecord{
		ID:        clientID,
		Name:      "Meridian Holdings",
		Email:     "legal@meridian.example",
		Company:   "Meridian Holdings LLC",
		Active:    true,
		CreatedAt: time.Now(),
	}); err != nil {
		return err
	}

	docID := uuid.NewString()
	if err := store.CreateDocument(&devserver.DocumentRecord{
		ID:         docID,
		ClientID:   clientID,
		Filename:   "retainer-agreement.pdf",
		DocType:    string(domain.DocContract),
		Summary:    "Retainer agreement covering general corporate matters.",
		Confidence: 0.94,
		CreatedAt:  time.Now(),
	}); err != nil {
		return err
	}
	if err := store.SaveValidation(docID, &domain.ValidationResult{
		ValidationStatus: domain.ValidationValidated,
		ConfidenceScore:  0.91,
		Feedback:         "Parties and dates match the filing record.",
		VerifiedItems:    []string{"parties", "effective date"},
	}); err != nil {
		return err
	}

	deadlines := []devserver.DeadlineRecord{
		{ID: uuid.NewString(), ClientID: clientID, Date: "2026-09-02", Description: "Answer due in Meridian v. Castor", WorkingDaysRemaining: 2, SourceID: docID},
		{ID: uuid.NewString(), ClientID: clientID, Date: "2026-09-18", Description: "Discovery cutoff", WorkingDaysRemaining: 13},
		{ID: uuid.NewString(), ClientID: clientID, Date: "2026-08-25", Description: "Lease renewal notice", WorkingDaysRemaining: -3},
	}
	for i := range deadlines {
		deadlines[i].CreatedAt = time.Now()
		if err := store.CreateDeadline(&deadlines[i]); err != nil {
			return err
		}
	}
	return nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		slog.Error("devserver failed", "error", err)
		os.Exit(1)
	}
}
