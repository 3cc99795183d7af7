package aggregator

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/docsier/docsier-go/internal/api"
	"github.com/docsier/docsier-go/internal/domain"
)

// ErrSuperseded reports that a load finished after a newer selection had
// already been made; its result was discarded, not published.
var ErrSuperseded = errors.New("load superseded by a newer selection")

// Snapshot is the merged, consistent view of one client's data, published
// only after every constituent fetch has settled.
type Snapshot struct {
	ClientID           string
	Documents          []domain.DocumentWithValidation
	ActiveDeadlines    []domain.Deadline
	CompletedDeadlines []domain.Deadline
	DocumentStats      domain.DocumentStats
	DeadlineStats      domain.DeadlineStats
	LoadedAt           time.Time
}

// Aggregator retrieves and merges a selected client's deadlines, documents,
// validations and stats, and re-runs the cycle on selection changes and
// mutations. The snapshot is single-writer: only the most recently initiated
// load for the current selection may publish.
type Aggregator struct {
	api    *api.Client
	logger *slog.Logger

	gen atomic.Uint64

	mu         sync.RWMutex
	clients    []domain.Client
	selectedID string
	snapshot   Snapshot
}

func New(apiClient *api.Client, logger *slog.Logger) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{api: apiClient, logger: logger}
}

// LoadClients fetches the client list and, when nothing is selected yet,
// selects the first entry in backend order. On failure the list is emptied
// and the error returned for the caller to surface.
func (a *Aggregator) LoadClients(ctx context.Context) ([]domain.Client, error) {
	list, err := a.api.Clients(ctx)
	if err != nil {
		a.mu.Lock()
		a.clients = nil
		a.mu.Unlock()
		return nil, err
	}
	a.mu.Lock()
	a.clients = list
	if a.selectedID == "" && len(list) > 0 {
		a.selectedID = list[0].ID
	}
	a.mu.Unlock()
	return list, nil
}

func (a *Aggregator) Clients() []domain.Client {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.clients
}

func (a *Aggregator) SelectedClient() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.selectedID
}

func (a *Aggregator) Snapshot() Snapshot {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.snapshot
}

// LoadForClient fans out the independent reads for one client, waits for all
// of them, merges per-document validations, and publishes the result. If a
// newer load was initiated meanwhile the finished result is discarded and
// ErrSuperseded returned. A primary fetch failure publishes an
// empty-but-valid snapshot rather than retaining stale data.
func (a *Aggregator) LoadForClient(ctx context.Context, clientID string) (Snapshot, error) {
	gen := a.gen.Add(1)
	a.mu.Lock()
	a.selectedID = clientID
	a.mu.Unlock()

	var (
		docs      []domain.ClassifiedDocument
		docStats  *domain.DocumentStats
		active    []domain.Deadline
		completed []domain.Deadline
		dlStats   *domain.DeadlineStats
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		docs, err = a.api.Documents(gctx, clientID)
		return err
	})
	g.Go(func() error {
		var err error
		docStats, err = a.api.DocumentStats(gctx, clientID)
		return err
	})
	g.Go(func() error {
		var err error
		active, err = a.api.Deadlines(gctx, clientID, false)
		return err
	})
	g.Go(func() error {
		var err error
		completed, err = a.api.Deadlines(gctx, clientID, true)
		return err
	})
	g.Go(func() error {
		var err error
		dlStats, err = a.api.DeadlineStats(gctx, clientID)
		return err
	})
	if err := g.Wait(); err != nil {
		empty := Snapshot{ClientID: clientID, LoadedAt: time.Now()}
		a.publish(gen, empty)
		a.logger.Error("client data load failed", "client_id", clientID, "error", err)
		return empty, err
	}

	// Per-document validation fan-out: failures are isolated to the single
	// document, which stays in the merge with no validation attached.
	merged := make([]domain.DocumentWithValidation, len(docs))
	var vg errgroup.Group
	for i := range docs {
		merged[i].ClassifiedDocument = docs[i]
		if docs[i].DocumentID == "" {
			continue
		}
		i := i
		vg.Go(func() error {
			v, err := a.api.Validation(ctx, merged[i].DocumentID)
			if err != nil {
				if !errors.Is(err, api.ErrValidationUnavailable) {
					a.logger.Warn("validation fetch failed", "document_id", merged[i].DocumentID, "error", err)
				}
				return nil
			}
			merged[i].Validation = v
			return nil
		})
	}
	_ = vg.Wait()

	snap := Snapshot{
		ClientID:           clientID,
		Documents:          merged,
		ActiveDeadlines:    active,
		CompletedDeadlines: completed,
		DocumentStats:      *docStats,
		DeadlineStats:      *dlStats,
		LoadedAt:           time.Now(),
	}
	if !a.publish(gen, snap) {
		return snap, ErrSuperseded
	}
	return snap, nil
}

// Reload re-runs the cycle for the current selection.
func (a *Aggregator) Reload(ctx context.Context) (Snapshot, error) {
	selected := a.SelectedClient()
	if selected == "" {
		return Snapshot{}, errors.New("no client selected")
	}
	return a.LoadForClient(ctx, selected)
}

// MarkDeadline commands the one state transition the client owns: moving a
// deadline between the active and completed partitions. No local state is
// touched until the backend confirms; then the whole snapshot refreshes.
func (a *Aggregator) MarkDeadline(ctx context.Context, clientID, deadlineID string, complete bool) error {
	var err error
	if complete {
		err = a.api.CompleteDeadline(ctx, clientID, deadlineID)
	} else {
		err = a.api.UncompleteDeadline(ctx, clientID, deadlineID)
	}
	if err != nil {
		return err
	}
	if _, err := a.LoadForClient(ctx, clientID); err != nil && !errors.Is(err, ErrSuperseded) {
		return err
	}
	return nil
}

// UploadDocument submits a file and refreshes the client's snapshot. A
// response without the canonical document identifier surfaces as
// api.ErrMissingDocumentID and leaves local state untouched.
func (a *Aggregator) UploadDocument(ctx context.Context, clientID, filename string, contents io.Reader) (*api.UploadResult, error) {
	res, err := a.api.UploadDocument(ctx, clientID, filename, contents)
	if err != nil {
		return nil, err
	}
	if _, err := a.LoadForClient(ctx, clientID); err != nil && !errors.Is(err, ErrSuperseded) {
		return res, err
	}
	return res, nil
}

// DeleteDocument removes a document by its canonical id, then refreshes.
func (a *Aggregator) DeleteDocument(ctx context.Context, clientID, documentID string) error {
	if err := a.api.DeleteDocument(ctx, clientID, documentID); err != nil {
		return err
	}
	if _, err := a.LoadForClient(ctx, clientID); err != nil && !errors.Is(err, ErrSuperseded) {
		return err
	}
	return nil
}

// CreateClient persists a new client and appends it locally with the
// zero-valued document-count projection.
func (a *Aggregator) CreateClient(ctx context.Context, nc domain.NewClient) (*domain.Client, error) {
	created, err := a.api.CreateClient(ctx, nc)
	if err != nil {
		return nil, err
	}
	created.DocumentCount = 0
	a.mu.Lock()
	a.clients = append(a.clients, *created)
	a.mu.Unlock()
	return created, nil
}

// UrgentDeadlines reads the cross-client top-N by urgency; it bypasses the
// per-client snapshot.
func (a *Aggregator) UrgentDeadlines(ctx context.Context, limit int) ([]domain.Deadline, error) {
	return a.api.UrgentDeadlines(ctx, limit)
}

// Analyses reads the stored strategic analyses for a client and type.
func (a *Aggregator) Analyses(ctx context.Context, clientID string, analysisType domain.AnalysisType) ([]domain.StrategicAnalysis, error) {
	return a.api.Analyses(ctx, clientID, analysisType)
}

func (a *Aggregator) publish(gen uint64, snap Snapshot) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.gen.Load() != gen {
		return false
	}
	a.snapshot = snap
	return true
}
