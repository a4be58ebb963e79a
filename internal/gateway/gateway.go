// ==============================================================================
// REMOTE GATEWAY - internal/gateway/gateway.go
// ==============================================================================
// Everything a form session needs from outside the process: distributor
// lookup, image hosting and the atomic client commit.
// ==============================================================================

package gateway

import (
	"context"
	"time"

	"onboard/internal/domain"
	"onboard/pkg/errors"
	"onboard/pkg/logger"
)

type DistributorRepository interface {
	FindByID(ctx context.Context, id string) (*domain.Distributor, error)
}

type ClientRepository interface {
	Commit(ctx context.Context, rec *domain.ClientRecord, reminders []domain.ReminderRecord, mode domain.SubmitMode) (string, error)
	FindByID(ctx context.Context, clientID string) (*domain.ClientRecord, error)
}

type ImageHost interface {
	Check(file domain.ImageUpload) error
	Upload(ctx context.Context, file domain.ImageUpload) (string, error)
}

// Gateway satisfies wizard.Remote.
type Gateway struct {
	distributors DistributorRepository
	clients      ClientRepository
	images       ImageHost
	logger       logger.Logger
}

func New(distributors DistributorRepository, clients ClientRepository, images ImageHost, log logger.Logger) *Gateway {
	return &Gateway{
		distributors: distributors,
		clients:      clients,
		images:       images,
		logger:       log,
	}
}

func (g *Gateway) ResolveDistributor(ctx context.Context, id string) (*domain.Distributor, error) {
	return g.distributors.FindByID(ctx, id)
}

func (g *Gateway) CheckImage(file domain.ImageUpload) error {
	return g.images.Check(file)
}

func (g *Gateway) UploadImage(ctx context.Context, file domain.ImageUpload) (string, error) {
	return g.images.Upload(ctx, file)
}

// CommitClient writes the client and one reminder per card in a single
// transaction. Any failure leaves nothing written.
func (g *Gateway) CommitClient(ctx context.Context, rec *domain.ClientRecord, reminders []domain.ReminderRecord, mode domain.SubmitMode) (string, error) {
	startTime := time.Now()

	id, err := g.clients.Commit(ctx, rec, reminders, mode)
	if err != nil {
		if errors.Is(err, errors.ErrClientNotFound) {
			return "", err
		}
		return "", errors.Wrap(errors.ErrCommitFailed, err.Error())
	}

	g.logger.Debug("Client committed", map[string]interface{}{
		"client_id":   id,
		"mode":        string(mode),
		"reminders":   len(reminders),
		"duration_ms": time.Since(startTime).Milliseconds(),
	})
	return id, nil
}

// LoadClientForEdit returns the stored client with its distributor and owning
// user so the wizard can decide whether the caller may edit it.
func (g *Gateway) LoadClientForEdit(ctx context.Context, clientID string) (*domain.ClientRecord, error) {
	return g.clients.FindByID(ctx, clientID)
}
