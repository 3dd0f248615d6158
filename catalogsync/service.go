package catalogsync

import (
	"context"
	"errors"
	"time"

	"github.com/maresto/inventory_backend/config"
	"github.com/maresto/inventory_backend/models"
	"github.com/maresto/inventory_backend/utils"
)

const dispatchTimeout = 5 * time.Second

// Service runs the branch operations that talk to the upstream catalog.
// Product upserts are dispatched only after the branch write has committed.
type Service struct {
	fetcher    Fetcher
	dispatcher Dispatcher
}

func NewService(fetcher Fetcher, dispatcher Dispatcher) *Service {
	return &Service{fetcher: fetcher, dispatcher: dispatcher}
}

func (s *Service) fetch(ctx context.Context, input *models.NewBranch) (*models.CatalogBranch, error) {
	catalog, err := s.fetcher.FetchBranch(ctx, input.ReferenceId)
	if err != nil {
		if errors.Is(err, ErrBranchNotFound) {
			return nil, utils.NotFound("reference_id", "not found at upstream catalog")
		}
		config.LogError(config.GetLogger(), "catalogsync", "fetch", "fetching upstream branch", input.ReferenceId, err)
		return nil, utils.Persistence("reference_id", err)
	}
	return catalog, nil
}

// CreateBranch checks the upstream catalog knows the branch, stores it, then queues the product sync.
func (s *Service) CreateBranch(ctx context.Context, input *models.NewBranch) (*models.Branch, error) {
	catalog, err := s.fetch(ctx, input)
	if err != nil {
		return nil, err
	}
	branch, err := models.CreateBranch(ctx, input, catalog)
	if err != nil {
		return nil, err
	}
	s.dispatch(ctx, branch, catalog, "create")
	return branch, nil
}

// SyncBranch refreshes name and snapshot from upstream, then queues the product sync.
func (s *Service) SyncBranch(ctx context.Context, id int) (*models.Branch, error) {
	branch, err := models.GetBranch(ctx, id)
	if err != nil {
		return nil, err
	}
	catalog, err := s.fetch(ctx, &models.NewBranch{ReferenceId: branch.ReferenceId})
	if err != nil {
		return nil, err
	}
	branch, err = models.ApplyCatalogSnapshot(ctx, id, catalog)
	if err != nil {
		return nil, err
	}
	s.dispatch(ctx, branch, catalog, "sync")
	return branch, nil
}

// dispatch never fails the request: the branch is already committed.
func (s *Service) dispatch(ctx context.Context, branch *models.Branch, catalog *models.CatalogBranch, reason string) {
	if s.dispatcher == nil || catalog == nil {
		return
	}
	dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), dispatchTimeout)
	defer cancel()
	task := Task{
		BranchId:    branch.ID,
		ReferenceId: branch.ReferenceId,
		Reason:      reason,
		Products:    catalog.Products,
	}
	if err := s.dispatcher.Dispatch(dctx, task); err != nil {
		config.LogError(config.GetLogger(), "catalogsync", "dispatch", "dispatching catalog sync task", branch.ID, err)
	}
}
