package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jjckrbbt/labcatalog/internal/repository"
)

// ServiceStore is the part of the repository the resolver needs.
type ServiceStore interface {
	GetServiceByName(ctx context.Context, name string) (repository.Service, error)
	CreateServiceIfAbsent(ctx context.Context, arg repository.CreateServiceParams) (int64, error)
}

// ServiceResolver looks up service registry entries by name and creates
// them on first use.
type ServiceResolver struct {
	store  ServiceStore
	logger *slog.Logger
}

func NewServiceResolver(store ServiceStore, logger *slog.Logger) *ServiceResolver {
	return &ServiceResolver{store: store, logger: logger.With("component", "service_resolver")}
}

// Resolve returns the registry entry whose name matches case-insensitively,
// creating it with category = name when absent. Creation is an
// insert-if-absent followed by a re-read, so two runs racing on the same new
// name both end up with the single stored row.
func (r *ServiceResolver) Resolve(ctx context.Context, name string) (repository.Service, error) {
	svc, err := r.store.GetServiceByName(ctx, name)
	if err == nil {
		return svc, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return repository.Service{}, fmt.Errorf("failed to look up service %q: %w", name, err)
	}

	created, err := r.store.CreateServiceIfAbsent(ctx, repository.CreateServiceParams{
		ID:       uuid.New(),
		Name:     name,
		Category: name,
		IsActive: true,
	})
	if err != nil {
		return repository.Service{}, fmt.Errorf("failed to create service %q: %w", name, err)
	}

	svc, err = r.store.GetServiceByName(ctx, name)
	if err != nil {
		return repository.Service{}, fmt.Errorf("failed to read back service %q: %w", name, err)
	}
	if created > 0 {
		r.logger.InfoContext(ctx, "Registered new service", "service", svc.Name, "service_id", svc.ID)
	}
	return svc, nil
}
