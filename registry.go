package subhub

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/xraph/subhub/claim"
	"github.com/xraph/subhub/id"
	"github.com/xraph/subhub/service"
	"github.com/xraph/subhub/types"
)

// ──────────────────────────────────────────────────
// Service registry
// ──────────────────────────────────────────────────

// Register registers a service for the calling proposer. The proposer's
// lowest slot without an active service is used, so a proposer that
// unregistered a service and registers again gets the same service id back
// at the next version.
func (h *Hub) Register(ctx context.Context, receiver, asset common.Address, amount types.Amount) (*service.Registration, error) {
	proposer, err := h.sender(ctx)
	if err != nil {
		return nil, err
	}
	if amount.IsZero() {
		return nil, ErrInvalidAmount
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	owned, err := h.store.ListServices(ctx, proposer)
	if err != nil {
		return nil, fmt.Errorf("subhub: list services: %w", err)
	}

	var svc *service.Service
	for _, s := range owned {
		if !s.Active {
			svc = s
			break
		}
	}
	if svc == nil {
		slot := uint64(len(owned))
		svc = &service.Service{
			Entity:   types.NewEntity(),
			ID:       service.DeriveID(proposer, slot),
			Slot:     slot,
			Proposer: proposer,
		}
	}

	return h.publish(ctx, svc, receiver, asset, amount)
}

// Reregister publishes a new version of an existing service. Every
// subscription bound to an earlier version stops being honored at once.
func (h *Hub) Reregister(ctx context.Context, serviceID service.ID, receiver, asset common.Address, amount types.Amount) (*service.Registration, error) {
	caller, err := h.sender(ctx)
	if err != nil {
		return nil, err
	}
	if amount.IsZero() {
		return nil, ErrInvalidAmount
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	svc, err := h.store.GetService(ctx, serviceID)
	if err != nil {
		return nil, err
	}
	if svc.Proposer != caller {
		return nil, ErrUnauthorized
	}

	return h.publish(ctx, svc, receiver, asset, amount)
}

// publish bumps the version of svc with a new configuration. Callers hold h.mu.
func (h *Hub) publish(ctx context.Context, svc *service.Service, receiver, asset common.Address, amount types.Amount) (*service.Registration, error) {
	// Proceeds are accounted per service, so settle the old asset out
	// before switching to a new one.
	if svc.Version > 0 && svc.Asset != asset {
		if _, err := h.payOut(ctx, svc, claim.PayoutAutoClaim); err != nil {
			return nil, err
		}
	}

	svc.Receiver = receiver
	svc.Asset = asset
	svc.Amount = amount
	svc.Version++
	svc.Active = true
	svc.Touch()

	if err := h.store.SaveService(ctx, svc); err != nil {
		return nil, fmt.Errorf("subhub: save service: %w", err)
	}

	reg := &service.Registration{
		ID:           id.NewRegistrationID(),
		ServiceID:    svc.ID,
		Proposer:     svc.Proposer,
		Version:      svc.Version,
		Time:         h.clock.Now(),
		RegisteredAt: time.Now().UTC(),
	}
	if err := h.store.AppendRegistration(ctx, reg); err != nil {
		return nil, fmt.Errorf("subhub: record registration: %w", err)
	}

	h.plugins.EmitServiceRegistered(ctx, svc, reg)

	h.logger.Info("service registered",
		"service_id", svc.ID.Hex(),
		"proposer", svc.Proposer.Hex(),
		"version", svc.Version,
		"amount", svc.Amount.String(),
	)

	return reg, nil
}

// Unregister deactivates a service. Outstanding proceeds are paid to the
// receiver first. Existing subscriptions stop being honored through the
// active flag alone and are swept when they next come due.
func (h *Hub) Unregister(ctx context.Context, serviceID service.ID) error {
	caller, err := h.sender(ctx)
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	svc, err := h.store.GetService(ctx, serviceID)
	if err != nil {
		return err
	}
	if svc.Proposer != caller {
		return ErrUnauthorized
	}
	if !svc.Active {
		return fmt.Errorf("%w: %s is not active", ErrInvalidService, serviceID.Hex())
	}

	if _, err := h.payOut(ctx, svc, claim.PayoutAutoClaim); err != nil {
		return err
	}

	svc.Active = false
	svc.Touch()
	if err := h.store.SaveService(ctx, svc); err != nil {
		return fmt.Errorf("subhub: save service: %w", err)
	}

	h.plugins.EmitServiceUnregistered(ctx, svc)

	h.logger.Info("service unregistered",
		"service_id", svc.ID.Hex(),
		"version", svc.Version,
	)

	return nil
}

// Configuration returns the latest registered configuration, whether or not
// the service is active.
func (h *Hub) Configuration(ctx context.Context, serviceID service.ID) (*service.Config, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	svc, err := h.store.GetService(ctx, serviceID)
	if err != nil {
		return nil, err
	}
	return svc.Config(), nil
}

// EncodedConfiguration returns the configuration ABI-encoded as
// (proposer, receiver, asset, amount, version).
func (h *Hub) EncodedConfiguration(ctx context.Context, serviceID service.ID) ([]byte, error) {
	cfg, err := h.Configuration(ctx, serviceID)
	if err != nil {
		return nil, err
	}
	return service.EncodeConfiguration(cfg)
}

// IsValidService reports whether the service is active at version.
func (h *Hub) IsValidService(ctx context.Context, serviceID service.ID, version uint64) (bool, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	svc, err := h.store.GetService(ctx, serviceID)
	if err != nil {
		return false, ignoreNotFound(err)
	}
	return svc.IsValid(version), nil
}

// ListServices returns the ids of every service proposer registered, in
// slot order.
func (h *Hub) ListServices(ctx context.Context, proposer common.Address) ([]service.ID, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	owned, err := h.store.ListServices(ctx, proposer)
	if err != nil {
		return nil, err
	}
	ids := make([]service.ID, len(owned))
	for i, s := range owned {
		ids[i] = s.ID
	}
	return ids, nil
}

// Registrations returns the registration history of a service.
func (h *Hub) Registrations(ctx context.Context, serviceID service.ID) ([]*service.Registration, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.store.ListRegistrations(ctx, serviceID)
}

// ServiceCount returns the number of active services.
func (h *Hub) ServiceCount(ctx context.Context) (int, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.store.CountServices(ctx)
}
