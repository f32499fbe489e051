package store

import (
	"context"

	"go.uber.org/zap"

	errs "github.com/crawlkit/tracker/internal/errors"
)

// CredentialManager administers the access credential the store holds
// server-side. Each method is a direct forward of one store
// administration call; existing sessions keep their authentication
// until they reconnect.
type CredentialManager struct {
	store  *RedisStore
	logger *zap.Logger
}

// NewCredentialManager creates a credential manager bound to a session
func NewCredentialManager(store *RedisStore, logger *zap.Logger) *CredentialManager {
	return &CredentialManager{store: store, logger: logger}
}

// SetCredential sets the server-side access credential
func (m *CredentialManager) SetCredential(ctx context.Context, credential string) error {
	if err := m.store.client.ConfigSet(ctx, "requirepass", credential).Err(); err != nil {
		return errs.Unavailable("failed to set credential", err)
	}
	m.logger.Info("Store credential set")
	return nil
}

// ResetCredential clears the server-side access credential
func (m *CredentialManager) ResetCredential(ctx context.Context) error {
	if err := m.store.client.ConfigSet(ctx, "requirepass", "").Err(); err != nil {
		return errs.Unavailable("failed to reset credential", err)
	}
	m.logger.Info("Store credential reset")
	return nil
}

// RotateCredential replaces the server-side access credential and
// verifies the session still reaches the store afterwards.
func (m *CredentialManager) RotateCredential(ctx context.Context, credential string) error {
	if err := m.store.client.ConfigSet(ctx, "requirepass", credential).Err(); err != nil {
		return errs.Unavailable("failed to rotate credential", err)
	}
	if err := m.store.Ping(ctx); err != nil {
		return errs.Unavailable("session lost after credential rotation", err)
	}
	m.logger.Info("Store credential rotated")
	return nil
}
