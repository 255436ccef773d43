package providers

import (
	"path/filepath"

	"github.com/samber/do/v2"

	"github.com/ladderline/ladder-server/internal/config"
	"github.com/ladderline/ladder-server/internal/logger"
	"github.com/ladderline/ladder-server/internal/store"
	"github.com/ladderline/ladder-server/internal/store/sqlite"
)

// StoreHandle wraps the store with shutdown capability.
type StoreHandle struct {
	*store.Store
}

// Shutdown implements do.Shutdownable.
func (h *StoreHandle) Shutdown() error {
	return h.Close()
}

// ProvideStore provides the Badger store.
func ProvideStore(i do.Injector) (*StoreHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	dbPath := filepath.Join(cfg.App.DataDir, "db")
	db, err := store.New(dbPath, log.Component("store"))
	if err != nil {
		return nil, err
	}

	log.Info("Database initialized", "path", dbPath)

	return &StoreHandle{Store: db}, nil
}

// AuditLogHandle wraps the SQLite audit log with shutdown capability.
type AuditLogHandle struct {
	*sqlite.Store
}

// Shutdown implements do.Shutdownable.
func (h *AuditLogHandle) Shutdown() error {
	return h.Close()
}

// ProvideAuditLog provides the SQLite audit log.
func ProvideAuditLog(i do.Injector) (*AuditLogHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	path := filepath.Join(cfg.App.DataDir, "audit.db")
	db, err := sqlite.Open(path, log.Component("audit"))
	if err != nil {
		return nil, err
	}

	log.Info("Audit log initialized", "path", path)

	return &AuditLogHandle{Store: db}, nil
}
