package providers

import (
	"github.com/samber/do/v2"

	"github.com/ladderline/ladder-server/internal/config"
	"github.com/ladderline/ladder-server/internal/logger"
	"github.com/ladderline/ladder-server/internal/search"
)

// PlayerIndexHandle wraps the player directory with shutdown capability.
type PlayerIndexHandle struct {
	*search.PlayerIndex
}

// Shutdown implements do.Shutdownable.
func (h *PlayerIndexHandle) Shutdown() error {
	return h.Close()
}

// ProvidePlayerIndex provides the Bleve player directory. It starts empty or
// stale; ProvideLeaderboardService rebuilds it from the restored boards.
func ProvidePlayerIndex(i do.Injector) (*PlayerIndexHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	index, err := search.NewPlayerIndex(search.Options{
		DataPath: cfg.App.DataDir,
		Logger:   log.Component("search"),
	})
	if err != nil {
		return nil, err
	}

	docCount, _ := index.DocumentCount()
	log.Info("Player index initialized", "documents", docCount)

	return &PlayerIndexHandle{PlayerIndex: index}, nil
}
