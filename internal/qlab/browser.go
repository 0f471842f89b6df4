package qlab

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/remote-cue-control/backend/internal/logging"
	"github.com/remote-cue-control/backend/internal/model"
)

type workspaceInfo struct {
	UniqueID    string `json:"uniqueID"`
	DisplayName string `json:"displayName"`
	HasPasscode bool   `json:"hasPasscode"`
	Version     string `json:"version,omitempty"`
}

// Browser lists the workspaces a QLab host has open.
type Browser struct {
	timeout time.Duration
	log     *logging.Logger
}

// NewBrowser creates a browser whose requests wait up to timeout.
func NewBrowser(timeout time.Duration, logger *logging.Logger) *Browser {
	return &Browser{
		timeout: timeout,
		log:     logger.Named("browser"),
	}
}

// ListWorkspaces asks server for its open workspaces and returns a copy of
// server carrying them.
func (b *Browser) ListWorkspaces(ctx context.Context, server *model.Server) (*model.Server, error) {
	client, err := Dial(server.Host, server.Port, b.timeout, b.log)
	if err != nil {
		return nil, err
	}
	defer client.Close()

	reply, err := client.Request(ctx, "/workspaces")
	if err != nil {
		return nil, fmt.Errorf("list workspaces on %s: %w", server.Key(), err)
	}

	var infos []workspaceInfo
	if err := reply.Decode(&infos); err != nil {
		return nil, err
	}

	out := &model.Server{
		Name: server.Name,
		Host: server.Host,
		Port: server.Port,
	}
	for _, info := range infos {
		out.Workspaces = append(out.Workspaces, &model.Workspace{
			ID:          info.UniqueID,
			Name:        info.DisplayName,
			ServerName:  server.Name,
			Host:        server.Host,
			Port:        server.Port,
			HasPasscode: info.HasPasscode,
		})
	}

	b.log.Debug("listed workspaces",
		zap.String("server", server.Key()),
		zap.Int("count", len(out.Workspaces)))
	return out, nil
}
