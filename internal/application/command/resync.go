package command

import (
	"context"

	"github.com/edutracker/edutracker/internal/infrastructure/dualwrite"
)

// Resyncer pulls the remote store into the local cache.
type Resyncer interface {
	Resync(ctx context.Context, mode dualwrite.Mode) (*dualwrite.ResyncResult, error)
}

// ResyncCommand triggers a resync. Mode defaults to the handler's default.
type ResyncCommand struct {
	Mode string `json:"mode" validate:"omitempty,oneof=overwrite merge"`
}

// ResyncHandler handles ResyncCommand.
type ResyncHandler struct {
	resyncer    Resyncer
	defaultMode dualwrite.Mode
}

// NewResyncHandler creates the handler.
func NewResyncHandler(r Resyncer, defaultMode dualwrite.Mode) *ResyncHandler {
	if defaultMode == "" {
		defaultMode = dualwrite.ModeOverwrite
	}
	return &ResyncHandler{resyncer: r, defaultMode: defaultMode}
}

// Handle runs the resync.
func (h *ResyncHandler) Handle(ctx context.Context, cmd ResyncCommand) (*dualwrite.ResyncResult, error) {
	if err := validateStruct("resync", cmd); err != nil {
		return nil, err
	}
	mode := h.defaultMode
	if cmd.Mode != "" {
		mode = dualwrite.Mode(cmd.Mode)
	}
	return h.resyncer.Resync(ctx, mode)
}
