package query

import (
	"context"

	"github.com/edutracker/edutracker/internal/domain/catalog"
	"github.com/edutracker/edutracker/internal/domain/reinforcement"
	"github.com/edutracker/edutracker/internal/domain/school"
)

// CatalogHandler lists reference data: competencies, classes, invites and
// groups.
type CatalogHandler struct {
	competencies catalog.Repository
	classes      school.ClassRepository
	invites      school.InviteRepository
	groups       reinforcement.GroupRepository
}

// NewCatalogHandler creates the handler.
func NewCatalogHandler(
	competencies catalog.Repository,
	classes school.ClassRepository,
	invites school.InviteRepository,
	groups reinforcement.GroupRepository,
) *CatalogHandler {
	return &CatalogHandler{competencies: competencies, classes: classes, invites: invites, groups: groups}
}

// Competencies lists the catalog.
func (h *CatalogHandler) Competencies(ctx context.Context) ([]*catalog.Competency, error) {
	return h.competencies.List(ctx)
}

// Classes lists classes.
func (h *CatalogHandler) Classes(ctx context.Context) ([]*school.ClassRoom, error) {
	return h.classes.List(ctx)
}

// Invites lists invites.
func (h *CatalogHandler) Invites(ctx context.Context) ([]*school.Invite, error) {
	return h.invites.List(ctx)
}

// Groups lists reinforcement groups.
func (h *CatalogHandler) Groups(ctx context.Context) ([]*reinforcement.Group, error) {
	return h.groups.List(ctx)
}

// Group returns one group.
func (h *CatalogHandler) Group(ctx context.Context, id string) (*reinforcement.Group, error) {
	return h.groups.GetByID(ctx, id)
}
