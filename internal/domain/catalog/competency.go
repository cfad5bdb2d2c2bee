// Package catalog holds the competency (BNCC skill) catalog. Catalog data is
// display metadata: no progress rule depends on it.
package catalog

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/edutracker/edutracker/internal/domain/shared"
)

// Competency is a catalogued BNCC skill.
type Competency struct {
	ID          string    `json:"id"`
	Code        string    `json:"code"`
	Name        string    `json:"name"`
	Subject     string    `json:"subject"`
	Description string    `json:"description"`
	Grade       string    `json:"grade"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// NewCompetencyParams holds catalog input.
type NewCompetencyParams struct {
	ID          string
	Code        string
	Name        string
	Subject     string
	Description string
	Grade       string
}

// NewCompetency validates the BNCC code and, when the grade names a school
// year, that the code covers it.
func NewCompetency(p NewCompetencyParams) (*Competency, error) {
	const op = "NewCompetency"

	if strings.TrimSpace(p.ID) == "" {
		return nil, shared.NewDomainError("catalog", op, shared.ErrInvalidID, "competency id is required")
	}
	if strings.TrimSpace(p.Name) == "" {
		return nil, shared.NewValidationError("catalog", op, "name is required")
	}

	code, err := ParseCode(p.Code)
	if err != nil {
		return nil, err
	}

	if year, ok := GradeYear(p.Grade); ok && code.Stage == StageFundamental && !code.CoversYear(year) {
		return nil, shared.WrapError("catalog", op, shared.ErrValueOutOfRange,
			fmt.Sprintf("code %s covers years %d-%d, not %d", code, code.FromYear, code.ToYear, year),
			shared.ErrInvalidBNCCCode)
	}

	subject := strings.TrimSpace(p.Subject)
	if subject == "" {
		subject = code.ComponentName()
	}

	return &Competency{
		ID:          p.ID,
		Code:        code.String(),
		Name:        strings.TrimSpace(p.Name),
		Subject:     subject,
		Description: strings.TrimSpace(p.Description),
		Grade:       strings.TrimSpace(p.Grade),
		UpdatedAt:   time.Now().UTC(),
	}, nil
}

// Lookup resolves competency metadata for display.
type Lookup interface {
	Competency(ctx context.Context, id string) (*Competency, error)
}

// Repository persists the catalog.
type Repository interface {
	Lookup
	List(ctx context.Context) ([]*Competency, error)
	Save(ctx context.Context, c *Competency) error
	Delete(ctx context.Context, id string) error
}
