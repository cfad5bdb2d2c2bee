package reinforcement

import (
	"time"

	"github.com/edutracker/edutracker/internal/domain/shared"
)

// HistoryEntry is an append-only discharge ledger line. Student and group
// names are snapshots taken at discharge time.
type HistoryEntry struct {
	ID          string      `json:"id"`
	StudentID   string      `json:"student_id"`
	StudentName string      `json:"student_name"`
	GroupID     string      `json:"group_id"`
	GroupName   string      `json:"group_name"`
	Subject     string      `json:"subject"`
	FinalLevel  string      `json:"final_level"`
	StartDate   shared.Date `json:"start_date"`
	CompletedAt time.Time   `json:"completed_at"`
}

// NewHistoryEntry snapshots a discharge of studentID from g.
func NewHistoryEntry(id, studentID, studentName string, g *Group, finalLevel string, completedAt time.Time) HistoryEntry {
	return HistoryEntry{
		ID:          id,
		StudentID:   studentID,
		StudentName: studentName,
		GroupID:     g.ID,
		GroupName:   g.Name,
		Subject:     g.Subject,
		FinalLevel:  finalLevel,
		StartDate:   g.StartDate,
		CompletedAt: completedAt.UTC(),
	}
}
