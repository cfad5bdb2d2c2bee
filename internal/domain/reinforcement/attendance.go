package reinforcement

import (
	"fmt"
	"time"

	"github.com/edutracker/edutracker/internal/domain/shared"
)

// AtRiskThreshold is the attendance rate under which a member is flagged as
// at risk of dropping out.
const AtRiskThreshold = 50

// AttendanceRecord lists who was present at one session of a group.
type AttendanceRecord struct {
	ID         string      `json:"id"`
	GroupID    string      `json:"group_id"`
	Date       shared.Date `json:"date"`
	PresentIDs []string    `json:"present_ids"`
	RecordedAt time.Time   `json:"recorded_at"`
}

// AttendanceID is unique per group and calendar date.
func AttendanceID(groupID string, date shared.Date) string {
	return fmt.Sprintf("att-%s-%s", groupID, date.String())
}

// NewAttendanceRecord builds the record for one session. Every present ID
// must be a current member of g; a former member cannot be marked present.
func NewAttendanceRecord(g *Group, date shared.Date, presentIDs []string) (*AttendanceRecord, error) {
	if g == nil {
		return nil, shared.ErrGroupNotFound
	}
	if date.IsZero() {
		return nil, shared.NewValidationError("attendance", "Record", "date is required")
	}

	present := uniqueIDs(presentIDs)
	for _, id := range present {
		if !g.HasMember(id) {
			return nil, shared.WrapError("attendance", "Record", shared.ErrValidation,
				fmt.Sprintf("student %s is not a member of group %s", id, g.ID), shared.ErrStaleAttendees)
		}
	}

	return &AttendanceRecord{
		ID:         AttendanceID(g.ID, date),
		GroupID:    g.ID,
		Date:       date,
		PresentIDs: present,
		RecordedAt: time.Now().UTC(),
	}, nil
}

// WasPresent reports whether studentID is in the record.
func (r *AttendanceRecord) WasPresent(studentID string) bool {
	for _, id := range r.PresentIDs {
		if id == studentID {
			return true
		}
	}
	return false
}

// AttendanceRate is round(100 × sessions attended / sessions held). With no
// sessions held the rate is 100.
func AttendanceRate(records []*AttendanceRecord, studentID string) shared.Percentage {
	present := 0
	for _, r := range records {
		if r.WasPresent(studentID) {
			present++
		}
	}
	return shared.NewPercentage(present, len(records), 100)
}

// IsAtRisk reports whether a rate is below AtRiskThreshold.
func IsAtRisk(rate shared.Percentage) bool {
	return rate.Below(AtRiskThreshold)
}
