package shared

import (
	"time"
)

// EventType represents the type of domain event.
type EventType string

// Domain event types, named "domain.action".
const (
	// Progress events
	EventEvaluationRecorded EventType = "evaluation.recorded"
	EventStandingChanged    EventType = "student.standing_changed"
	EventStudentDischarged  EventType = "student.discharged"

	// Reinforcement events
	EventGroupCreated         EventType = "group.created"
	EventGroupUpdated         EventType = "group.updated"
	EventGroupDeleted         EventType = "group.deleted"
	EventAttendanceRecorded   EventType = "attendance.recorded"
	EventRosterRemovalPending EventType = "reinforcement.roster_removal_pending"

	// Sync events
	EventResyncCompleted EventType = "sync.resync_completed"
	EventSyncTaskFailed  EventType = "sync.task_failed"
)

// Event is the base interface for all domain events.
type Event interface {
	// EventType returns the type of the event.
	EventType() EventType

	// OccurredAt returns when the event occurred.
	OccurredAt() time.Time

	// AggregateID returns the ID of the aggregate that produced this event.
	AggregateID() string

	// Payload returns the event data as a map for serialization.
	Payload() map[string]interface{}
}

// BaseEvent provides common event functionality.
type BaseEvent struct {
	Type        EventType `json:"type"`
	Timestamp   time.Time `json:"timestamp"`
	AggregateId string    `json:"aggregate_id"`
}

// EventType implements Event interface.
func (e BaseEvent) EventType() EventType {
	return e.Type
}

// OccurredAt implements Event interface.
func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// AggregateID implements Event interface.
func (e BaseEvent) AggregateID() string {
	return e.AggregateId
}

// NewBaseEvent creates a new base event.
func NewBaseEvent(eventType EventType, aggregateID string) BaseEvent {
	return BaseEvent{
		Type:        eventType,
		Timestamp:   time.Now().UTC(),
		AggregateId: aggregateID,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Progress Events
// ═══════════════════════════════════════════════════════════════════════════

// EvaluationRecordedEvent is emitted after an evaluation is stored.
type EvaluationRecordedEvent struct {
	BaseEvent
	StudentID    string `json:"student_id"`
	CompetencyID string `json:"competency_id"`
	Bimester     string `json:"bimester"`
	Level        string `json:"level"`
	Overwritten  bool   `json:"overwritten"`
}

// Payload implements Event interface.
func (e EvaluationRecordedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"student_id":    e.StudentID,
		"competency_id": e.CompetencyID,
		"bimester":      e.Bimester,
		"level":         e.Level,
		"overwritten":   e.Overwritten,
	}
}

// NewEvaluationRecordedEvent creates a new EvaluationRecordedEvent.
func NewEvaluationRecordedEvent(studentID, competencyID, bimester, level string, overwritten bool) EvaluationRecordedEvent {
	return EvaluationRecordedEvent{
		BaseEvent:    NewBaseEvent(EventEvaluationRecorded, studentID),
		StudentID:    studentID,
		CompetencyID: competencyID,
		Bimester:     bimester,
		Level:        level,
		Overwritten:  overwritten,
	}
}

// StandingChangedEvent is emitted when a student's aggregate standing moves.
type StandingChangedEvent struct {
	BaseEvent
	StudentID string `json:"student_id"`
	From      string `json:"from"`
	To        string `json:"to"`
}

// Payload implements Event interface.
func (e StandingChangedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"student_id": e.StudentID,
		"from":       e.From,
		"to":         e.To,
	}
}

// NewStandingChangedEvent creates a new StandingChangedEvent.
func NewStandingChangedEvent(studentID, from, to string) StandingChangedEvent {
	return StandingChangedEvent{
		BaseEvent: NewBaseEvent(EventStandingChanged, studentID),
		StudentID: studentID,
		From:      from,
		To:        to,
	}
}

// StudentDischargedEvent is emitted once the discharge history entry is written.
type StudentDischargedEvent struct {
	BaseEvent
	StudentID string `json:"student_id"`
	GroupID   string `json:"group_id"`
	GroupName string `json:"group_name"`
	Level     string `json:"level"`
}

// Payload implements Event interface.
func (e StudentDischargedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"student_id": e.StudentID,
		"group_id":   e.GroupID,
		"group_name": e.GroupName,
		"level":      e.Level,
	}
}

// NewStudentDischargedEvent creates a new StudentDischargedEvent.
func NewStudentDischargedEvent(studentID, groupID, groupName, level string) StudentDischargedEvent {
	return StudentDischargedEvent{
		BaseEvent: NewBaseEvent(EventStudentDischarged, studentID),
		StudentID: studentID,
		GroupID:   groupID,
		GroupName: groupName,
		Level:     level,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Reinforcement Events
// ═══════════════════════════════════════════════════════════════════════════

// GroupChangedEvent covers group creation, edits and deletion.
type GroupChangedEvent struct {
	BaseEvent
	GroupID     string `json:"group_id"`
	Name        string `json:"name"`
	MemberCount int    `json:"member_count"`
}

// Payload implements Event interface.
func (e GroupChangedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"group_id":     e.GroupID,
		"name":         e.Name,
		"member_count": e.MemberCount,
	}
}

// NewGroupChangedEvent creates a group event of the given type.
func NewGroupChangedEvent(eventType EventType, groupID, name string, memberCount int) GroupChangedEvent {
	return GroupChangedEvent{
		BaseEvent:   NewBaseEvent(eventType, groupID),
		GroupID:     groupID,
		Name:        name,
		MemberCount: memberCount,
	}
}

// AttendanceRecordedEvent is emitted when a session's attendance is saved.
type AttendanceRecordedEvent struct {
	BaseEvent
	GroupID    string   `json:"group_id"`
	Date       string   `json:"date"`
	PresentIDs []string `json:"present_ids"`
	Replaced   bool     `json:"replaced"`
}

// Payload implements Event interface.
func (e AttendanceRecordedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"group_id":    e.GroupID,
		"date":        e.Date,
		"present_ids": e.PresentIDs,
		"replaced":    e.Replaced,
	}
}

// NewAttendanceRecordedEvent creates a new AttendanceRecordedEvent.
func NewAttendanceRecordedEvent(groupID, date string, presentIDs []string, replaced bool) AttendanceRecordedEvent {
	return AttendanceRecordedEvent{
		BaseEvent:  NewBaseEvent(EventAttendanceRecorded, groupID),
		GroupID:    groupID,
		Date:       date,
		PresentIDs: presentIDs,
		Replaced:   replaced,
	}
}

// RosterRemovalPendingEvent is emitted when a discharge wrote history but
// could not remove the student from the roster.
type RosterRemovalPendingEvent struct {
	BaseEvent
	GroupID   string `json:"group_id"`
	StudentID string `json:"student_id"`
	Reason    string `json:"reason"`
}

// Payload implements Event interface.
func (e RosterRemovalPendingEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"group_id":   e.GroupID,
		"student_id": e.StudentID,
		"reason":     e.Reason,
	}
}

// NewRosterRemovalPendingEvent creates a new RosterRemovalPendingEvent.
func NewRosterRemovalPendingEvent(groupID, studentID, reason string) RosterRemovalPendingEvent {
	return RosterRemovalPendingEvent{
		BaseEvent: NewBaseEvent(EventRosterRemovalPending, groupID),
		GroupID:   groupID,
		StudentID: studentID,
		Reason:    reason,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Sync Events
// ═══════════════════════════════════════════════════════════════════════════

// ResyncCompletedEvent is emitted after a pull from the remote store.
type ResyncCompletedEvent struct {
	BaseEvent
	Mode     string         `json:"mode"`
	Pulled   map[string]int `json:"pulled"`
	Duration time.Duration  `json:"duration"`
}

// Payload implements Event interface.
func (e ResyncCompletedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"mode":     e.Mode,
		"pulled":   e.Pulled,
		"duration": e.Duration.String(),
	}
}

// NewResyncCompletedEvent creates a new ResyncCompletedEvent.
func NewResyncCompletedEvent(mode string, pulled map[string]int, d time.Duration) ResyncCompletedEvent {
	return ResyncCompletedEvent{
		BaseEvent: NewBaseEvent(EventResyncCompleted, "sync"),
		Mode:      mode,
		Pulled:    pulled,
		Duration:  d,
	}
}

// SyncTaskFailedEvent is emitted when an outbox task exhausts its attempts.
type SyncTaskFailedEvent struct {
	BaseEvent
	TaskID     string `json:"task_id"`
	Collection string `json:"collection"`
	RecordID   string `json:"record_id"`
	Attempts   int    `json:"attempts"`
	LastError  string `json:"last_error"`
}

// Payload implements Event interface.
func (e SyncTaskFailedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"task_id":    e.TaskID,
		"collection": e.Collection,
		"record_id":  e.RecordID,
		"attempts":   e.Attempts,
		"last_error": e.LastError,
	}
}

// NewSyncTaskFailedEvent creates a new SyncTaskFailedEvent.
func NewSyncTaskFailedEvent(taskID, collection, recordID string, attempts int, lastErr string) SyncTaskFailedEvent {
	return SyncTaskFailedEvent{
		BaseEvent:  NewBaseEvent(EventSyncTaskFailed, taskID),
		TaskID:     taskID,
		Collection: collection,
		RecordID:   recordID,
		Attempts:   attempts,
		LastError:  lastErr,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Bus contracts
// ═══════════════════════════════════════════════════════════════════════════

// EventHandler is a function that handles an event.
type EventHandler func(event Event) error

// EventPublisher defines the interface for publishing events.
type EventPublisher interface {
	// Publish sends an event to subscribers.
	Publish(event Event) error
}

// EventSubscriber defines the interface for subscribing to events.
type EventSubscriber interface {
	// Subscribe registers a handler for an event type.
	Subscribe(eventType EventType, handler EventHandler) error

	// SubscribeAll registers a handler for all events.
	SubscribeAll(handler EventHandler) error
}

// EventBus combines publishing and subscribing.
type EventBus interface {
	EventPublisher
	EventSubscriber
}

// NopPublisher discards events.
type NopPublisher struct{}

// Publish implements EventPublisher.
func (NopPublisher) Publish(Event) error { return nil }
