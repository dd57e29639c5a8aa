// Package activity tracks long-running model operations and broadcasts
// their progress to connected WebSocket clients.
package activity

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/deskhand/deskhand/internal/websocket"
)

// Type identifies the kind of activity being tracked.
type Type string

const (
	TypeDownload Type = "download"
)

// Status represents the current state of an activity.
type Status string

const (
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

// Activity is a trackable operation with progress.
type Activity struct {
	ID          string         `json:"id"`
	Type        Type           `json:"type"`
	Title       string         `json:"title"`
	Subtitle    string         `json:"subtitle"`
	Progress    int            `json:"progress"` // 0-100, -1 for indeterminate
	Status      Status         `json:"status"`
	StartedAt   time.Time      `json:"startedAt"`
	CompletedAt *time.Time     `json:"completedAt"`
	Metadata    map[string]any `json:"metadata"`
}

// EventType identifies the type of activity event.
type EventType string

const (
	EventTypeStarted   EventType = "activity:started"
	EventTypeUpdate    EventType = "activity:update"
	EventTypeCompleted EventType = "activity:completed"
	EventTypeError     EventType = "activity:error"
	EventTypeCancelled EventType = "activity:cancelled"
)

// Manager tracks and broadcasts progress for all activities.
type Manager struct {
	hub        *websocket.Hub
	activities map[string]*Activity
	mu         sync.RWMutex
	logger     zerolog.Logger
}

// NewManager creates a new activity manager. A nil hub disables
// broadcasting but keeps tracking functional.
func NewManager(hub *websocket.Hub, logger zerolog.Logger) *Manager {
	return &Manager{
		hub:        hub,
		activities: make(map[string]*Activity),
		logger:     logger.With().Str("component", "activity").Logger(),
	}
}

// Start creates and starts tracking a new activity.
func (m *Manager) Start(id string, activityType Type, title string) *Activity {
	m.mu.Lock()
	defer m.mu.Unlock()

	activity := &Activity{
		ID:        id,
		Type:      activityType,
		Title:     title,
		Subtitle:  "Starting...",
		Progress:  0,
		Status:    StatusInProgress,
		StartedAt: time.Now(),
		Metadata:  make(map[string]any),
	}

	m.activities[id] = activity
	m.broadcast(EventTypeStarted, activity)

	m.logger.Debug().
		Str("id", id).
		Str("type", string(activityType)).
		Str("title", title).
		Msg("Activity started")

	return activity
}

// Update updates an existing activity's progress.
func (m *Manager) Update(id string, subtitle string, progress int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	activity, exists := m.activities[id]
	if !exists {
		return
	}

	activity.Subtitle = subtitle
	activity.Progress = progress

	m.broadcast(EventTypeUpdate, activity)
}

// SetMetadata attaches a key/value pair to an activity.
func (m *Manager) SetMetadata(id string, key string, value any) {
	m.mu.Lock()
	defer m.mu.Unlock()

	activity, exists := m.activities[id]
	if !exists {
		return
	}

	activity.Metadata[key] = value
}

// Complete marks an activity as completed.
func (m *Manager) Complete(id string, subtitle string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	activity, exists := m.activities[id]
	if !exists {
		return
	}

	now := time.Now()
	activity.Status = StatusCompleted
	activity.Progress = 100
	activity.Subtitle = subtitle
	activity.CompletedAt = &now

	m.broadcast(EventTypeCompleted, activity)

	// Keep the finished activity visible briefly so late-connecting
	// clients can still render it.
	go func() {
		time.Sleep(5 * time.Second)
		m.mu.Lock()
		delete(m.activities, id)
		m.mu.Unlock()
	}()

	m.logger.Debug().
		Str("id", id).
		Str("title", activity.Title).
		Msg("Activity completed")
}

// Fail marks an activity as failed.
func (m *Manager) Fail(id string, errorMsg string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	activity, exists := m.activities[id]
	if !exists {
		return
	}

	now := time.Now()
	activity.Status = StatusFailed
	activity.Subtitle = errorMsg
	activity.CompletedAt = &now
	activity.Metadata["error"] = errorMsg

	m.broadcast(EventTypeError, activity)

	go func() {
		time.Sleep(10 * time.Second)
		m.mu.Lock()
		delete(m.activities, id)
		m.mu.Unlock()
	}()

	m.logger.Debug().
		Str("id", id).
		Str("title", activity.Title).
		Str("error", errorMsg).
		Msg("Activity failed")
}

// Cancel marks an activity as cancelled and stops tracking it.
func (m *Manager) Cancel(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	activity, exists := m.activities[id]
	if !exists {
		return
	}

	now := time.Now()
	activity.Status = StatusCancelled
	activity.Subtitle = "Cancelled"
	activity.CompletedAt = &now

	m.broadcast(EventTypeCancelled, activity)

	delete(m.activities, id)

	m.logger.Debug().
		Str("id", id).
		Str("title", activity.Title).
		Msg("Activity cancelled")
}

// Get returns an activity by ID, or nil when unknown.
func (m *Manager) Get(id string) *Activity {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.activities[id]
}

// All returns all tracked activities.
func (m *Manager) All() []*Activity {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*Activity, 0, len(m.activities))
	for _, activity := range m.activities {
		result = append(result, activity)
	}
	return result
}

func (m *Manager) broadcast(eventType EventType, activity *Activity) {
	if m.hub == nil {
		return
	}

	m.hub.Broadcast(string(eventType), activity)
}
