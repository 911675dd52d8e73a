package models

import (
	"fmt"
	"time"
)

// SubjectType is the kind of Strava object a webhook event refers to
type SubjectType string

const (
	SubjectActivity SubjectType = "activity"
	SubjectAthlete  SubjectType = "athlete"
)

// ParseSubjectType converts a wire value into a SubjectType
func ParseSubjectType(s string) (SubjectType, error) {
	switch SubjectType(s) {
	case SubjectActivity, SubjectAthlete:
		return SubjectType(s), nil
	}
	return "", fmt.Errorf("unknown object_type %q", s)
}

// Action is the aspect_type of a webhook event
type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// ParseAction converts a wire value into an Action
func ParseAction(s string) (Action, error) {
	switch Action(s) {
	case ActionCreate, ActionUpdate, ActionDelete:
		return Action(s), nil
	}
	return "", fmt.Errorf("unknown aspect_type %q", s)
}

// WebhookEvent is a queued Strava push notification.
// Rows are append-only: the processor flips processed or bumps retry_count, nothing deletes them.
type WebhookEvent struct {
	ID             string
	ObjectType     SubjectType
	ObjectID       int64
	AspectType     Action
	OwnerID        int64
	SubscriptionID int64
	EventTime      time.Time
	Updates        StringMap
	Processed      bool
	ProcessedAt    *time.Time
	RetryCount     int
	ErrorMessage   *string
	CreatedAt      time.Time
}

// IsDeauthorization reports whether this is an athlete event revoking app access
func (e WebhookEvent) IsDeauthorization() bool {
	return e.ObjectType == SubjectAthlete && e.Updates["authorized"] == "false"
}
