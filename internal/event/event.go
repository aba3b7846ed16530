// Package event reacts to storage-change notifications and keeps the vector
// index in step with the knowledge bucket.
//
// The business logic lives in Handler, which maps one notification to an
// explicit ack-or-retry disposition; delivery mechanisms (the filesystem
// watcher here, a queue consumer elsewhere) stay thin adapters around it.
// Dispositions assume at-least-once delivery: a retried notification will be
// seen again, and handling is idempotent so duplicates are harmless.
package event

import (
	"context"
	"strings"
)

// Action identifies what happened to a bucket object. The create-type
// actions all mean "new content is visible under this key".
type Action string

const (
	ActionPutObject               Action = "PutObject"
	ActionCompleteMultipartUpload Action = "CompleteMultipartUpload"
	ActionCopyObject              Action = "CopyObject"
	ActionDeleteObject            Action = "DeleteObject"
	ActionLifecycleDeletion       Action = "LifecycleDeletion"
)

// IsCreate reports whether the action makes an object visible.
func (a Action) IsCreate() bool {
	switch a {
	case ActionPutObject, ActionCompleteMultipartUpload, ActionCopyObject:
		return true
	}
	return false
}

// IsDelete reports whether the action removes an object.
func (a Action) IsDelete() bool {
	return a == ActionDeleteObject || a == ActionLifecycleDeletion
}

// Object describes the bucket object a notification refers to.
type Object struct {
	Key  string `json:"key"`
	Size int64  `json:"size,omitempty"`
	ETag string `json:"eTag,omitempty"`
}

// Notification is one storage-change message.
type Notification struct {
	Action Action `json:"action"`
	Object Object `json:"object"`
}

func (n Notification) String() string {
	var b strings.Builder
	b.WriteString(string(n.Action))
	b.WriteString(" ")
	b.WriteString(n.Object.Key)
	return b.String()
}

// Disposition is the per-message outcome returned to the delivery system.
type Disposition int

const (
	// Ack marks the notification fully handled; it must not be
	// redelivered.
	Ack Disposition = iota

	// Retry asks the delivery system to redeliver the notification
	// later.
	Retry
)

func (d Disposition) String() string {
	if d == Retry {
		return "retry"
	}
	return "ack"
}

// Handler is implemented by anything that can process one notification.
type Handler interface {
	Handle(ctx context.Context, n Notification) Disposition
}
