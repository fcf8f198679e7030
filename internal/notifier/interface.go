package notifier

import (
	"context"
	"time"
)

// Event describes a finished conversion.
type Event struct {
	Type         string    `json:"type"`
	Name         string    `json:"name"`
	Status       string    `json:"status"`
	Descriptor   string    `json:"descriptor,omitempty"`
	Tiles        int       `json:"tiles"`
	RelatedFiles int       `json:"related_files"`
	BundleName   string    `json:"bundle_name,omitempty"`
	PublishedKey string    `json:"published_key,omitempty"`
	Error        string    `json:"error,omitempty"`
	FinishedAt   time.Time `json:"finished_at"`
}

// Notifier delivers conversion events
type Notifier interface {
	// Name returns the unique identifier for this notifier
	Name() string

	// Send delivers a single event
	Send(ctx context.Context, event Event) error
}
