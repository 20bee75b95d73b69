package core

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/policyingest/internal/decode"
)

// Kind names an entity collection in the store.
type Kind string

const (
	KindAgent   Kind = "agent"
	KindUser    Kind = "user"
	KindAccount Kind = "account"
	KindLOB     Kind = "lob"
	KindCarrier Kind = "carrier"
	KindPolicy  Kind = "policy"
)

// Kinds lists every entity kind in dependency order.
var Kinds = []Kind{KindAgent, KindUser, KindAccount, KindLOB, KindCarrier, KindPolicy}

// ID is a store-assigned entity identifier.
type ID = uuid.UUID

// Attrs holds column values for an entity. Values are string, time.Time or ID.
type Attrs map[string]any

// Filter selects entities by exact column equality.
type Filter = Attrs

// UpdateOptions controls FindOneAndUpdate.
type UpdateOptions struct {
	Upsert bool // insert when no entity matches the filter
}

// Store is the persistence contract used by the import pipeline.
// Implementations must enforce the unique key of every registered kind.
type Store interface {
	// FindOne returns the ID of the entity matching filter, or ErrNotFound.
	FindOne(ctx context.Context, kind Kind, filter Filter) (ID, error)
	// Create inserts a new entity. A unique key violation returns ErrConflict.
	Create(ctx context.Context, kind Kind, attrs Attrs) (ID, error)
	// FindOneAndUpdate sets update on the entity matching filter. With
	// opts.Upsert a missing entity is inserted from filter and update.
	FindOneAndUpdate(ctx context.Context, kind Kind, filter Filter, update Attrs, opts UpdateOptions) (ID, error)
	// CountDocuments returns the number of stored entities of kind.
	CountDocuments(ctx context.Context, kind Kind) (int64, error)
	// Close releases the underlying connection.
	Close(ctx context.Context) error
}

// StoreOpener opens a dedicated store connection for target.
type StoreOpener func(ctx context.Context, target string) (Store, error)

// Sentinel errors shared by stores and services.
var (
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("unique key conflict")
	ErrUnsupportedFormat = decode.ErrUnsupportedFormat
	ErrJobNotFound       = errors.New("job not found")
	ErrInvalidInput      = errors.New("invalid input")
)

// MessageType identifies a worker message.
type MessageType string

const (
	MessageProgress MessageType = "progress"
	MessageComplete MessageType = "complete"
	MessageError    MessageType = "error"
)

// RowError records a failed row. Row is the 1-based data row index.
type RowError struct {
	Row   int    `json:"row"`
	Error string `json:"error"`
}

// Message is one entry of the worker reporting protocol. Exactly one
// complete or error message ends every stream.
type Message struct {
	Type      MessageType `json:"type"`
	Message   string      `json:"message,omitempty"`
	Processed int         `json:"processed"`
	Total     int         `json:"total"`
	Errors    []RowError  `json:"errors,omitempty"`
	Error     string      `json:"error,omitempty"`
}

// MarshalJSON writes only the fields that belong to m's type.
func (m Message) MarshalJSON() ([]byte, error) {
	switch m.Type {
	case MessageProgress:
		return json.Marshal(struct {
			Type    MessageType `json:"type"`
			Message string      `json:"message"`
		}{m.Type, m.Message})
	case MessageComplete:
		return json.Marshal(struct {
			Type      MessageType `json:"type"`
			Processed int         `json:"processed"`
			Total     int         `json:"total"`
			Errors    []RowError  `json:"errors,omitempty"`
		}{m.Type, m.Processed, m.Total, m.Errors})
	default:
		return json.Marshal(struct {
			Type  MessageType `json:"type"`
			Error string      `json:"error"`
		}{m.Type, m.Error})
	}
}

// Terminal reports whether m ends the stream.
func (m Message) Terminal() bool {
	return m.Type == MessageComplete || m.Type == MessageError
}

func progressMessage(text string) Message {
	return Message{Type: MessageProgress, Message: text}
}

func errorMessage(err error) Message {
	return Message{Type: MessageError, Error: err.Error()}
}

// Response is what a caller hands back once a job has finished.
type Response struct {
	Success   bool
	Message   string
	Processed int
	Total     int
	Errors    []RowError
	Progress  []string
	Error     string
}

type successBody struct {
	Success   bool       `json:"success"`
	Message   string     `json:"message"`
	Processed int        `json:"processed"`
	Total     int        `json:"total"`
	Errors    []RowError `json:"errors,omitempty"`
	Progress  []string   `json:"progress,omitempty"`
}

type failureBody struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// MarshalJSON renders the success and failure shapes separately so that a
// failed job never reports counters.
func (r Response) MarshalJSON() ([]byte, error) {
	if !r.Success {
		return json.Marshal(failureBody{Error: r.Error})
	}
	return json.Marshal(successBody{
		Success:   true,
		Message:   r.Message,
		Processed: r.Processed,
		Total:     r.Total,
		Errors:    r.Errors,
		Progress:  r.Progress,
	})
}

// UnmarshalJSON accepts either shape.
func (r *Response) UnmarshalJSON(data []byte) error {
	var raw struct {
		Success   bool       `json:"success"`
		Message   string     `json:"message"`
		Processed int        `json:"processed"`
		Total     int        `json:"total"`
		Errors    []RowError `json:"errors"`
		Progress  []string   `json:"progress"`
		Error     string     `json:"error"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*r = Response(raw)
	return nil
}

// UserSummary is the contact view of a user returned by queries.
type UserSummary struct {
	ID          ID     `json:"id"`
	FirstName   string `json:"firstName"`
	Email       string `json:"email"`
	PhoneNumber string `json:"phoneNumber"`
}

// PolicyView is a policy joined with its category, carrier and owner.
type PolicyView struct {
	ID           ID          `json:"id"`
	PolicyNumber string      `json:"policyNumber"`
	StartDate    time.Time   `json:"policyStartDate"`
	EndDate      time.Time   `json:"policyEndDate"`
	Category     string      `json:"category"`
	Company      string      `json:"company"`
	User         UserSummary `json:"user"`
}

// Querier is the read side used by the query service.
type Querier interface {
	CountDocuments(ctx context.Context, kind Kind) (int64, error)
	// SearchUsers returns users whose first name contains fragment, ignoring case.
	SearchUsers(ctx context.Context, fragment string) ([]UserSummary, error)
	// Policies returns policies owned by userIDs, or all policies when userIDs
	// is nil, ordered by owner then policy number.
	Policies(ctx context.Context, userIDs []ID) ([]PolicyView, error)
	// SampleUser and SamplePolicy return any one entity, or ErrNotFound.
	SampleUser(ctx context.Context) (UserSummary, error)
	SamplePolicy(ctx context.Context) (PolicyView, error)
}
