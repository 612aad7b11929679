package intake

import (
	"errors"
	"fmt"

	"github.com/fyrsmithlabs/counseld/internal/conversation"
	"github.com/fyrsmithlabs/counseld/internal/crisis"
)

// ErrInvalidRequest indicates the request was rejected before any
// processing.
var ErrInvalidRequest = errors.New("invalid intake request")

// Request is one inbound client message.
//
// ConversationID may be empty, in which case a new conversation is
// created and ClientID plus ServiceType are required. For an existing
// conversation only Content is required.
type Request struct {
	ConversationID string                        `json:"conversation_id,omitempty"`
	ClientID       string                        `json:"client_id,omitempty"`
	ServiceType    string                        `json:"service_type,omitempty"`
	CounselorID    string                        `json:"counselor_id,omitempty"`
	Content        string                        `json:"content"`
	Metadata       *conversation.MessageMetadata `json:"metadata,omitempty"`
}

// Result is the outcome of processing one message. Assessment and
// Response are populated from classification even when persistence
// fails, so a caller can still act on a detected crisis.
type Result struct {
	ConversationID string                `json:"conversation_id"`
	Created        bool                  `json:"created"`
	Message        *conversation.Message `json:"message,omitempty"`
	Assessment     crisis.Assessment     `json:"assessment"`
	Response       *crisis.Response      `json:"response,omitempty"`
	Escalated      bool                  `json:"escalated"`
}

func validateRequest(req Request) error {
	if req.Content == "" {
		return fmt.Errorf("%w: content is required", ErrInvalidRequest)
	}
	if req.ConversationID == "" {
		if req.ClientID == "" || req.ServiceType == "" {
			return fmt.Errorf("%w: client_id and service_type are required to start a conversation", ErrInvalidRequest)
		}
	}
	return nil
}
