package chat

import "errors"

var (
	ErrNoCurrentUser      = errors.New("no current user")
	ErrChatNotFound       = errors.New("chat not found")
	ErrEmptyMessage       = errors.New("message is empty")
	ErrInvalidMessageType = errors.New("invalid message type")
	ErrAttachmentTooLarge = errors.New("attachment too large")
	ErrUnknownUser        = errors.New("unknown user")
	ErrInvalidParticipant = errors.New("invalid participant")
	ErrEmptyChatName      = errors.New("chat name is empty")
)

// IsValidation reports whether err is caused by bad caller input.
func IsValidation(err error) bool {
	return errors.Is(err, ErrEmptyMessage) ||
		errors.Is(err, ErrInvalidMessageType) ||
		errors.Is(err, ErrAttachmentTooLarge) ||
		errors.Is(err, ErrUnknownUser) ||
		errors.Is(err, ErrInvalidParticipant) ||
		errors.Is(err, ErrEmptyChatName)
}
