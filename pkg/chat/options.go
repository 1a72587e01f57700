package chat

import (
	"context"
	"time"

	"mawneychat/pkg/config"
	"mawneychat/pkg/models"
)

// DefaultInvalidIDTokens mark chat ids written by broken clients.
var DefaultInvalidIDTokens = []string{"undefined", "null", "NaN"}

type Options struct {
	InvalidIDTokens   []string
	MaxAttachmentSize int64
	PreviewLength     int
	Now               func() time.Time
}

func OptionsFromConfig(cc config.ChatConfig) Options {
	return Options{
		InvalidIDTokens:   cc.InvalidIDTokens,
		MaxAttachmentSize: cc.MaxAttachmentSize.Int64(),
		PreviewLength:     cc.PreviewLength,
	}
}

func (o *Options) applyDefaults() {
	if len(o.InvalidIDTokens) == 0 {
		o.InvalidIDTokens = DefaultInvalidIDTokens
	}
	if o.MaxAttachmentSize <= 0 {
		o.MaxAttachmentSize = 10 << 20
	}
	if o.PreviewLength <= 0 {
		o.PreviewLength = 50
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

// Notifier receives message and read hooks. The notification service
// implements it.
type Notifier interface {
	NotifyMessage(ctx context.Context, chat models.Chat, msg models.Message)
	CancelChat(ctx context.Context, chatID string)
}

type nopNotifier struct{}

func (nopNotifier) NotifyMessage(context.Context, models.Chat, models.Message) {}
func (nopNotifier) CancelChat(context.Context, string)                         {}
