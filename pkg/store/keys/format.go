package keys

const (
	// local store namespaces; <...> = variable segment
	UserChatsKey       = "mawney_chats_%s"           // mawney_chats_<user_id>
	UserMessagesKey    = "mawney_messages_%s"        // mawney_messages_<user_id>
	SharedMessagesKey  = "shared_messages_%s"        // shared_messages_<chat_id>
	SharedGroupChats   = "mawney_shared_group_chats" // cross-user group chat table
	UserAvatarKey      = "%s_avatar"                 // <user_id>_avatar
	NotifiedArticles   = "notified_articles"         // owned by the news feed
	AssistantSessions  = "ai_sessions_%s"            // ai_sessions_<user_id>
	OutboxKey          = "outbox:%s"                 // outbox:<seq>
	OutboxPrefix       = "outbox:"
	SystemVersionKey   = "system:version"
	SharedMessagesPref = "shared_messages_"
	UserChatsPrefix    = "mawney_chats_"
	UserMessagesPrefix = "mawney_messages_"

	// chat and message id formats
	DirectChatID    = "direct_%s_%s"    // direct_<min>_<max>
	GroupChatID     = "group_%d_%s"     // group_<unix_ms>_<rand>
	AssistantChatID = "ai_assistant_%s" // ai_assistant_<user_id>
	MessageID       = "msg_%d_%s"       // msg_<unix_ms>_<rand>

	// padding width for lexicographically ordered sequences
	SeqPadWidth = 20
)
