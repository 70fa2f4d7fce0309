package chat

// Selector keys looked up in the chat surface configuration.
const (
	selChatList    = "chat_list"
	selChatTitle   = "chat_title"
	selMessageIn   = "message_in"
	selMessageOut  = "message_out"
	selMessageText = "message_text"
	selImageBlob   = "image_blob"
	selImageInline = "image_inline"
	selInput       = "input"
	selLoggedIn    = "logged_in"
)

// defaultSelectors target WhatsApp Web's current DOM. Surfaces change
// their markup without notice, so every key can be overridden from the
// chat.selectors map in the configuration file.
var defaultSelectors = map[string]string{
	selChatList:    "div[role='listitem']",
	selChatTitle:   "span[title]",
	selMessageIn:   "div.message-in",
	selMessageOut:  "div.message-out",
	selMessageText: "span.selectable-text",
	selImageBlob:   "img[src^='blob:']",
	selImageInline: "img[src^='data:image']",
	selInput:       "div[aria-label='Type a message']",
	selLoggedIn:    "div[role='listitem']",
}

func mergeSelectors(overrides map[string]string) map[string]string {
	merged := make(map[string]string, len(defaultSelectors))
	for key, value := range defaultSelectors {
		merged[key] = value
	}
	for key, value := range overrides {
		if value != "" {
			merged[key] = value
		}
	}
	return merged
}
