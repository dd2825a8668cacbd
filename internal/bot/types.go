package bot

// Event is one inbound, already-verified Slack event.
type Event struct {
	TeamID    string
	ChannelID string
	UserID    string
	Text      string
	MessageTS string
	ThreadTS  string
	EventID   string
	EventType string
}

// Inbound event types.
const (
	EventTypeMention     = "app_mention"
	EventTypeThreadReply = "thread_reply"
)

const helpMessage = "How can I help? Try:\n" +
	"• `@fixbot summarize` - See task summary\n" +
	"• `@fixbot mark FIX-123 as done` - Update status\n" +
	"• `@fixbot assign FIX-123 to @teammate` - Assign a task\n" +
	"• Or describe a bug/task to create one"

const apologyMessage = "Sorry, I encountered an error processing your request. Please try again."
