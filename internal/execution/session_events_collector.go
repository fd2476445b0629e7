package execution

import (
	"strings"
	"sync"

	copilot "github.com/github/copilot-sdk/go"
)

const sessionFailedUnknown = "session failed with unknown error"

// sessionEventsCollector gathers the assistant messages and the terminal
// error of one Copilot session. The SDK may deliver events from its own
// goroutines, so access is locked.
type sessionEventsCollector struct {
	mu       sync.Mutex
	messages []string
	errorMsg string
}

// On is passed to [copilot.Session.On].
func (coll *sessionEventsCollector) On(event copilot.SessionEvent) {
	coll.mu.Lock()
	defer coll.mu.Unlock()

	switch event.Type {
	case copilot.AssistantMessage:
		if event.Data.Content != nil && *event.Data.Content != "" {
			coll.messages = append(coll.messages, *event.Data.Content)
		}
	case copilot.SessionError:
		if event.Data.Message == nil || *event.Data.Message == "" {
			coll.errorMsg = sessionFailedUnknown
		} else {
			coll.errorMsg = *event.Data.Message
		}
	}
}

// Output returns the assistant messages joined by newlines.
func (coll *sessionEventsCollector) Output() string {
	coll.mu.Lock()
	defer coll.mu.Unlock()

	return strings.Join(coll.messages, "\n")
}

// ErrorMessage returns the session error, if any.
func (coll *sessionEventsCollector) ErrorMessage() string {
	coll.mu.Lock()
	defer coll.mu.Unlock()

	return coll.errorMsg
}
