package notifier

// TextNotifier is the operator alert channel. Implementations must be safe for concurrent use.
type TextNotifier interface {
	SendText(text string) error
}

// Noop drops every message. Used when no channel is configured.
type Noop struct{}

func (Noop) SendText(string) error { return nil }
