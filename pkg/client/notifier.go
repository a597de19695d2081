package client

import "support-chat-be/internal/dto"

// Notifier receives inbound messages that were not authored locally. The
// cache decides whether to fire; implementations decide how (sound, badge,
// desktop notification).
type Notifier interface {
	Notify(msg *dto.MessageResponse)
}

// NotifierFunc adapts a plain function to the Notifier interface.
type NotifierFunc func(msg *dto.MessageResponse)

func (f NotifierFunc) Notify(msg *dto.MessageResponse) {
	f(msg)
}
