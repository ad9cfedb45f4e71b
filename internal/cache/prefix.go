package cache

import "fmt"

type Prefix string

const (
	// SentMessages maps a provider message id to our message id.
	SentMessages Prefix = "sent_messages"
	// IncomingMessages marks inbound provider ids already recorded.
	IncomingMessages Prefix = "incoming_messages"
	// SchedulerState remembers whether a runner was started or stopped by an operator.
	SchedulerState Prefix = "scheduler_state"
)

func (p Prefix) Key(id string) string {
	return fmt.Sprintf("%s:%s", p, id)
}
