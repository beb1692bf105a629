package checks

import "context"

// Store holds the live record set. Each record sits in exactly one
// partition, derived from its status; Put places a record at the head of
// its partition.
type Store interface {
	Put(c *Check)
	Get(id CheckID) (*Check, bool)
	Delete(id CheckID) bool
	List(p Partition) []*Check
	All() []*Check
	Len() int
}

// Repository port (durable mirror of the store)
type Repository interface {
	Save(ctx context.Context, c *Check) error
	Delete(ctx context.Context, id CheckID) error
	LoadAll(ctx context.Context) ([]*Check, error)
}

// ErrorSlot keeps the last user-visible error message.
type ErrorSlot interface {
	Set(ctx context.Context, msg string) error
	Get(ctx context.Context) (string, error)
	Clear(ctx context.Context) error
}

// CommandSender delivers a device command when the channel is open.
// Send returns false when the command was dropped.
type CommandSender interface {
	Send(ctx context.Context, command string) bool
}
