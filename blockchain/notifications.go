package blockchain

import "sync"

// NotificationType represents the type of a notification message.
type NotificationType int

// Constants for the type of a notification message.
const (
	// NTBlockAccepted indicates the associated block was accepted into
	// the chain manager.  Note that this does not necessarily mean it
	// was added to the active chain; for that, use NTBlockConnected.
	NTBlockAccepted NotificationType = iota

	// NTBlockConnected indicates the associated block was connected to
	// the active chain.
	NTBlockConnected

	// NTBlockDisconnected indicates the associated block was
	// disconnected from the active chain during a reorganisation.
	NTBlockDisconnected
)

func (n NotificationType) String() string {
	switch n {
	case NTBlockAccepted:
		return "NTBlockAccepted"
	case NTBlockConnected:
		return "NTBlockConnected"
	case NTBlockDisconnected:
		return "NTBlockDisconnected"
	default:
		return "unknown notification"
	}
}

// Notification is sent to every registered callback and consists of a
// notification type plus data whose concrete type depends on Type:
//   - NTBlockAccepted:     *wire.MsgBlock
//   - NTBlockConnected:    *wire.MsgBlock
//   - NTBlockDisconnected: *wire.MsgBlock
type Notification struct {
	Type NotificationType
	Data interface{}
}

// NotificationCallback is a function callers register to be notified of
// chain manager events.
type NotificationCallback func(*Notification)

type notificationBus struct {
	mu        sync.RWMutex
	callbacks []NotificationCallback
}

// Subscribe registers a callback to receive future notifications.
func (b *notificationBus) Subscribe(cb NotificationCallback) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.callbacks = append(b.callbacks, cb)
}

func (b *notificationBus) send(typ NotificationType, data interface{}) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	n := &Notification{Type: typ, Data: data}
	for _, cb := range b.callbacks {
		cb(n)
	}
}
