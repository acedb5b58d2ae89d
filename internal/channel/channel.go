package channel

// Channel is a message delivery channel. Telegram is the only implementation
// today; the interface keeps main decoupled from the transport so other
// chat backends can slot in.
type Channel interface {
	Name() string
	Start() error
	Stop() error
}
