package backend

import "context"

// Onboarding is the part of the node surface used before the app is ready.
type Onboarding interface {
	FirstRun(ctx context.Context) (bool, error)
	SetupPassword(ctx context.Context, password string) error
	LoadConfig(ctx context.Context) (Config, error)
	SaveConfig(ctx context.Context, cfg Config) error
}

// Chat is the part of the node surface used by an authenticated session.
type Chat interface {
	SelfPeerID(ctx context.Context) (string, error)
	FindPeer(ctx context.Context, peerID string) ([]string, error)
	History(ctx context.Context, peerID string) ([]ChatMessage, error)
	SendMessage(ctx context.Context, peerID string, msg ChatMessage) error
	// Subscribe registers fn for the named push event. The returned func
	// removes the registration and is safe to call more than once.
	Subscribe(ctx context.Context, event string, fn func(Event)) (func(), error)
}

// Gateway is the complete command and event surface of a node.
type Gateway interface {
	Onboarding
	Chat
}
