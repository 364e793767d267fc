// Package notify delivers push notifications to clan rosters. State changes
// never wait on delivery: callers enqueue and move on, and failures are only
// logged.
package notify

import "context"

// Message is what a caller wants a roster to see.
type Message struct {
	Title    string            `json:"title"`
	Body     string            `json:"body"`
	Data     map[string]string `json:"data,omitempty"`
	GroupKey string            `json:"groupKey,omitempty"`
}

// Notification is a Message addressed to concrete push tokens.
type Notification struct {
	Tokens []string
	Message
}

// Sender is the push transport.
type Sender interface {
	Send(ctx context.Context, n Notification) error
}

// TokenDirectory resolves user ids to push tokens. Users without a token are
// skipped.
type TokenDirectory interface {
	PushTokens(ctx context.Context, userIDs []string) ([]string, error)
}

// MapDirectory is a fixed user id → token table.
type MapDirectory map[string]string

func (d MapDirectory) PushTokens(_ context.Context, userIDs []string) ([]string, error) {
	out := make([]string, 0, len(userIDs))
	for _, id := range userIDs {
		if tok, ok := d[id]; ok && tok != "" {
			out = append(out, tok)
		}
	}
	return out, nil
}
