package queueaccess

import (
	"context"
	"fmt"
	"time"
)

const pingTimeout = 2 * time.Second

// Session represents a queue access handle and its cleanup function.
type Session struct {
	Access Access
	// Live is true when the session talks to a running daemon.
	Live  bool
	close func() error
}

// Close releases resources associated with the session.
func (s Session) Close() error {
	if s.close == nil {
		return nil
	}
	return s.close()
}

// Store is the direct-store fallback opened when the daemon does not answer.
type Store struct {
	Access Access
	Close  func() error
}

// OpenWithFallback tries the daemon API first, then falls back to read-only
// direct store access.
func OpenWithFallback(ctx context.Context, baseURL string, openStore func() (Store, error)) (Session, error) {
	if baseURL != "" {
		client := NewHTTPAccess(baseURL, nil).(*httpAccess)
		pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
		err := client.Ping(pingCtx)
		cancel()
		if err == nil {
			return Session{Access: client, Live: true}, nil
		}
	}

	if openStore == nil {
		return Session{}, fmt.Errorf("open queue store: no store opener configured")
	}
	store, err := openStore()
	if err != nil {
		return Session{}, fmt.Errorf("open queue store: %w", err)
	}
	return Session{Access: store.Access, close: store.Close}, nil
}
