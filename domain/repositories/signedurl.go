package repositories

import "context"

// SignedURLProvider hands out a short-lived, pre-authenticated websocket
// endpoint for the conversational agent. The URL is single use; callers must
// not cache it.
type SignedURLProvider interface {
	SignedURL(ctx context.Context) (string, error)
}
