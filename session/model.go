package session

// Session is the server-side record behind a refresh token. The
// RefreshHash rotates on every successful refresh; a presented secret
// whose hash does not match means the token was already spent.
type Session struct {
	SessionID string
	AccountID string
	Role      string

	RefreshHash [32]byte

	CreatedAt int64
	ExpiresAt int64
}
