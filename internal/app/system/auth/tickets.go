package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Websocket connections can't always carry the session cookie (the
// client may run on a different origin), so the stream endpoint is
// attached with a short-lived signed ticket minted over the
// authenticated REST API instead.

// DefaultTicketTTL is how long a stream ticket stays valid.
const DefaultTicketTTL = 60 * time.Second

// ErrBadTicket is returned for expired, malformed, or tampered tickets.
var ErrBadTicket = errors.New("invalid stream ticket")

// TicketIssuer mints and verifies stream tickets with an HMAC secret.
type TicketIssuer struct {
	secret []byte
	ttl    time.Duration
}

// NewTicketIssuer creates a TicketIssuer. A non-positive ttl falls
// back to DefaultTicketTTL.
func NewTicketIssuer(secret string, ttl time.Duration) (*TicketIssuer, error) {
	if secret == "" {
		return nil, fmt.Errorf("ticket secret is empty")
	}
	if ttl <= 0 {
		ttl = DefaultTicketTTL
	}
	return &TicketIssuer{secret: []byte(secret), ttl: ttl}, nil
}

type ticketClaims struct {
	UserID string `json:"uid"`
	jwt.RegisteredClaims
}

// Mint issues a ticket for the given user.
func (t *TicketIssuer) Mint(userID string) (string, error) {
	now := time.Now()
	claims := ticketClaims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
		},
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return tok.SignedString(t.secret)
}

// Verify checks the ticket and returns the user ID it was minted for.
func (t *TicketIssuer) Verify(ticket string) (string, error) {
	var claims ticketClaims
	tok, err := jwt.ParseWithClaims(ticket, &claims, func(tok *jwt.Token) (interface{}, error) {
		if _, ok := tok.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", tok.Header["alg"])
		}
		return t.secret, nil
	})
	if err != nil || !tok.Valid || claims.UserID == "" {
		return "", ErrBadTicket
	}
	return claims.UserID, nil
}
