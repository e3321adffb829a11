package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// wsTicketResponse is returned by POST /auth/ws-ticket.
type wsTicketResponse struct {
	Ticket    string `json:"ticket"`
	ExpiresIn int    `json:"expires_in"`
}

// handleWSTicket issues a short-lived signed ticket for the WebSocket
// endpoint. Browsers cannot set an Authorization header on a WebSocket
// upgrade, so clients obtain a ticket here and pass it as a query parameter.
func (s *Server) handleWSTicket(w http.ResponseWriter, r *http.Request) {
	if s.secCfg.TicketSecret == "" {
		writeInternalError(w, "websocket tickets are not configured")
		return
	}

	ttl := time.Duration(s.secCfg.TicketTTL) * time.Second
	if ttl <= 0 {
		ttl = 60 * time.Second
	}

	now := time.Now()
	claims := jwt.RegisteredClaims{
		Issuer:    "shadecore",
		Subject:   "ws",
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.secCfg.TicketSecret))
	if err != nil {
		s.logger.Error("failed to sign websocket ticket", "error", err)
		writeInternalError(w, "failed to issue ticket")
		return
	}

	writeJSON(w, http.StatusOK, wsTicketResponse{
		Ticket:    signed,
		ExpiresIn: int(ttl.Seconds()),
	})
}

// validateTicket verifies a WebSocket ticket's signature and expiry.
func (s *Server) validateTicket(ticket string) error {
	if s.secCfg.TicketSecret == "" {
		return fmt.Errorf("tickets not configured")
	}
	token, err := jwt.ParseWithClaims(ticket, &jwt.RegisteredClaims{},
		func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
			}
			return []byte(s.secCfg.TicketSecret), nil
		},
		jwt.WithIssuer("shadecore"),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return err
	}
	if !token.Valid {
		return fmt.Errorf("invalid ticket")
	}
	return nil
}
