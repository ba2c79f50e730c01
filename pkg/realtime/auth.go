package realtime

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"

	"github.com/aquamon/aquamon/pkg/infra/logger"
)

const (
	RoleAdmin  = "admin"
	RoleViewer = "viewer"
)

var (
	ErrMissingToken = errors.New("missing token")
	ErrInvalidToken = errors.New("invalid token")
)

// Identity is the authenticated principal behind a websocket session.
type Identity struct {
	Subject string
	Role    string
}

type sessionClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// TokenValidator verifies HS256 session tokens minted by the operator
// tooling.
type TokenValidator struct {
	secret []byte
}

func NewTokenValidator(secret string) *TokenValidator {
	return &TokenValidator{secret: []byte(secret)}
}

func (v *TokenValidator) Validate(tokenString string) (Identity, error) {
	if tokenString == "" {
		return Identity{}, ErrMissingToken
	}

	claims := &sessionClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil || !token.Valid {
		return Identity{}, ErrInvalidToken
	}

	role := claims.Role
	if role == "" {
		role = RoleViewer
	}
	return Identity{Subject: claims.Subject, Role: role}, nil
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origin enforcement happens at the reverse proxy.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleWS authenticates the handshake and upgrades the connection.
// Auth failures are rejected before the upgrade so clients get a plain
// HTTP status.
func HandleWS(hub *Hub, validator *TokenValidator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tokenString := r.URL.Query().Get("token")
		if tokenString == "" {
			tokenString = r.Header.Get("Authorization")
			if len(tokenString) > 7 && tokenString[:7] == "Bearer " {
				tokenString = tokenString[7:]
			}
		}

		identity, err := validator.Validate(tokenString)
		if err != nil {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Default().Warn("websocket upgrade failed", "error", err)
			return
		}

		client := newClient(hub, conn, identity)
		hub.register <- client
		go client.writePump()
		go client.readPump()
	}
}
