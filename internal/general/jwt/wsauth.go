package jwt

import (
	"encoding/json"
	"errors"
	"strings"

	"ride-dispatch/internal/domain/user"
)

var ErrBadAuthMsg = errors.New("first frame must be an auth message")

// ClientAuthMessage is the first frame a websocket client sends:
// {"type":"auth","data":{"token":"Bearer <jwt>"}}. A flat "token" field is accepted too.
type ClientAuthMessage struct {
	Type  string `json:"type"`
	Token string `json:"token,omitempty"`
	Data  struct {
		Token string `json:"token"`
	} `json:"data"`
}

func (msg ClientAuthMessage) token() string {
	if t := strings.TrimSpace(msg.Data.Token); t != "" {
		return t
	}
	return strings.TrimSpace(msg.Token)
}

// ValidateWSAuth parses the auth frame, validates the JWT and enforces the role list.
func ValidateWSAuth(frame []byte, mgr *Manager, allowedRoles ...user.Role) (*Claims, error) {
	var msg ClientAuthMessage
	if err := json.Unmarshal(frame, &msg); err != nil {
		return nil, ErrBadAuthMsg
	}
	if !strings.EqualFold(strings.TrimSpace(msg.Type), "auth") {
		return nil, ErrBadAuthMsg
	}

	raw := msg.token()
	if stripped, ok := stripBearer(raw); ok {
		raw = stripped
	}
	if raw == "" {
		return nil, ErrMissingToken
	}

	claims, err := mgr.ParseAndValidate(raw)
	if err != nil {
		return nil, err
	}
	if err := RoleAllowed(claims, allowedRoles...); err != nil {
		return nil, err
	}
	return claims, nil
}
