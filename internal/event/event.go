package event

import (
	"encoding/json"

	"github.com/example/planboard/internal/types"
)

// ClientType enumerates every event kind a client may transmit. The set is
// closed; vacations deliberately have no update kind on the wire.
type ClientType string

const (
	ClientAuthLogin      ClientType = "auth:login"
	ClientAuthLogout     ClientType = "auth:logout"
	ClientDataRequest    ClientType = "data:request"
	ClientContentCreate  ClientType = "content:create"
	ClientContentUpdate  ClientType = "content:update"
	ClientContentDelete  ClientType = "content:delete"
	ClientCategoryCreate ClientType = "category:create"
	ClientCategoryUpdate ClientType = "category:update"
	ClientCategoryDelete ClientType = "category:delete"
	ClientVacationCreate ClientType = "vacation:create"
	ClientVacationDelete ClientType = "vacation:delete"
)

// ServerType enumerates every event kind the server may deliver.
type ServerType string

const (
	ServerAuthSuccess     ServerType = "auth:success"
	ServerAuthError       ServerType = "auth:error"
	ServerDataInitial     ServerType = "data:initial"
	ServerContentCreated  ServerType = "content:created"
	ServerContentUpdated  ServerType = "content:updated"
	ServerContentDeleted  ServerType = "content:deleted"
	ServerCategoryCreated ServerType = "category:created"
	ServerCategoryUpdated ServerType = "category:updated"
	ServerCategoryDeleted ServerType = "category:deleted"
	ServerVacationCreated ServerType = "vacation:created"
	ServerVacationDeleted ServerType = "vacation:deleted"
	ServerError           ServerType = "error"
)

// ClientEvent is one outbound wire message. Payload is the JSON encoding of
// the payload struct matching Type; it is kept raw so queued events survive
// restarts byte-for-byte.
type ClientEvent struct {
	ID        string          `json:"id"`
	Type      ClientType      `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp int64           `json:"timestamp"`
}

// ServerEvent is one inbound wire message. UserID names the actor whose
// mutation the event describes; reconciliation uses it to discard echoes of
// locally issued events.
type ServerEvent struct {
	ID        string          `json:"id"`
	Type      ServerType      `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp int64           `json:"timestamp"`
	UserID    types.ActorID   `json:"userId,omitempty"`
}

// DeleteRef is the payload of every delete event.
type DeleteRef struct {
	ID string `json:"id"`
}

// Credentials is the auth:login payload for an interactive sign-in. Token
// is set instead of email/password when re-authenticating silently.
type Credentials struct {
	Email    string `json:"email,omitempty"`
	Password string `json:"password,omitempty"`
	Token    string `json:"token,omitempty"`
}

// AuthSuccess is the auth:success payload.
type AuthSuccess struct {
	User  User   `json:"user"`
	Token string `json:"token"`
}

// User identifies the authenticated actor.
type User struct {
	ID    types.ActorID `json:"id"`
	Email string        `json:"email,omitempty"`
	Name  string        `json:"name,omitempty"`
}

// AuthError is the auth:error payload.
type AuthError struct {
	Message string `json:"message"`
}

// InitialData is the data:initial payload carrying the full authoritative
// state. Date-valued fields arrive as ISO-8601 strings and are parsed by the
// types.Day decoder on the way in.
type InitialData struct {
	Contents   []types.ContentItem    `json:"contents"`
	Categories []types.Category       `json:"categories"`
	Vacations  []types.VacationPeriod `json:"vacations"`
	Templates  []types.Template       `json:"templates"`
	Series     []types.Series         `json:"series"`
}

// ServerErrorInfo is the generic error payload.
type ServerErrorInfo struct {
	Message string `json:"message"`
}
