package v1

import (
	"encoding/json"
	"time"
)

// Event types (wire-stable). Every event frame is {"type": <EventType>, "data": <payload>}.
const (
	TypeServerCreate = "server_create"
	TypeServerUpdate = "server_update"
	TypeServerDelete = "server_delete"

	TypeChannelCreate = "channel_create"
	TypeChannelUpdate = "channel_update"
	TypeChannelDelete = "channel_delete"

	TypeMessageCreate = "message_create"
	TypeMessageUpdate = "message_update"
	TypeMessageDelete = "message_delete"

	TypeInviteCreate = "invite_create"
	TypeInviteDelete = "invite_delete"

	TypeMemberCreate = "member_create"
	TypeMemberUpdate = "member_update"
	TypeMemberDelete = "member_delete"

	TypeUserUpdate = "user_update"

	TypeFriendRequestCreate = "friend_request_create"
	TypeFriendRequestDelete = "friend_request_delete"
	TypeFriendCreate        = "friend_create"
	TypeFriendDelete        = "friend_delete"
)

// Channel kinds.
const (
	ChannelKindText = "text"
	ChannelKindDM   = "DM"
)

// MessageKindText is the only message kind.
const MessageKindText = "text"

// IDs are decimal strings on the wire.

type User struct {
	ID          string  `json:"id"`
	Username    string  `json:"username"`
	DisplayName *string `json:"display_name"`
}

type Server struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	OwnerID string `json:"owner_id"`
}

type Channel struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Kind     string  `json:"kind"`
	ServerID *string `json:"server_id"`
	User     *User   `json:"user"`
}

type ServerMember struct {
	UserID    string    `json:"user_id"`
	ServerID  string    `json:"server_id"`
	CreatedAt time.Time `json:"created_at"`
	Nickname  *string   `json:"nickname"`
	User      *User     `json:"user"`
}

type Message struct {
	ID        string        `json:"id"`
	Kind      string        `json:"kind"`
	UpdatedAt *time.Time    `json:"updated_at"`
	Content   string        `json:"content"`
	ChannelID string        `json:"channel_id"`
	User      User          `json:"user"`
	Member    *ServerMember `json:"member"`
}

type Invite struct {
	ID        string    `json:"id"`
	Server    Server    `json:"server"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

type FriendRequest struct {
	Sender    User      `json:"sender"`
	Receiver  User      `json:"receiver"`
	CreatedAt time.Time `json:"created_at"`
}

type Friend struct {
	User      User      `json:"user"`
	Friend    User      `json:"friend"`
	CreatedAt time.Time `json:"created_at"`
	Channel   Channel   `json:"channel"`
}

// Partial update payloads. Omitted fields were not changed.

type ServerUpdate struct {
	ID   string  `json:"id"`
	Name *string `json:"name,omitempty"`
}

type ChannelUpdate struct {
	ID   string  `json:"id"`
	Name *string `json:"name,omitempty"`
}

type MessageUpdate struct {
	ID        string    `json:"id"`
	UpdatedAt time.Time `json:"updated_at"`
	Content   *string   `json:"content,omitempty"`
}

type MemberUpdate struct {
	UserID   string           `json:"user_id"`
	ServerID string           `json:"server_id"`
	Nickname Nullable[string] `json:"nickname,omitzero"`
}

type UserUpdate struct {
	ID          string           `json:"id"`
	Username    *string          `json:"username,omitempty"`
	DisplayName Nullable[string] `json:"display_name,omitzero"`
}

// Nullable is an update field that can be left unchanged, cleared or set.
// The zero value is unchanged and is omitted with the omitzero tag option.
type Nullable[T any] struct {
	Set   bool
	Value *T
}

// Clear returns a field that encodes as null.
func Clear[T any]() Nullable[T] { return Nullable[T]{Set: true} }

// SetTo returns a field holding v.
func SetTo[T any](v T) Nullable[T] { return Nullable[T]{Set: true, Value: &v} }

func (n Nullable[T]) IsZero() bool { return !n.Set }

func (n Nullable[T]) MarshalJSON() ([]byte, error) {
	return json.Marshal(n.Value)
}

func (n *Nullable[T]) UnmarshalJSON(b []byte) error {
	n.Set = true
	n.Value = nil
	if string(b) == "null" {
		return nil
	}
	var v T
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	n.Value = &v
	return nil
}

// Deletion payloads.

type ObjectDelete struct {
	ID string `json:"id"`
}

type MemberDelete struct {
	UserID   string `json:"user_id"`
	ServerID string `json:"server_id"`
}

type FriendRequestDelete struct {
	SenderID   string `json:"sender_id"`
	ReceiverID string `json:"receiver_id"`
}

type FriendDelete struct {
	UserID   string `json:"user_id"`
	FriendID string `json:"friend_id"`
}
