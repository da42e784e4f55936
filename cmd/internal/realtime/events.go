package realtime

import (
	"encoding/json"
	"fmt"

	"parley/cmd/internal/scope"
	v1 "parley/shared/contracts/realtime/v1"
)

// Kind is the wire tag of an event.
type Kind string

const (
	KindServerCreate        Kind = v1.TypeServerCreate
	KindServerUpdate        Kind = v1.TypeServerUpdate
	KindServerDelete        Kind = v1.TypeServerDelete
	KindChannelCreate       Kind = v1.TypeChannelCreate
	KindChannelUpdate       Kind = v1.TypeChannelUpdate
	KindChannelDelete       Kind = v1.TypeChannelDelete
	KindMessageCreate       Kind = v1.TypeMessageCreate
	KindMessageUpdate       Kind = v1.TypeMessageUpdate
	KindMessageDelete       Kind = v1.TypeMessageDelete
	KindInviteCreate        Kind = v1.TypeInviteCreate
	KindInviteDelete        Kind = v1.TypeInviteDelete
	KindMemberCreate        Kind = v1.TypeMemberCreate
	KindMemberUpdate        Kind = v1.TypeMemberUpdate
	KindMemberDelete        Kind = v1.TypeMemberDelete
	KindUserUpdate          Kind = v1.TypeUserUpdate
	KindFriendRequestCreate Kind = v1.TypeFriendRequestCreate
	KindFriendRequestDelete Kind = v1.TypeFriendRequestDelete
	KindFriendCreate        Kind = v1.TypeFriendCreate
	KindFriendDelete        Kind = v1.TypeFriendDelete
)

// Event is an immutable state change ready for fanout.
// Build one with the constructors below; the zero Event is invalid.
type Event struct {
	kind Kind
	data any
}

// Kind returns the event tag.
func (e Event) Kind() Kind { return e.kind }

// Data returns the event payload.
func (e Event) Data() any { return e.data }

// RequiredScope is the scope a session must satisfy to receive the event.
func (e Event) RequiredScope() scope.Scope {
	switch e.kind {
	case KindServerCreate, KindServerUpdate, KindServerDelete,
		KindChannelCreate, KindChannelUpdate, KindChannelDelete,
		KindInviteCreate, KindInviteDelete,
		KindMemberCreate, KindMemberUpdate, KindMemberDelete:
		return scope.Read(scope.Servers)
	case KindMessageCreate, KindMessageUpdate, KindMessageDelete:
		return scope.Read(scope.Messages)
	case KindUserUpdate:
		return scope.Read(scope.Profile)
	case KindFriendRequestCreate, KindFriendRequestDelete, KindFriendCreate, KindFriendDelete:
		return scope.Read(scope.Friends)
	default:
		// Unknown kinds are never deliverable to restricted sessions.
		return scope.Scope{}
	}
}

// MarshalJSON encodes the event as a wire frame: {"type": kind, "data": payload}.
func (e Event) MarshalJSON() ([]byte, error) {
	if e.kind == "" {
		return nil, fmt.Errorf("realtime: marshal empty event")
	}
	data, err := json.Marshal(e.data)
	if err != nil {
		return nil, fmt.Errorf("realtime: marshal %s: %w", e.kind, err)
	}
	return json.Marshal(v1.Frame{Type: string(e.kind), Data: data})
}

func ServerCreate(s v1.Server) Event { return Event{kind: KindServerCreate, data: s} }

func ServerUpdate(u v1.ServerUpdate) Event { return Event{kind: KindServerUpdate, data: u} }

func ServerDelete(serverID string) Event {
	return Event{kind: KindServerDelete, data: v1.ObjectDelete{ID: serverID}}
}

func ChannelCreate(c v1.Channel) Event { return Event{kind: KindChannelCreate, data: c} }

func ChannelUpdate(u v1.ChannelUpdate) Event { return Event{kind: KindChannelUpdate, data: u} }

func ChannelDelete(channelID string) Event {
	return Event{kind: KindChannelDelete, data: v1.ObjectDelete{ID: channelID}}
}

func MessageCreate(m v1.Message) Event { return Event{kind: KindMessageCreate, data: m} }

func MessageUpdate(u v1.MessageUpdate) Event { return Event{kind: KindMessageUpdate, data: u} }

func MessageDelete(messageID string) Event {
	return Event{kind: KindMessageDelete, data: v1.ObjectDelete{ID: messageID}}
}

func InviteCreate(i v1.Invite) Event { return Event{kind: KindInviteCreate, data: i} }

func InviteDelete(inviteID string) Event {
	return Event{kind: KindInviteDelete, data: v1.ObjectDelete{ID: inviteID}}
}

func MemberCreate(m v1.ServerMember) Event { return Event{kind: KindMemberCreate, data: m} }

func MemberUpdate(u v1.MemberUpdate) Event { return Event{kind: KindMemberUpdate, data: u} }

func MemberDelete(serverID, userID string) Event {
	return Event{kind: KindMemberDelete, data: v1.MemberDelete{UserID: userID, ServerID: serverID}}
}

func UserUpdate(u v1.UserUpdate) Event { return Event{kind: KindUserUpdate, data: u} }

func FriendRequestCreate(r v1.FriendRequest) Event {
	return Event{kind: KindFriendRequestCreate, data: r}
}

func FriendRequestDelete(senderID, receiverID string) Event {
	return Event{kind: KindFriendRequestDelete, data: v1.FriendRequestDelete{SenderID: senderID, ReceiverID: receiverID}}
}

func FriendCreate(f v1.Friend) Event { return Event{kind: KindFriendCreate, data: f} }

func FriendDelete(userID, friendID string) Event {
	return Event{kind: KindFriendDelete, data: v1.FriendDelete{UserID: userID, FriendID: friendID}}
}
