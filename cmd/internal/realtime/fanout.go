package realtime

import (
	"log/slog"

	"parley/cmd/internal/scope"
)

// Publisher fans events out to the live sessions held by a Registry.
//
// Publishing never blocks and never fails: offline recipients are skipped,
// sessions whose grant does not satisfy an event are filtered, and a full or
// closing send queue drops the payload. Closed sessions are removed by their
// own connection loop, not here.
type Publisher struct {
	log     *slog.Logger
	reg     *Registry
	metrics *Metrics
}

// NewPublisher constructs a Publisher over reg.
func NewPublisher(log *slog.Logger, reg *Registry, metrics *Metrics) *Publisher {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Publisher{log: log, reg: reg, metrics: metrics}
}

// Registry returns the registry the publisher reads from.
func (p *Publisher) Registry() *Registry { return p.reg }

type encodedEvent struct {
	kind     Kind
	required scope.Scope
	payload  []byte
}

// PublishResult summarizes one Publish call.
type PublishResult struct {
	Delivered int
	Dropped   int
	Filtered  int
}

// Publish delivers a batch of events to every eligible session of each recipient.
// Each event is serialized once per call. Duplicate recipients are delivered once.
func (p *Publisher) Publish(events []Event, recipients []string) PublishResult {
	var res PublishResult
	if p == nil || p.reg == nil || len(events) == 0 || len(recipients) == 0 {
		return res
	}

	encoded := make([]encodedEvent, 0, len(events))
	for _, ev := range events {
		b, err := ev.MarshalJSON()
		if err != nil {
			p.log.Error("fanout.encode.fail", "kind", string(ev.Kind()), "err", err)
			continue
		}
		encoded = append(encoded, encodedEvent{kind: ev.Kind(), required: ev.RequiredScope(), payload: b})
	}
	if len(encoded) == 0 {
		return res
	}

	seen := make(map[string]struct{}, len(recipients))
	for _, userID := range recipients {
		if _, dup := seen[userID]; dup {
			continue
		}
		seen[userID] = struct{}{}

		for _, sess := range p.reg.SessionsForUser(userID) {
			for _, ev := range encoded {
				if !scope.Satisfies(sess.Grant, ev.required) {
					res.Filtered++
					continue
				}
				if sess.Sender != nil && sess.Sender.Send(ev.payload) {
					res.Delivered++
					continue
				}
				res.Dropped++
				p.log.Debug("fanout.drop", "user_id", userID, "session_id", sess.SessionID, "kind", string(ev.kind))
			}
		}
	}

	p.metrics.fanout(len(encoded), res.Delivered, res.Dropped, res.Filtered)
	return res
}

// PublishToRoom broadcasts to the room's online members as of the call.
func (p *Publisher) PublishToRoom(roomID string, events ...Event) PublishResult {
	if p == nil || p.reg == nil {
		return PublishResult{}
	}
	return p.Publish(events, p.reg.MembersOfRoom(roomID))
}

// PublishToUsers broadcasts to an explicit recipient set, for room-less contexts
// such as direct messages and friend relationships.
func (p *Publisher) PublishToUsers(userIDs []string, events ...Event) PublishResult {
	return p.Publish(events, userIDs)
}

// MemberJoined records that userID joined roomID. An online user is added to the
// room's members so later room broadcasts reach it.
func (p *Publisher) MemberJoined(roomID, userID string) bool {
	if p == nil || p.reg == nil {
		return false
	}
	return p.reg.JoinRoomIfOnline(roomID, userID)
}

// MemberLeft removes userID from the room's online members.
func (p *Publisher) MemberLeft(roomID, userID string) {
	if p == nil || p.reg == nil {
		return
	}
	p.reg.SyncRoomMembership(roomID, userID, false)
}

// RoomDeleted forgets the room and returns the members that were online in it.
func (p *Publisher) RoomDeleted(roomID string) []string {
	if p == nil || p.reg == nil {
		return nil
	}
	return p.reg.DropRoom(roomID)
}
