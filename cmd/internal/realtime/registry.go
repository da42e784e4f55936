package realtime

import (
	"log/slog"
	"maps"
	"slices"
	"sync/atomic"

	"parley/cmd/internal/scope"

	cmap "github.com/orcaman/concurrent-map/v2"
	"github.com/prometheus/client_golang/prometheus"
)

// Sender accepts a serialized frame for asynchronous delivery.
// Send must not block; it reports false when the frame was dropped.
type Sender interface {
	Send(b []byte) bool
}

// SessionEntry is one live session as seen by the fanout engine.
type SessionEntry struct {
	SessionID string
	Grant     scope.Grant
	Sender    Sender
}

// sessionSet and memberSet hold immutable snapshots. A snapshot is replaced,
// never mutated, and only while the owning shard lock is held.
type sessionSet struct {
	snap atomic.Pointer[map[string]SessionEntry]
}

type memberSet struct {
	snap atomic.Pointer[map[string]struct{}]
}

func (s *sessionSet) load() map[string]SessionEntry {
	if p := s.snap.Load(); p != nil {
		return *p
	}
	return nil
}

func (s *memberSet) load() map[string]struct{} {
	if p := s.snap.Load(); p != nil {
		return *p
	}
	return nil
}

// Registry indexes live sessions by user and online members by room.
//
// Both indices are sharded maps. Mutations run inside per-key callbacks that
// touch only their own key; no operation holds a lock on one index while
// mutating the other.
type Registry struct {
	log   *slog.Logger
	users cmap.ConcurrentMap[string, *sessionSet]
	rooms cmap.ConcurrentMap[string, *memberSet]

	afterRoomAdd func() // test hook
}

// NewRegistry constructs an empty registry.
func NewRegistry(log *slog.Logger) *Registry {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Registry{
		log:   log,
		users: cmap.New[*sessionSet](),
		rooms: cmap.New[*memberSet](),
	}
}

// RegisterMetrics exposes online user and room counts as gauges.
func (r *Registry) RegisterMetrics(reg prometheus.Registerer) error {
	if reg == nil {
		return nil
	}
	online := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Subsystem: "registry",
		Name:      "online_users",
		Help:      "Users with at least one authenticated session.",
	}, func() float64 { return float64(r.users.Count()) })
	rooms := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Subsystem: "registry",
		Name:      "online_rooms",
		Help:      "Rooms with at least one online member.",
	}, func() float64 { return float64(r.rooms.Count()) })

	if err := reg.Register(online); err != nil {
		return err
	}
	return reg.Register(rooms)
}

// RegisterSession inserts or replaces the session entry for (userID, sessionID).
// It reports whether this is the user's first live session, in which case the
// caller is expected to sync the user's room memberships.
func (r *Registry) RegisterSession(userID, sessionID string, grant scope.Grant, sender Sender) (first bool) {
	entry := SessionEntry{SessionID: sessionID, Grant: grant, Sender: sender}

	r.users.Upsert(userID, nil, func(exists bool, cur, _ *sessionSet) *sessionSet {
		if !exists || cur == nil {
			first = true
			next := map[string]SessionEntry{sessionID: entry}
			s := &sessionSet{}
			s.snap.Store(&next)
			return s
		}
		next := maps.Clone(cur.load())
		if next == nil {
			next = make(map[string]SessionEntry, 1)
		}
		next[sessionID] = entry
		cur.snap.Store(&next)
		return cur
	})

	r.log.Debug("registry.session.register", "user_id", userID, "session_id", sessionID, "first", first, "scopes", grant.String())
	return first
}

// DeregisterSession removes one session. It reports whether the user has no
// live sessions left, in which case the user key is gone.
func (r *Registry) DeregisterSession(userID, sessionID string) (last bool) {
	r.users.RemoveCb(userID, func(_ string, cur *sessionSet, exists bool) bool {
		if !exists || cur == nil {
			return false
		}
		snap := cur.load()
		if _, ok := snap[sessionID]; !ok {
			return false
		}
		if len(snap) == 1 {
			last = true
			empty := map[string]SessionEntry{}
			cur.snap.Store(&empty)
			return true
		}
		next := maps.Clone(snap)
		delete(next, sessionID)
		cur.snap.Store(&next)
		return false
	})

	r.log.Debug("registry.session.deregister", "user_id", userID, "session_id", sessionID, "last", last)
	return last
}

// SyncRoomMembership adds or removes userID from the online members of roomID.
// The room key is removed when its last member leaves.
func (r *Registry) SyncRoomMembership(roomID, userID string, present bool) {
	if present {
		r.rooms.Upsert(roomID, nil, func(exists bool, cur, _ *memberSet) *memberSet {
			if !exists || cur == nil {
				next := map[string]struct{}{userID: {}}
				s := &memberSet{}
				s.snap.Store(&next)
				return s
			}
			snap := cur.load()
			if _, ok := snap[userID]; ok {
				return cur
			}
			next := maps.Clone(snap)
			if next == nil {
				next = make(map[string]struct{}, 1)
			}
			next[userID] = struct{}{}
			cur.snap.Store(&next)
			return cur
		})
		return
	}

	r.rooms.RemoveCb(roomID, func(_ string, cur *memberSet, exists bool) bool {
		if !exists || cur == nil {
			return false
		}
		snap := cur.load()
		if _, ok := snap[userID]; !ok {
			return len(snap) == 0
		}
		if len(snap) == 1 {
			empty := map[string]struct{}{}
			cur.snap.Store(&empty)
			return true
		}
		next := maps.Clone(snap)
		delete(next, userID)
		cur.snap.Store(&next)
		return false
	})
}

// JoinRoomIfOnline adds userID to the room's online members only while the
// user has a live session. A concurrent last-session prune either removes the
// member after the add or is observed by the recheck, which undoes it.
func (r *Registry) JoinRoomIfOnline(roomID, userID string) bool {
	if !r.IsOnline(userID) {
		return false
	}
	r.SyncRoomMembership(roomID, userID, true)
	if r.afterRoomAdd != nil {
		r.afterRoomAdd()
	}
	if !r.IsOnline(userID) {
		r.SyncRoomMembership(roomID, userID, false)
		return false
	}
	return true
}

// SessionsForUser returns a snapshot of the user's live sessions ordered by session id.
// It returns nil for an offline user.
func (r *Registry) SessionsForUser(userID string) []SessionEntry {
	s, ok := r.users.Get(userID)
	if !ok || s == nil {
		return nil
	}
	snap := s.load()
	if len(snap) == 0 {
		return nil
	}
	out := make([]SessionEntry, 0, len(snap))
	for _, id := range slices.Sorted(maps.Keys(snap)) {
		out = append(out, snap[id])
	}
	return out
}

// MembersOfRoom returns a snapshot of the room's online members in sorted order.
func (r *Registry) MembersOfRoom(roomID string) []string {
	s, ok := r.rooms.Get(roomID)
	if !ok || s == nil {
		return nil
	}
	snap := s.load()
	if len(snap) == 0 {
		return nil
	}
	return slices.Sorted(maps.Keys(snap))
}

// IsOnline reports whether the user has at least one live session.
func (r *Registry) IsOnline(userID string) bool {
	s, ok := r.users.Get(userID)
	return ok && s != nil && len(s.load()) > 0
}

// HasRoom reports whether the room has at least one online member.
func (r *Registry) HasRoom(roomID string) bool {
	return r.rooms.Has(roomID)
}

// DropRoom removes the room key entirely and returns the members it held.
func (r *Registry) DropRoom(roomID string) []string {
	s, ok := r.rooms.Pop(roomID)
	if !ok || s == nil {
		return nil
	}
	return slices.Sorted(maps.Keys(s.load()))
}

// RoomsContaining scans the room index for rooms listing userID.
// It is a fallback for when durable membership cannot be read.
func (r *Registry) RoomsContaining(userID string) []string {
	var out []string
	for item := range r.rooms.IterBuffered() {
		if item.Val == nil {
			continue
		}
		if _, ok := item.Val.load()[userID]; ok {
			out = append(out, item.Key)
		}
	}
	slices.Sort(out)
	return out
}

// PruneUser removes userID from each listed room. When the user comes back
// online while pruning, the rooms are restored so the new session keeps them.
func (r *Registry) PruneUser(userID string, roomIDs []string) {
	for _, roomID := range roomIDs {
		r.SyncRoomMembership(roomID, userID, false)
	}
	if len(roomIDs) > 0 && r.IsOnline(userID) {
		restored := 0
		for _, roomID := range roomIDs {
			if r.JoinRoomIfOnline(roomID, userID) {
				restored++
			}
		}
		r.log.Debug("registry.prune.restored", "user_id", userID, "rooms", restored)
	}
}

// Counts returns the number of online users and online rooms.
func (r *Registry) Counts() (users, rooms int) {
	return r.users.Count(), r.rooms.Count()
}
