package room

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/weiawesome/wes-io-live/live-engine/internal/audit"
	"github.com/weiawesome/wes-io-live/live-engine/internal/cache"
	"github.com/weiawesome/wes-io-live/live-engine/internal/domain"
	"github.com/weiawesome/wes-io-live/live-engine/internal/idgen"
	"github.com/weiawesome/wes-io-live/live-engine/internal/kafka"
	"github.com/weiawesome/wes-io-live/live-engine/internal/repository"
	"github.com/weiawesome/wes-io-live/live-engine/pkg/log"
)

// EventStreamToggles reports host toggle changes to a room.
const EventStreamToggles = "stream:toggles"

const (
	maxSessionEvents = 1000
	// storeTimeout bounds every database and cache call of the registry.
	storeTimeout = 2 * time.Second
)

type member struct {
	domain.Membership
	// counted is set when the socket contributed to the live viewer count.
	counted bool
}

type liveRoom struct {
	room        domain.Room
	state       *domain.LiveSessionState
	hostCounted bool
	// seq numbers write-behind snapshots. Guarded by Registry.mu.
	seq uint64

	flushMu       sync.Mutex
	flushed       uint64
	closed        bool
	storedViewers int
	storedPeak    int
}

// Registry is the authoritative state of rooms: live status, counters and
// socket memberships. The registry lock only guards memory; store writes,
// cache writes and notifications run after it is released.
type Registry struct {
	rooms     repository.RoomRepository
	followers FollowerCounter
	ids       idgen.Generator
	notifier  Notifier
	cache     cache.SessionCache
	cacheTTL  time.Duration
	archiver  SummaryArchiver
	producer  kafka.LiveEventProducer

	mu        sync.Mutex
	known     map[string]*domain.Room
	live      map[string]*liveRoom
	members   map[string]map[string]*member  // roomID -> socketID -> member
	bySocket  map[string]map[string]struct{} // socketID -> roomIDs
	hostLocks map[string]*sync.Mutex         // hostID -> start/stop lock
}

// NewRegistry creates a Registry. followers, sessionCache, archiver and
// producer may be nil.
func NewRegistry(
	rooms repository.RoomRepository,
	followers FollowerCounter,
	ids idgen.Generator,
	notifier Notifier,
	sessionCache cache.SessionCache,
	cacheTTL time.Duration,
	archiver SummaryArchiver,
	producer kafka.LiveEventProducer,
) *Registry {
	if producer == nil {
		producer = kafka.NopProducer{}
	}
	return &Registry{
		rooms:     rooms,
		followers: followers,
		ids:       ids,
		notifier:  notifier,
		cache:     sessionCache,
		cacheTTL:  cacheTTL,
		archiver:  archiver,
		producer:  producer,
		known:     make(map[string]*domain.Room),
		live:      make(map[string]*liveRoom),
		members:   make(map[string]map[string]*member),
		bySocket:  make(map[string]map[string]struct{}),
		hostLocks: make(map[string]*sync.Mutex),
	}
}

func bound(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, storeTimeout)
}

// CreateRoom registers a new idle room owned by hostID.
func (r *Registry) CreateRoom(ctx context.Context, hostID string, req domain.CreateRoomRequest) (*domain.Room, error) {
	id, err := r.ids.Generate()
	if err != nil {
		return nil, err
	}
	room := &domain.Room{
		ID:        id,
		HostID:    hostID,
		Title:     req.Title,
		Category:  req.Category,
		IsPrivate: req.IsPrivate,
	}
	sctx, cancel := bound(ctx)
	defer cancel()
	if err := r.rooms.Create(sctx, room); err != nil {
		return nil, err
	}

	r.mu.Lock()
	cp := *room
	r.known[id] = &cp
	r.mu.Unlock()
	return room, nil
}

// Room returns the current view of a room.
func (r *Registry) Room(ctx context.Context, roomID string) (*domain.Room, error) {
	if err := r.load(ctx, roomID); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if lr, ok := r.live[roomID]; ok {
		cp := lr.room
		return &cp, nil
	}
	cp := *r.known[roomID]
	return &cp, nil
}

// ListLive returns live rooms, optionally of one category.
func (r *Registry) ListLive(ctx context.Context, category string) ([]domain.Room, error) {
	sctx, cancel := bound(ctx)
	defer cancel()
	return r.rooms.ListLive(sctx, category)
}

// IsHost reports whether userID owns the room.
func (r *Registry) IsHost(ctx context.Context, roomID, userID string) (bool, error) {
	room, err := r.Room(ctx, roomID)
	if err != nil {
		return false, err
	}
	return room.HostID == userID, nil
}

// load makes sure the room is in r.known. The store is read without holding
// the registry lock; entries are never evicted.
func (r *Registry) load(ctx context.Context, roomID string) error {
	r.mu.Lock()
	_, ok := r.known[roomID]
	r.mu.Unlock()
	if ok {
		return nil
	}

	sctx, cancel := bound(ctx)
	room, err := r.rooms.GetByID(sctx, roomID)
	cancel()
	if err != nil {
		return err
	}

	r.mu.Lock()
	if _, ok := r.known[roomID]; !ok {
		r.known[roomID] = room
	}
	r.mu.Unlock()
	return nil
}

func (r *Registry) hostOf(ctx context.Context, roomID string) (string, error) {
	if err := r.load(ctx, roomID); err != nil {
		return "", err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.known[roomID].HostID, nil
}

// hostLock serializes broadcast starts and stops of one host's rooms.
func (r *Registry) hostLock(hostID string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.hostLocks[hostID]
	if !ok {
		m = &sync.Mutex{}
		r.hostLocks[hostID] = m
	}
	return m
}

// StartBroadcast marks the room live with one viewer. Any other live room of
// the same host is stopped first. Starting a live room is a no-op.
func (r *Registry) StartBroadcast(ctx context.Context, roomID string) (*domain.Room, error) {
	ctx = log.WithRoom(ctx, roomID)
	l := log.Ctx(ctx)

	hostID, err := r.hostOf(ctx, roomID)
	if err != nil {
		return nil, err
	}
	hl := r.hostLock(hostID)
	hl.Lock()
	defer hl.Unlock()

	var pending []func()
	defer func() {
		for _, fn := range pending {
			fn()
		}
	}()

	r.mu.Lock()
	if lr, ok := r.live[roomID]; ok {
		cp := lr.room
		r.mu.Unlock()
		return &cp, nil
	}
	stopIDs := make(map[string]struct{})
	for id, lr := range r.live {
		if lr.room.HostID == hostID {
			stopIDs[id] = struct{}{}
		}
	}
	r.mu.Unlock()

	sctx, cancel := bound(ctx)
	others, err := r.rooms.ListLiveByHost(sctx, hostID)
	cancel()
	if err != nil {
		return nil, err
	}
	for _, o := range others {
		stopIDs[o.ID] = struct{}{}
	}
	delete(stopIDs, roomID)
	for id := range stopIDs {
		_, fns, err := r.stop(log.WithRoom(ctx, id), id)
		pending = append(pending, fns...)
		if err != nil {
			return nil, err
		}
	}

	fans := 0
	if r.followers != nil {
		sctx, cancel := bound(ctx)
		if n, err := r.followers.CountFollowers(sctx, hostID); err == nil {
			fans = int(n)
		}
		cancel()
	}

	now := time.Now()
	sctx, cancel = bound(ctx)
	err = r.rooms.MarkLive(sctx, roomID, now)
	cancel()
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	known := r.known[roomID]
	started := *known
	started.IsLive = true
	started.Viewers = 1
	if started.PeakViewers < 1 {
		started.PeakViewers = 1
	}
	started.StartedAt = &now
	started.EndedAt = nil

	lr := &liveRoom{
		room: started,
		state: &domain.LiveSessionState{
			RoomID:      roomID,
			IsLive:      true,
			Viewers:     1,
			PeakViewers: 1,
			Fans:        fans,
			Events:      []domain.SessionEvent{},
			StartTime:   now,
		},
		hostCounted:   true,
		storedViewers: started.Viewers,
		storedPeak:    started.PeakViewers,
	}
	r.live[roomID] = lr
	*known = started

	// Sockets joined before the start are not viewers of this broadcast.
	for _, m := range r.members[roomID] {
		m.counted = false
	}
	pending = append(pending, r.snapshotLocked(ctx, lr))
	r.mu.Unlock()

	l.Info().Str(log.FieldUserID, hostID).Msg("broadcast started")
	snapshot := started
	pending = append(pending, func() {
		r.notifier.BroadcastGlobal(ctx, domain.EventStreamStarted, &snapshot)
		r.notifier.Broadcast(ctx, roomID, domain.EventStreamStatus, domain.StreamStatusData{
			StreamID: roomID,
			Status:   domain.StatusOnline,
		})
		audit.Record(ctx, audit.Entry{Action: audit.ActionStreamStart, UserID: snapshot.HostID, RoomID: roomID}, "broadcast started")
		if err := r.producer.ProduceStreamStarted(ctx, roomID, snapshot.HostID); err != nil {
			l.Warn().Err(err).Msg("failed to produce stream_started")
		}
	})

	cp := started
	return &cp, nil
}

// StopBroadcast ends a live room, archives its summary and evicts members.
// Stopping an idle room is a no-op and returns a nil summary.
func (r *Registry) StopBroadcast(ctx context.Context, roomID string) (*domain.SessionSummary, error) {
	ctx = log.WithRoom(ctx, roomID)

	hostID, err := r.hostOf(ctx, roomID)
	if err != nil {
		return nil, err
	}
	hl := r.hostLock(hostID)
	hl.Lock()
	defer hl.Unlock()

	summary, pending, err := r.stop(ctx, roomID)
	for _, fn := range pending {
		fn()
	}
	return summary, err
}

// stop ends one room. The caller holds the host lock of the room.
func (r *Registry) stop(ctx context.Context, roomID string) (*domain.SessionSummary, []func(), error) {
	l := log.Ctx(ctx)

	if err := r.load(ctx, roomID); err != nil {
		return nil, nil, err
	}
	r.mu.Lock()
	lr, inMemory := r.live[roomID]
	wasLive := r.known[roomID].IsLive
	r.mu.Unlock()
	if !inMemory && !wasLive {
		return nil, nil, nil
	}

	// No viewer or cache write of this broadcast may land after the end.
	if inMemory {
		lr.setClosed(true)
	}
	now := time.Now()
	sctx, cancel := bound(ctx)
	err := r.rooms.MarkEnded(sctx, roomID, now)
	cancel()
	if err != nil {
		if inMemory {
			lr.setClosed(false)
		}
		return nil, nil, err
	}

	r.mu.Lock()
	room := r.known[roomID]
	summary := &domain.SessionSummary{
		RoomID:  roomID,
		HostID:  room.HostID,
		EndedAt: now,
	}
	if inMemory {
		summary.StartedAt = lr.state.StartTime
		summary.PeakViewers = lr.state.PeakViewers
		summary.Coins = lr.state.Coins
		summary.Followers = lr.state.Followers
		summary.Members = lr.state.Members
		for _, ev := range lr.state.Events {
			if ev.Kind == domain.SessionEventGift {
				summary.GiftEvents++
			}
		}
		*room = lr.room
	} else if room.StartedAt != nil {
		summary.StartedAt = *room.StartedAt
	}
	summary.Duration = summary.EndedAt.Sub(summary.StartedAt)

	room.IsLive = false
	room.Viewers = 0
	room.EndedAt = &now
	delete(r.live, roomID)

	for socketID := range r.members[roomID] {
		if rooms := r.bySocket[socketID]; rooms != nil {
			delete(rooms, roomID)
			if len(rooms) == 0 {
				delete(r.bySocket, socketID)
			}
		}
	}
	delete(r.members, roomID)
	r.mu.Unlock()

	l.Info().Str(log.FieldUserID, summary.HostID).Dur("duration", summary.Duration).Msg("broadcast stopped")
	pending := []func(){func() {
		if r.cache != nil {
			sctx, cancel := bound(ctx)
			if err := r.cache.DeleteSession(sctx, roomID); err != nil {
				l.Warn().Err(err).Msg("failed to drop cached session")
			}
			if err := r.cache.UnmarkLive(sctx, roomID); err != nil {
				l.Warn().Err(err).Msg("failed to unindex live room")
			}
			cancel()
		}
		if r.archiver != nil {
			sctx, cancel := bound(ctx)
			if err := r.archiver.Save(sctx, summary); err != nil {
				l.Error().Err(err).Msg("failed to archive session summary")
			}
			cancel()
		}
		r.notifier.BroadcastGlobal(ctx, domain.EventStreamEnded, domain.StreamRefData{StreamID: roomID})
		r.notifier.Broadcast(ctx, roomID, domain.EventStreamStatus, domain.StreamStatusData{
			StreamID: roomID,
			Status:   domain.StatusOffline,
		})
		r.notifier.EvictRoom(ctx, roomID)
		audit.Record(ctx, audit.Entry{Action: audit.ActionStreamStop, UserID: summary.HostID, RoomID: roomID}, "broadcast stopped")
		if err := r.producer.ProduceStreamEnded(ctx, summary); err != nil {
			l.Warn().Err(err).Msg("failed to produce stream_ended")
		}
	}}
	return summary, pending, nil
}

func (lr *liveRoom) setClosed(closed bool) {
	lr.flushMu.Lock()
	lr.closed = closed
	lr.flushMu.Unlock()
}

// snapshotLocked captures the counters and session of a live room and
// returns the write that persists them. Writes of one room are applied in
// capture order; a write older than one already applied is dropped.
func (r *Registry) snapshotLocked(ctx context.Context, lr *liveRoom) func() {
	lr.seq++
	seq := lr.seq
	roomID := lr.room.ID
	viewers, peak := lr.room.Viewers, lr.room.PeakViewers
	var state *domain.LiveSessionState
	if r.cache != nil {
		state = lr.state.Clone()
	}

	return func() {
		lr.flushMu.Lock()
		defer lr.flushMu.Unlock()
		if lr.closed || seq <= lr.flushed {
			return
		}
		lr.flushed = seq
		l := log.Ctx(ctx)

		if viewers != lr.storedViewers || peak != lr.storedPeak {
			sctx, cancel := bound(ctx)
			err := r.rooms.UpdateViewers(sctx, roomID, viewers, peak)
			cancel()
			if err != nil {
				l.Warn().Err(err).Str(log.FieldRoomID, roomID).Msg("failed to persist viewer count")
			} else {
				lr.storedViewers, lr.storedPeak = viewers, peak
			}
		}

		if state == nil {
			return
		}
		sctx, cancel := bound(ctx)
		defer cancel()
		if err := r.cache.SetSession(sctx, state, r.cacheTTL); err != nil {
			l.Warn().Err(err).Str(log.FieldRoomID, roomID).Msg("failed to cache session")
		}
		if err := r.cache.MarkLive(sctx, roomID, viewers); err != nil {
			l.Warn().Err(err).Str(log.FieldRoomID, roomID).Msg("failed to index live room")
		}
	}
}

// UpdateViewerCount applies delta to a live room, never going below zero.
// Idle rooms are left untouched.
func (r *Registry) UpdateViewerCount(ctx context.Context, roomID string, delta int) error {
	if err := r.load(ctx, roomID); err != nil {
		return err
	}

	r.mu.Lock()
	lr, ok := r.live[roomID]
	if !ok {
		r.mu.Unlock()
		return nil
	}
	flush := r.applyViewersLocked(ctx, lr, delta)
	r.mu.Unlock()

	flush()
	return nil
}

func (r *Registry) applyViewersLocked(ctx context.Context, lr *liveRoom, delta int) func() {
	if delta == 0 {
		return func() {}
	}
	v := lr.state.Viewers + delta
	if v < 0 {
		v = 0
	}
	lr.state.Viewers = v
	lr.room.Viewers = v
	if v > lr.state.PeakViewers {
		lr.state.PeakViewers = v
	}
	if v > lr.room.PeakViewers {
		lr.room.PeakViewers = v
	}
	if known, ok := r.known[lr.room.ID]; ok {
		known.Viewers = lr.room.Viewers
		known.PeakViewers = lr.room.PeakViewers
	}
	return r.snapshotLocked(ctx, lr)
}

// AddMember registers a socket in a room and counts it as a viewer while
// the room is live. The host is counted once however many sockets it opens.
func (r *Registry) AddMember(ctx context.Context, roomID string, profile domain.UserProfile, socketID string) (*domain.MemberChange, error) {
	if err := r.load(ctx, roomID); err != nil {
		return nil, err
	}

	flush := func() {}
	defer func() { flush() }()
	r.mu.Lock()
	defer r.mu.Unlock()

	room := r.known[roomID]
	sockets := r.members[roomID]
	if sockets == nil {
		sockets = make(map[string]*member)
		r.members[roomID] = sockets
	}
	if existing, ok := sockets[socketID]; ok {
		return &domain.MemberChange{Membership: existing.Membership}, nil
	}

	returning := r.userHasSocketLocked(roomID, profile.ID)
	m := &member{Membership: domain.Membership{
		RoomID:   roomID,
		UserID:   profile.ID,
		SocketID: socketID,
		Profile:  profile,
		JoinedAt: time.Now(),
	}}
	sockets[socketID] = m

	rooms := r.bySocket[socketID]
	if rooms == nil {
		rooms = make(map[string]struct{})
		r.bySocket[socketID] = rooms
	}
	rooms[roomID] = struct{}{}

	if lr, ok := r.live[roomID]; ok {
		if !returning && profile.ID != room.HostID {
			lr.state.Members++
		}
		if profile.ID == room.HostID {
			if !lr.hostCounted {
				lr.hostCounted = true
				flush = r.applyViewersLocked(ctx, lr, 1)
			}
		} else {
			m.counted = true
			flush = r.applyViewersLocked(ctx, lr, 1)
		}
	}

	return &domain.MemberChange{Membership: m.Membership, Presence: !returning}, nil
}

// RemoveMember drops one socket from a room. It reports false when the
// socket was not joined.
func (r *Registry) RemoveMember(ctx context.Context, roomID, socketID string) (*domain.MemberChange, bool) {
	r.mu.Lock()
	change, flush, ok := r.removeLocked(ctx, roomID, socketID)
	r.mu.Unlock()

	flush()
	return change, ok
}

// RemoveSocket drops a socket from every room it joined.
func (r *Registry) RemoveSocket(ctx context.Context, socketID string) []domain.MemberChange {
	var (
		removed []domain.MemberChange
		flushes []func()
	)
	r.mu.Lock()
	for roomID := range r.bySocket[socketID] {
		if change, flush, ok := r.removeLocked(ctx, roomID, socketID); ok {
			removed = append(removed, *change)
			flushes = append(flushes, flush)
		}
	}
	r.mu.Unlock()

	for _, flush := range flushes {
		flush()
	}
	return removed
}

func (r *Registry) removeLocked(ctx context.Context, roomID, socketID string) (*domain.MemberChange, func(), bool) {
	flush := func() {}
	sockets := r.members[roomID]
	m, ok := sockets[socketID]
	if !ok {
		return nil, flush, false
	}
	delete(sockets, socketID)
	if len(sockets) == 0 {
		delete(r.members, roomID)
	}
	if rooms := r.bySocket[socketID]; rooms != nil {
		delete(rooms, roomID)
		if len(rooms) == 0 {
			delete(r.bySocket, socketID)
		}
	}

	last := !r.userHasSocketLocked(roomID, m.UserID)
	if lr, live := r.live[roomID]; live {
		if m.UserID == lr.room.HostID {
			if lr.hostCounted && last {
				lr.hostCounted = false
				flush = r.applyViewersLocked(ctx, lr, -1)
			}
		} else if m.counted {
			flush = r.applyViewersLocked(ctx, lr, -1)
		}
	}

	return &domain.MemberChange{Membership: m.Membership, Presence: last}, flush, true
}

func (r *Registry) userHasSocketLocked(roomID, userID string) bool {
	for _, m := range r.members[roomID] {
		if m.UserID == userID {
			return true
		}
	}
	return false
}

// HasUser reports whether the user has any socket joined to the room.
func (r *Registry) HasUser(roomID, userID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.userHasSocketLocked(roomID, userID)
}

// SocketsOf returns the sockets a user has joined to a room.
func (r *Registry) SocketsOf(roomID, userID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var ids []string
	for id, m := range r.members[roomID] {
		if m.UserID == userID {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// Members returns the raw per-socket memberships of a room.
func (r *Registry) Members(roomID string) []domain.Membership {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]domain.Membership, 0, len(r.members[roomID]))
	for _, m := range r.members[roomID] {
		out = append(out, m.Membership)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].JoinedAt.Before(out[j].JoinedAt) })
	return out
}

// Roster returns one entry per user, keeping the latest join and summing
// contribution across the user's sockets, ranked by contribution.
func (r *Registry) Roster(roomID string) []domain.RosterEntry {
	r.mu.Lock()
	defer r.mu.Unlock()

	byUser := make(map[string]*domain.RosterEntry)
	for _, m := range r.members[roomID] {
		e, ok := byUser[m.UserID]
		if !ok {
			byUser[m.UserID] = &domain.RosterEntry{
				UserProfile:  m.Profile,
				JoinedAt:     m.JoinedAt,
				Contribution: m.ContributionValue,
			}
			continue
		}
		e.Contribution += m.ContributionValue
		if m.JoinedAt.After(e.JoinedAt) {
			e.UserProfile = m.Profile
			e.JoinedAt = m.JoinedAt
		}
	}

	roster := make([]domain.RosterEntry, 0, len(byUser))
	for _, e := range byUser {
		roster = append(roster, *e)
	}
	sort.Slice(roster, func(i, j int) bool {
		if roster[i].Contribution != roster[j].Contribution {
			return roster[i].Contribution > roster[j].Contribution
		}
		if !roster[i].JoinedAt.Equal(roster[j].JoinedAt) {
			return roster[i].JoinedAt.Before(roster[j].JoinedAt)
		}
		return roster[i].ID < roster[j].ID
	})
	return roster
}

// RecordContribution credits gift value to the room, to its running
// session and to the sender's most recent membership.
func (r *Registry) RecordContribution(ctx context.Context, roomID, userID string, value int64) error {
	if value <= 0 {
		return nil
	}
	if err := r.load(ctx, roomID); err != nil {
		return err
	}
	sctx, cancel := bound(ctx)
	err := r.rooms.AddCoins(sctx, roomID, value)
	cancel()
	if err != nil {
		return err
	}

	flush := func() {}
	r.mu.Lock()
	r.known[roomID].Coins += value

	var latest *member
	for _, m := range r.members[roomID] {
		if m.UserID == userID && (latest == nil || m.JoinedAt.After(latest.JoinedAt)) {
			latest = m
		}
	}
	if latest != nil {
		latest.ContributionValue += value
	}

	if lr, ok := r.live[roomID]; ok {
		lr.room.Coins += value
		lr.state.Coins += value
		appendEvent(lr.state, domain.SessionEvent{
			Kind:   domain.SessionEventGift,
			UserID: userID,
			Value:  value,
			At:     time.Now(),
		})
		flush = r.snapshotLocked(ctx, lr)
	}
	r.mu.Unlock()

	flush()
	return nil
}

// RecordFollower counts a follower gained during the broadcast.
func (r *Registry) RecordFollower(ctx context.Context, roomID, followerID string) {
	r.mu.Lock()
	lr, ok := r.live[roomID]
	if !ok {
		r.mu.Unlock()
		return
	}
	lr.state.Followers++
	lr.state.Fans++
	appendEvent(lr.state, domain.SessionEvent{
		Kind:   domain.SessionEventFollow,
		UserID: followerID,
		At:     time.Now(),
	})
	flush := r.snapshotLocked(ctx, lr)
	r.mu.Unlock()

	flush()
}

func appendEvent(s *domain.LiveSessionState, ev domain.SessionEvent) {
	s.Events = append(s.Events, ev)
	if over := len(s.Events) - maxSessionEvents; over > 0 {
		s.Events = append(s.Events[:0:0], s.Events[over:]...)
	}
}

// SetToggle changes the host switches of a live room.
func (r *Registry) SetToggle(ctx context.Context, roomID string, patch domain.TogglesPatch) (*domain.LiveSessionState, error) {
	if err := r.load(ctx, roomID); err != nil {
		return nil, err
	}
	r.mu.Lock()
	lr, ok := r.live[roomID]
	if !ok {
		r.mu.Unlock()
		return nil, domain.ErrRoomNotLive
	}
	patch.Apply(&lr.state.Toggles)
	flush := r.snapshotLocked(ctx, lr)
	state := lr.state.Clone()
	r.mu.Unlock()

	flush()
	r.notifier.Broadcast(ctx, roomID, EventStreamToggles, state.Toggles)
	return state, nil
}

// Session returns the running state of a room. An idle room reports zero
// counters with the creation time as start time.
func (r *Registry) Session(ctx context.Context, roomID string) (*domain.LiveSessionState, error) {
	if err := r.load(ctx, roomID); err != nil {
		return nil, err
	}
	r.mu.Lock()
	if lr, ok := r.live[roomID]; ok {
		state := lr.state.Clone()
		r.mu.Unlock()
		return state, nil
	}
	createdAt := r.known[roomID].CreatedAt
	r.mu.Unlock()

	// Another instance may own the broadcast.
	if r.cache != nil {
		sctx, cancel := bound(ctx)
		state, err := r.cache.GetSession(sctx, roomID)
		cancel()
		if err == nil {
			return state, nil
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			l := log.Ctx(ctx)
			l.Warn().Err(err).Str(log.FieldRoomID, roomID).Msg("failed to read cached session")
		}
	}

	return &domain.LiveSessionState{
		RoomID:    roomID,
		Events:    []domain.SessionEvent{},
		StartTime: createdAt,
	}, nil
}

// IsLive reports whether this instance runs the room's broadcast.
func (r *Registry) IsLive(roomID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.live[roomID]
	return ok
}
