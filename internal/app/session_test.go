package app

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pr-poehali-dev/video-viewing-app/internal/domain"
)

// seqIDGen yields a deterministic id sequence.
type seqIDGen struct {
	mu    sync.Mutex
	rooms int
	codes int
}

func (g *seqIDGen) RoomID() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rooms++
	return fmt.Sprintf("room_%04d", g.rooms)
}

func (g *seqIDGen) InviteCode() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.codes++
	return fmt.Sprintf("CODE%04d", g.codes)
}

func newTestController() *SessionController {
	return NewSessionController(NewRoomRegistry(), &seqIDGen{}, DefaultSessionDefaults())
}

// liveRoom reaches past the snapshot boundary for test setup.
func liveRoom(t *testing.T, c *SessionController, id domain.RoomID) *domain.Room {
	t.Helper()
	room, ok := c.registry.Room(id)
	require.True(t, ok)
	return room
}

func countHosts(room *domain.Room) int {
	n := 0
	for _, m := range room.Members {
		if m.Role == domain.RoleHost {
			n++
		}
	}
	return n
}

func TestCreateRoomEnrollsHost(t *testing.T) {
	c := newTestController()

	room := c.CreateRoom("u1", "Alice", CreateRoomOptions{Name: "movie night"})

	require.Len(t, room.Members, 1)
	host := room.Members[0]
	assert.Equal(t, domain.UserID("u1"), host.ID)
	assert.Equal(t, "Alice", host.Name)
	assert.Equal(t, domain.RoleHost, host.Role)
	assert.True(t, host.IsOnline)
	assert.False(t, host.VoiceEnabled)
	assert.False(t, host.IsMuted)
	assert.Equal(t, domain.UserID("u1"), room.HostID)
	assert.Equal(t, 1, countHosts(room))
}

func TestCreateRoomDefaults(t *testing.T) {
	c := newTestController()

	room := c.CreateRoom("u1", "Alice", CreateRoomOptions{})

	assert.Equal(t, 50, room.MaxUsers)
	assert.False(t, room.Settings.AllowGuestControl)
	assert.False(t, room.Settings.RequireApproval)
	assert.True(t, room.Settings.ChatEnabled)
	assert.True(t, room.Settings.VoiceEnabled)
	assert.Equal(t, float64(2), room.Settings.SyncTolerance)
	assert.False(t, room.IsPlaying)
	assert.Empty(t, room.InviteCode)
}

func TestCreatePrivateRoomMintsInvite(t *testing.T) {
	c := newTestController()

	room := c.CreateRoom("u1", "Alice", CreateRoomOptions{Name: "secret", IsPrivate: true})

	require.NotEmpty(t, room.InviteCode)
	inv, ok := c.registry.Invite(room.InviteCode)
	require.True(t, ok)
	assert.Equal(t, room.ID, inv.RoomID)
	assert.Equal(t, domain.UserID("u1"), inv.CreatedBy)
	require.NotNil(t, inv.ExpiresAt)
	assert.WithinDuration(t, time.Now().Add(24*time.Hour), *inv.ExpiresAt, time.Minute)
}

func TestJoinUnknownKey(t *testing.T) {
	c := newTestController()

	_, err := c.JoinRoom("u2", "Bob", "nope")

	assert.ErrorIs(t, err, domain.ErrRoomNotFound)
}

func TestJoinByRoomID(t *testing.T) {
	c := newTestController()
	room := c.CreateRoom("u1", "Alice", CreateRoomOptions{})

	got, err := c.JoinRoom("u2", "Bob", string(room.ID))

	require.NoError(t, err)
	require.Len(t, got.Members, 2)
	joined := got.Member("u2")
	require.NotNil(t, joined)
	assert.Equal(t, domain.RoleMember, joined.Role)
	assert.True(t, joined.IsOnline)
	assert.NotEmpty(t, joined.Avatar)
	assert.Equal(t, 1, countHosts(got))
}

func TestJoinCapacity(t *testing.T) {
	c := newTestController()
	room := c.CreateRoom("u1", "Alice", CreateRoomOptions{MaxUsers: 2})

	_, err := c.JoinRoom("u2", "Bob", string(room.ID))
	require.NoError(t, err)

	_, err = c.JoinRoom("u3", "Carol", string(room.ID))
	assert.ErrorIs(t, err, domain.ErrRoomFull)
}

func TestRejoinNeverFailsOnCapacity(t *testing.T) {
	c := newTestController()
	room := c.CreateRoom("u1", "Alice", CreateRoomOptions{MaxUsers: 2})
	_, err := c.JoinRoom("u2", "Bob", string(room.ID))
	require.NoError(t, err)

	// Room is at capacity; an existing member re-joins fine.
	got, err := c.JoinRoom("u2", "Bob", string(room.ID))
	require.NoError(t, err)
	assert.Len(t, got.Members, 2)
	assert.True(t, got.Member("u2").IsOnline)
}

func TestJoinByInviteCode(t *testing.T) {
	c := newTestController()
	room := c.CreateRoom("u1", "Alice", CreateRoomOptions{IsPrivate: true})

	got, err := c.JoinRoom("u2", "Bob", string(room.InviteCode))

	require.NoError(t, err)
	assert.Equal(t, room.ID, got.ID)
	inv, _ := c.registry.Invite(room.InviteCode)
	assert.Equal(t, 1, inv.CurrentUses)
}

func TestInviteMaxUses(t *testing.T) {
	c := newTestController()
	room := c.CreateRoom("u1", "Alice", CreateRoomOptions{})
	inv, err := c.GenerateInvite(room.ID, "u1", 0, 2)
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		_, err := c.JoinRoom(domain.UserID(fmt.Sprintf("guest%d", i)), "Guest", string(inv.Code))
		require.NoError(t, err, "use %d", i+1)
	}

	_, err = c.JoinRoom("late", "Late", string(inv.Code))
	assert.ErrorIs(t, err, domain.ErrInviteInvalid)
	assert.Equal(t, 2, inv.CurrentUses)
}

func TestInviteRejoinDoesNotBurnUse(t *testing.T) {
	c := newTestController()
	room := c.CreateRoom("u1", "Alice", CreateRoomOptions{})
	inv, err := c.GenerateInvite(room.ID, "u1", 0, 1)
	require.NoError(t, err)

	_, err = c.JoinRoom("u2", "Bob", string(inv.Code))
	require.NoError(t, err)
	assert.Equal(t, 1, inv.CurrentUses)

	_, err = c.JoinRoom("u2", "Bob", string(inv.Code))
	require.NoError(t, err)
	assert.Equal(t, 1, inv.CurrentUses)
}

func TestExpiredInviteAlwaysFails(t *testing.T) {
	c := newTestController()
	room := c.CreateRoom("u1", "Alice", CreateRoomOptions{})
	inv, err := c.GenerateInvite(room.ID, "u1", time.Hour, 0)
	require.NoError(t, err)

	c.now = func() time.Time { return time.Now().Add(2 * time.Hour) }

	_, err = c.JoinRoom("u2", "Bob", string(inv.Code))
	assert.ErrorIs(t, err, domain.ErrInviteInvalid)
	assert.Equal(t, 0, inv.CurrentUses)
}

func TestLeaveUnknown(t *testing.T) {
	c := newTestController()
	room := c.CreateRoom("u1", "Alice", CreateRoomOptions{})

	assert.False(t, c.LeaveRoom("u1", "room_none"))
	assert.False(t, c.LeaveRoom("stranger", room.ID))
}

func TestLeaveMemberKeepsHost(t *testing.T) {
	c := newTestController()
	room := c.CreateRoom("u1", "Alice", CreateRoomOptions{})
	_, err := c.JoinRoom("u2", "Bob", string(room.ID))
	require.NoError(t, err)

	require.True(t, c.LeaveRoom("u2", room.ID))

	got, ok := c.Room(room.ID)
	require.True(t, ok)
	assert.Len(t, got.Members, 1)
	assert.Equal(t, domain.UserID("u1"), got.HostID)
	assert.Empty(t, c.UserRooms("u2"))
}

func TestHostLeavePromotesEarliestOnline(t *testing.T) {
	c := newTestController()
	room := c.CreateRoom("u1", "Alice", CreateRoomOptions{})
	_, err := c.JoinRoom("u2", "Bob", string(room.ID))
	require.NoError(t, err)
	_, err = c.JoinRoom("u3", "Carol", string(room.ID))
	require.NoError(t, err)

	require.True(t, c.LeaveRoom("u1", room.ID))

	got, ok := c.Room(room.ID)
	require.True(t, ok)
	assert.Equal(t, domain.UserID("u2"), got.HostID)
	assert.Equal(t, "Bob", got.HostName)
	assert.Equal(t, domain.RoleHost, got.Member("u2").Role)
	assert.Equal(t, 1, countHosts(got))
	assert.Len(t, got.Members, 2)
}

func TestHostLeaveSkipsOfflineMembers(t *testing.T) {
	c := newTestController()
	room := c.CreateRoom("u1", "Alice", CreateRoomOptions{})
	_, err := c.JoinRoom("u2", "Bob", string(room.ID))
	require.NoError(t, err)
	_, err = c.JoinRoom("u3", "Carol", string(room.ID))
	require.NoError(t, err)
	liveRoom(t, c, room.ID).Member("u2").IsOnline = false

	require.True(t, c.LeaveRoom("u1", room.ID))

	got, _ := c.Room(room.ID)
	assert.Equal(t, domain.UserID("u3"), got.HostID)
}

func TestLastOnlineHostLeaveDeletesRoom(t *testing.T) {
	c := newTestController()
	room := c.CreateRoom("u1", "Alice", CreateRoomOptions{})
	_, err := c.JoinRoom("u2", "Bob", string(room.ID))
	require.NoError(t, err)
	liveRoom(t, c, room.ID).Member("u2").IsOnline = false

	require.True(t, c.LeaveRoom("u1", room.ID))

	_, ok := c.Room(room.ID)
	assert.False(t, ok)
	assert.Empty(t, c.UserRooms("u2"))
}

func TestGuestControlGate(t *testing.T) {
	c := newTestController()
	room := c.CreateRoom("u1", "Alice", CreateRoomOptions{})
	_, err := c.JoinRoom("u2", "Bob", string(room.ID))
	require.NoError(t, err)
	video := &domain.VideoInfo{ID: "abc", Platform: domain.PlatformYouTube}

	err = c.UpdateRoomVideo(room.ID, "u2", video, 0)
	assert.ErrorIs(t, err, domain.ErrControlForbidden)
	err = c.UpdatePlaybackState(room.ID, "u2", true, 10)
	assert.ErrorIs(t, err, domain.ErrControlForbidden)

	liveRoom(t, c, room.ID).Settings.AllowGuestControl = true

	require.NoError(t, c.UpdateRoomVideo(room.ID, "u2", video, 5))
	require.NoError(t, c.UpdatePlaybackState(room.ID, "u2", false, 42))

	got, _ := c.Room(room.ID)
	assert.Equal(t, video, got.CurrentVideo)
	assert.False(t, got.IsPlaying)
	assert.Equal(t, float64(42), got.CurrentTime)
}

func TestUpdateRoomVideoStartsPlayback(t *testing.T) {
	c := newTestController()
	room := c.CreateRoom("u1", "Alice", CreateRoomOptions{})
	video := &domain.VideoInfo{ID: "abc"}

	require.NoError(t, c.UpdateRoomVideo(room.ID, "u1", video, 30))

	got, _ := c.Room(room.ID)
	assert.True(t, got.IsPlaying)
	assert.Equal(t, float64(30), got.CurrentTime)
	assert.Equal(t, video, got.CurrentVideo)
}

func TestUpdateVideoFailsClosed(t *testing.T) {
	c := newTestController()
	room := c.CreateRoom("u1", "Alice", CreateRoomOptions{})
	video := &domain.VideoInfo{ID: "abc"}

	assert.ErrorIs(t, c.UpdateRoomVideo("room_none", "u1", video, 0), domain.ErrRoomNotFound)
	assert.ErrorIs(t, c.UpdateRoomVideo(room.ID, "stranger", video, 0), domain.ErrRoomNotFound)
}

func TestInviteGenerationRequiresManageRole(t *testing.T) {
	c := newTestController()
	room := c.CreateRoom("u1", "Alice", CreateRoomOptions{})
	_, err := c.JoinRoom("u2", "Bob", string(room.ID))
	require.NoError(t, err)
	// Guest control never grants management.
	liveRoom(t, c, room.ID).Settings.AllowGuestControl = true

	_, err = c.GenerateInvite(room.ID, "u2", 0, 0)
	assert.ErrorIs(t, err, domain.ErrManageForbidden)

	liveRoom(t, c, room.ID).Member("u2").Role = domain.RoleModerator
	inv, err := c.GenerateInvite(room.ID, "u2", 0, 0)
	require.NoError(t, err)
	assert.NotEmpty(t, inv.Code)
}

func TestInviteLink(t *testing.T) {
	c := newTestController()
	room := c.CreateRoom("u1", "Alice", CreateRoomOptions{})
	inv, err := c.GenerateInvite(room.ID, "u1", 0, 0)
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:8080/join/"+string(inv.Code), c.InviteLink(inv.Code))
}

func TestPublicRoomsOrderedByMemberCount(t *testing.T) {
	c := newTestController()
	small := c.CreateRoom("h1", "H1", CreateRoomOptions{Name: "small"})
	big := c.CreateRoom("h2", "H2", CreateRoomOptions{Name: "big"})
	priv := c.CreateRoom("h3", "H3", CreateRoomOptions{Name: "hidden", IsPrivate: true})
	for i := 0; i < 3; i++ {
		_, err := c.JoinRoom(domain.UserID(fmt.Sprintf("g%d", i)), "G", string(big.ID))
		require.NoError(t, err)
	}

	rooms := c.PublicRooms(0)

	require.Len(t, rooms, 2)
	assert.Equal(t, big.ID, rooms[0].ID)
	assert.Equal(t, small.ID, rooms[1].ID)
	for _, r := range rooms {
		assert.NotEqual(t, priv.ID, r.ID)
	}

	assert.Len(t, c.PublicRooms(1), 1)
}

func TestUserRooms(t *testing.T) {
	c := newTestController()
	r1 := c.CreateRoom("u1", "Alice", CreateRoomOptions{})
	r2 := c.CreateRoom("u2", "Bob", CreateRoomOptions{})
	_, err := c.JoinRoom("u1", "Alice", string(r2.ID))
	require.NoError(t, err)

	rooms := c.UserRooms("u1")
	ids := []domain.RoomID{rooms[0].ID}
	if len(rooms) > 1 {
		ids = append(ids, rooms[1].ID)
	}
	assert.ElementsMatch(t, []domain.RoomID{r1.ID, r2.ID}, ids)
}

func TestQueriesReturnDetachedCopies(t *testing.T) {
	c := newTestController()
	created := c.CreateRoom("u1", "Alice", CreateRoomOptions{})

	snap, ok := c.Room(created.ID)
	require.True(t, ok)
	_, err := c.JoinRoom("u2", "Bob", string(created.ID))
	require.NoError(t, err)
	require.NoError(t, c.UpdatePlaybackState(created.ID, "u1", true, 7))

	// Copies taken before the mutations do not observe them.
	assert.Len(t, created.Members, 1)
	assert.Len(t, snap.Members, 1)
	assert.False(t, snap.IsPlaying)

	// Writing through a copy never reaches the room.
	snap.Members[0].Role = domain.RoleMember
	snap.IsPlaying = false
	got, _ := c.Room(created.ID)
	assert.Equal(t, domain.RoleHost, got.Member("u1").Role)
	assert.True(t, got.IsPlaying)
	assert.Equal(t, float64(7), got.CurrentTime)
	assert.Len(t, got.Members, 2)
}

func TestConcurrentReadsDuringJoins(t *testing.T) {
	c := newTestController()
	room := c.CreateRoom("u1", "Alice", CreateRoomOptions{})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			_, err := c.JoinRoom(domain.UserID(fmt.Sprintf("g%d", i)), "G", string(room.ID))
			assert.NoError(t, err)
		}(i)
		go func() {
			defer wg.Done()
			if snap, ok := c.Room(room.ID); ok {
				for _, m := range snap.Members {
					_ = m.IsOnline
				}
			}
			_ = c.PublicRooms(0)
			_ = c.UserRooms("u1")
		}()
	}
	wg.Wait()

	got, _ := c.Room(room.ID)
	assert.Len(t, got.Members, 11)
}

func TestConcurrentJoinsRespectCapacity(t *testing.T) {
	c := newTestController()
	room := c.CreateRoom("u1", "Alice", CreateRoomOptions{MaxUsers: 5})

	var wg sync.WaitGroup
	errs := make([]error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = c.JoinRoom(domain.UserID(fmt.Sprintf("g%d", i)), "G", string(room.ID))
		}(i)
	}
	wg.Wait()

	admitted := 0
	for _, err := range errs {
		if err == nil {
			admitted++
		} else {
			assert.ErrorIs(t, err, domain.ErrRoomFull)
		}
	}
	assert.Equal(t, 4, admitted)
	got, _ := c.Room(room.ID)
	assert.Len(t, got.Members, 5)
}

func TestCapacityScenario(t *testing.T) {
	c := newTestController()
	room := c.CreateRoom("host", "Host", CreateRoomOptions{MaxUsers: 2})
	require.Len(t, room.Members, 1)

	second, err := c.JoinRoom("second", "Second", string(room.ID))
	require.NoError(t, err)
	require.Len(t, second.Members, 2)

	_, err = c.JoinRoom("third", "Third", string(room.ID))
	assert.ErrorIs(t, err, domain.ErrRoomFull)
}

func TestSingleUseInviteScenario(t *testing.T) {
	c := newTestController()
	room := c.CreateRoom("host", "Host", CreateRoomOptions{IsPrivate: true})
	inv, err := c.GenerateInvite(room.ID, "host", 0, 1)
	require.NoError(t, err)

	_, err = c.JoinRoom("first", "First", string(inv.Code))
	require.NoError(t, err)
	assert.Equal(t, 1, inv.CurrentUses)

	_, err = c.JoinRoom("second", "Second", string(inv.Code))
	assert.ErrorIs(t, err, domain.ErrInviteInvalid)
}

func TestHostHandoverScenario(t *testing.T) {
	c := newTestController()
	room := c.CreateRoom("host", "Host", CreateRoomOptions{})
	_, err := c.JoinRoom("a", "A", string(room.ID))
	require.NoError(t, err)
	_, err = c.JoinRoom("b", "B", string(room.ID))
	require.NoError(t, err)

	require.True(t, c.LeaveRoom("host", room.ID))

	got, _ := c.Room(room.ID)
	assert.Equal(t, domain.UserID("a"), got.HostID)
}
