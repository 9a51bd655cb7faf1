package chat

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/Tyrowin/gochat/internal/auth"
	"github.com/Tyrowin/gochat/internal/auth/mocks"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestCore_Join_OrderedSnapshotDelivery(t *testing.T) {
	req := require.New(t)
	core, rec := newTestCore(t, DefaultConfig())

	join(t, core, "a", "alice", "Alice")
	req.Equal([]EventType{EventUsersOnline, EventAvailableRooms, EventMessageHistory}, rec.types("a"))

	join(t, core, "b", "bob", "Bob")
	req.Equal([]EventType{EventUsersOnline, EventAvailableRooms, EventMessageHistory}, rec.types("b"))
	req.Equal([]EventType{
		EventUsersOnline, EventAvailableRooms, EventMessageHistory,
		EventUserJoined, EventUsersOnline,
	}, rec.types("a"))

	rooms := rec.ofType("b", EventAvailableRooms)[0].Payload.([]string)
	req.Equal([]string{"general", "random", "help"}, rooms)
	online := rec.ofType("b", EventUsersOnline)[0].Payload.([]Presence)
	req.Len(online, 2)
}

func TestCore_Join_RejectsMissingIdentity(t *testing.T) {
	req := require.New(t)
	core, rec := newTestCore(t, DefaultConfig())

	_, err := core.Join(context.Background(), "a", JoinRequest{DisplayName: "Alice"})
	req.ErrorIs(err, ErrValidation)
	req.Empty(rec.of("a"))
	req.Empty(core.OnlineUsers())
	_, member := core.rooms.CurrentRoom("a")
	req.False(member)
}

func TestCore_Join_AcceptsFreeFormEmail(t *testing.T) {
	req := require.New(t)
	core, rec := newTestCore(t, DefaultConfig())

	p, err := core.Join(context.Background(), "a", JoinRequest{DisplayName: "Alice", Identity: "alice", Email: "alice-at-home"})
	req.NoError(err)
	req.Equal("alice-at-home", p.Email)
	req.Equal([]EventType{EventUsersOnline, EventAvailableRooms, EventMessageHistory}, rec.types("a"))
}

func TestCore_Scenario_HistoryVisibleToLaterJoiner(t *testing.T) {
	req := require.New(t)
	core, rec := newTestCore(t, DefaultConfig())

	join(t, core, "a", "alice", "Alice")
	history := rec.ofType("a", EventMessageHistory)[0].Payload.(HistoryWindow)
	req.Empty(history.Messages)

	_, err := core.SendRoomMessage("a", RoomMessageRequest{Content: "  hi  "})
	req.NoError(err)

	join(t, core, "b", "bob", "Bob")
	history = rec.ofType("b", EventMessageHistory)[0].Payload.(HistoryWindow)
	req.Equal("general", history.RoomID)
	req.Len(history.Messages, 1)
	req.Equal("hi", history.Messages[0].Content)
	req.Equal(ConnID("a"), history.Messages[0].SenderID)
	req.Equal("Alice", history.Messages[0].SenderName)
}

func TestCore_SendRoomMessage_DeliveredToWholeRoom(t *testing.T) {
	req := require.New(t)
	core, rec := newTestCore(t, DefaultConfig())
	join(t, core, "a", "alice", "Alice")
	join(t, core, "b", "bob", "Bob")
	join(t, core, "c", "carol", "Carol")
	req.NoError(core.SwitchRoom("c", SwitchRoomRequest{Room: "random"}))
	rec.reset()

	m, err := core.SendRoomMessage("a", RoomMessageRequest{Content: "hello"})
	req.NoError(err)

	req.Len(rec.ofType("a", EventRoomMessage), 1)
	req.Len(rec.ofType("b", EventRoomMessage), 1)
	req.Empty(rec.ofType("c", EventRoomMessage))
	req.Equal(m.ID, rec.ofType("b", EventRoomMessage)[0].Payload.(Message).ID)
}

func TestCore_SendRoomMessage_Rejections(t *testing.T) {
	req := require.New(t)
	core, rec := newTestCore(t, DefaultConfig())
	join(t, core, "a", "alice", "Alice")
	rec.reset()

	_, err := core.SendRoomMessage("a", RoomMessageRequest{Content: "   "})
	req.ErrorIs(err, ErrValidation)

	_, err = core.SendRoomMessage("ghost", RoomMessageRequest{Content: "boo"})
	req.ErrorIs(err, ErrNotFound)

	_, err = core.SendRoomMessage("a", RoomMessageRequest{Content: "hi", RoomID: "nowhere"})
	req.ErrorIs(err, ErrNotFound)

	_, err = core.SendRoomMessage("a", RoomMessageRequest{Content: "hi", RoomID: "random"})
	req.ErrorIs(err, ErrNotFound)

	req.Empty(rec.of("a"))
	history, err := core.History("general", 0)
	req.NoError(err)
	req.Empty(history)
}

func TestCore_Scenario_PrivateMessageEchoedToBothSides(t *testing.T) {
	req := require.New(t)
	core, rec := newTestCore(t, DefaultConfig())
	join(t, core, "a", "alice", "Alice")
	join(t, core, "b", "bob", "Bob")
	join(t, core, "c", "carol", "Carol")
	rec.reset()

	m, err := core.SendPrivateMessage("a", PrivateMessageRequest{Content: "hey", RecipientID: "b"})
	req.NoError(err)

	fromA := rec.ofType("a", EventPrivateMessage)
	fromB := rec.ofType("b", EventPrivateMessage)
	req.Len(fromA, 1)
	req.Len(fromB, 1)
	req.Equal(m.ID, fromA[0].Payload.(Message).ID)
	req.Equal(m.ID, fromB[0].Payload.(Message).ID)
	req.Empty(rec.of("c"))

	req.Equal(Identity("bob"), m.RecipientIdentity)
	req.Len(core.PrivateHistory("bob", "alice", 0), 1)
}

func TestCore_PrivateMessage_SurvivesReconnect(t *testing.T) {
	req := require.New(t)
	core, rec := newTestCore(t, DefaultConfig())
	join(t, core, "a1", "alice", "Alice")
	join(t, core, "b1", "bob", "Bob")

	_, err := core.SendPrivateMessage("a1", PrivateMessageRequest{Content: "first", RecipientID: "b1"})
	req.NoError(err)

	core.Disconnect("b1")
	join(t, core, "b2", "bob", "Bob")
	rec.reset()

	req.NoError(core.LoadPrivateHistory("b2", PrivateHistoryRequest{Identity: "alice"}))
	window := rec.ofType("b2", EventPrivateHistory)[0].Payload.(HistoryWindow)
	req.Equal(Identity("alice"), window.Peer)
	req.Len(window.Messages, 1)
	req.Equal("first", window.Messages[0].Content)

	_, err = core.SendPrivateMessage("a1", PrivateMessageRequest{Content: "second", RecipientIdentity: "bob"})
	req.NoError(err)
	req.Len(rec.ofType("b2", EventPrivateMessage), 1)
}

func TestCore_Scenario_PrivateMessageToOfflineIdentity(t *testing.T) {
	req := require.New(t)
	core, rec := newTestCore(t, DefaultConfig())
	join(t, core, "a", "alice", "Alice")
	rec.reset()

	m, err := core.SendPrivateMessage("a", PrivateMessageRequest{Content: "are you there?", RecipientIdentity: "bob"})
	req.NoError(err)
	req.Empty(m.RecipientID)
	req.Empty(rec.of("a"))

	join(t, core, "b", "bob", "Bob")
	stored := core.PrivateHistory("alice", "bob", 0)
	req.Len(stored, 1)
	req.Equal(m.ID, stored[0].ID)
}

func TestCore_PrivateMessage_UnknownRecipientConnection(t *testing.T) {
	req := require.New(t)
	core, rec := newTestCore(t, DefaultConfig())
	join(t, core, "a", "alice", "Alice")
	rec.reset()

	_, err := core.SendPrivateMessage("a", PrivateMessageRequest{Content: "hey", RecipientID: "gone"})
	req.ErrorIs(err, ErrNotFound)
	_, err = core.SendPrivateMessage("a", PrivateMessageRequest{Content: "hey"})
	req.ErrorIs(err, ErrValidation)

	req.Empty(rec.of("a"))
	req.Zero(core.Stats().PrivateThreads)
}

func TestCore_Scenario_TypingStopsBeforeMessage(t *testing.T) {
	req := require.New(t)
	core, rec := newTestCore(t, DefaultConfig())
	join(t, core, "a", "alice", "Alice")
	join(t, core, "b", "bob", "Bob")
	rec.reset()

	req.NoError(core.SetTyping("a", TypingRequest{RoomID: "general"}, true))
	req.Equal([]EventType{EventUserTyping}, rec.types("b"))
	req.Empty(rec.of("a"))
	notice := rec.of("b")[0].Payload.(TypingNotice)
	req.Equal(ConnID("a"), notice.UserID)
	req.Equal("Alice", notice.Username)

	_, err := core.SendRoomMessage("a", RoomMessageRequest{Content: "done typing"})
	req.NoError(err)
	req.Equal([]EventType{EventUserTyping, EventUserStoppedTyping, EventRoomMessage}, rec.types("b"))

	typing, err := core.TypingIn("general")
	req.NoError(err)
	req.Empty(typing)
}

func TestCore_Typing_RepeatedStartEmitsOnce(t *testing.T) {
	req := require.New(t)
	core, rec := newTestCore(t, DefaultConfig())
	join(t, core, "a", "alice", "Alice")
	join(t, core, "b", "bob", "Bob")
	rec.reset()

	req.NoError(core.SetTyping("a", TypingRequest{}, true))
	req.NoError(core.SetTyping("a", TypingRequest{}, true))
	req.NoError(core.SetTyping("a", TypingRequest{}, false))
	req.NoError(core.SetTyping("a", TypingRequest{}, false))

	req.Equal([]EventType{EventUserTyping, EventUserStoppedTyping}, rec.types("b"))
	req.ErrorIs(core.SetTyping("a", TypingRequest{RoomID: "random"}, true), ErrNotFound)
}

func TestCore_TypingIn_ResolvesNamesAtReadTime(t *testing.T) {
	req := require.New(t)
	core, _ := newTestCore(t, DefaultConfig())
	join(t, core, "a", "alice", "Alice")
	req.NoError(core.SetTyping("a", TypingRequest{}, true))

	join(t, core, "a", "alice", "Alice Cooper")

	typing, err := core.TypingIn("general")
	req.NoError(err)
	req.Len(typing, 1)
	req.Equal("Alice Cooper", typing[0].DisplayName)
}

func TestCore_SwitchRoom(t *testing.T) {
	req := require.New(t)
	core, rec := newTestCore(t, DefaultConfig())
	join(t, core, "a", "alice", "Alice")
	join(t, core, "b", "bob", "Bob")
	req.NoError(core.SetTyping("a", TypingRequest{}, true))
	_, err := core.SendRoomMessage("b", RoomMessageRequest{Content: "general talk"})
	req.NoError(err)
	rec.reset()

	req.NoError(core.SwitchRoom("a", SwitchRoomRequest{Room: "random"}))
	req.Equal([]EventType{EventMessageHistory}, rec.types("a"))
	req.Equal([]EventType{EventUserStoppedTyping}, rec.types("b"))
	req.Equal([]ConnID{"b"}, core.rooms.MembersOf("general"))

	rec.reset()
	req.NoError(core.SwitchRoom("a", SwitchRoomRequest{Room: "random"}))
	req.Equal([]EventType{EventMessageHistory}, rec.types("a"), "rejoining the current room resends history")

	rec.reset()
	req.NoError(core.SwitchRoom("a", SwitchRoomRequest{Room: "gophers"}))
	req.Equal([]EventType{EventAvailableRooms, EventMessageHistory}, rec.types("a"))
	req.Equal([]EventType{EventAvailableRooms}, rec.types("b"))
	req.Equal([]string{"general", "random", "help", "gophers"}, core.Rooms())

	req.ErrorIs(core.SwitchRoom("a", SwitchRoomRequest{Room: " "}), ErrValidation)
	req.ErrorIs(core.SwitchRoom("ghost", SwitchRoomRequest{Room: "help"}), ErrNotFound)
}

func TestCore_MarkRead_RoomReceipts(t *testing.T) {
	req := require.New(t)
	core, rec := newTestCore(t, DefaultConfig())
	join(t, core, "a", "alice", "Alice")
	join(t, core, "b", "bob", "Bob")
	join(t, core, "c", "carol", "Carol")
	m1, err := core.SendRoomMessage("a", RoomMessageRequest{Content: "one"})
	req.NoError(err)
	m2, err := core.SendRoomMessage("c", RoomMessageRequest{Content: "two"})
	req.NoError(err)
	rec.reset()

	changed, err := core.MarkRead("b", MarkReadRequest{ScopeID: "general", MessageIDs: []string{m1.ID, m2.ID, "missing"}})
	req.NoError(err)
	req.Len(changed, 2)

	// a: direct receipt for m1 and the room broadcast.
	aReads := rec.ofType("a", EventMessageRead)
	req.Len(aReads, 2)
	req.Equal([]string{m1.ID}, aReads[0].Payload.(ReadReceipt).MessageIDs)
	req.Equal([]string{m1.ID, m2.ID}, aReads[1].Payload.(ReadReceipt).MessageIDs)
	req.Empty(rec.of("b"))

	rec.reset()
	changed, err = core.MarkRead("b", MarkReadRequest{ScopeID: "general", MessageIDs: []string{m1.ID, m2.ID}})
	req.NoError(err)
	req.Empty(changed)
	req.Empty(rec.of("a"))
	req.Empty(rec.of("c"))

	history, err := core.History("general", 0)
	req.NoError(err)
	req.Equal([]Identity{"bob"}, history[0].ReadBy)
	req.True(history[0].Read)
}

func TestCore_MarkRead_PrivateNotifiesSenderOnly(t *testing.T) {
	req := require.New(t)
	core, rec := newTestCore(t, DefaultConfig())
	join(t, core, "a", "alice", "Alice")
	join(t, core, "b", "bob", "Bob")
	join(t, core, "c", "carol", "Carol")
	m, err := core.SendPrivateMessage("a", PrivateMessageRequest{Content: "secret", RecipientID: "b"})
	req.NoError(err)
	rec.reset()

	changed, err := core.MarkRead("b", MarkReadRequest{ScopeID: PrivateScopePrefix + "alice", MessageIDs: []string{m.ID}})
	req.NoError(err)
	req.Len(changed, 1)

	reads := rec.ofType("a", EventMessageRead)
	req.Len(reads, 1)
	receipt := reads[0].Payload.(ReadReceipt)
	req.Equal([]string{m.ID}, receipt.MessageIDs)
	req.Equal(Identity("bob"), receipt.ReaderIdentity)
	req.Empty(rec.of("b"))
	req.Empty(rec.of("c"))
}

func TestCore_MarkRead_Rejections(t *testing.T) {
	req := require.New(t)
	core, _ := newTestCore(t, DefaultConfig())
	join(t, core, "a", "alice", "Alice")

	_, err := core.MarkRead("a", MarkReadRequest{ScopeID: "general"})
	req.ErrorIs(err, ErrValidation)
	_, err = core.MarkRead("a", MarkReadRequest{MessageIDs: []string{"x"}})
	req.ErrorIs(err, ErrValidation)
	_, err = core.MarkRead("a", MarkReadRequest{ScopeID: "nowhere", MessageIDs: []string{"x"}})
	req.ErrorIs(err, ErrNotFound)
	_, err = core.MarkRead("ghost", MarkReadRequest{ScopeID: "general", MessageIDs: []string{"x"}})
	req.ErrorIs(err, ErrNotFound)
	_, err = core.MarkRead("a", MarkReadRequest{ScopeID: PrivateScopePrefix, MessageIDs: []string{"x"}})
	req.ErrorIs(err, ErrValidation)
}

func TestCore_MarkRead_RoomRequiresMembership(t *testing.T) {
	req := require.New(t)
	core, rec := newTestCore(t, DefaultConfig())
	join(t, core, "a", "alice", "Alice")
	join(t, core, "b", "bob", "Bob")
	join(t, core, "c", "carol", "Carol")
	m, err := core.SendRoomMessage("a", RoomMessageRequest{Content: "general only"})
	req.NoError(err)
	req.NoError(core.SwitchRoom("c", SwitchRoomRequest{Room: "random"}))
	rec.reset()

	changed, err := core.MarkRead("c", MarkReadRequest{ScopeID: "general", MessageIDs: []string{m.ID}})
	req.ErrorIs(err, ErrNotFound)
	req.Empty(changed)
	req.Empty(rec.of("a"))
	req.Empty(rec.of("b"))
	req.Empty(rec.of("c"))

	history, err := core.History("general", 0)
	req.NoError(err)
	req.False(history[0].Read)
	req.Empty(history[0].ReadBy)
}

func TestCore_Disconnect(t *testing.T) {
	req := require.New(t)
	core, rec := newTestCore(t, DefaultConfig())
	join(t, core, "a", "alice", "Alice")
	join(t, core, "b", "bob", "Bob")
	_, err := core.SendRoomMessage("a", RoomMessageRequest{Content: "bye"})
	req.NoError(err)
	req.NoError(core.SetTyping("a", TypingRequest{}, true))
	rec.reset()

	p, ok := core.Disconnect("a")
	req.True(ok)
	req.Equal(Identity("alice"), p.Identity)
	req.Equal([]EventType{EventUserStoppedTyping, EventUserLeft, EventUsersOnline}, rec.types("b"))
	req.Empty(rec.of("a"))

	online := rec.ofType("b", EventUsersOnline)[0].Payload.([]Presence)
	req.Len(online, 1)
	req.Equal([]ConnID{"b"}, core.rooms.MembersOf("general"))

	history, err := core.History("general", 0)
	req.NoError(err)
	req.Equal("Alice", history[0].SenderName)

	_, ok = core.Disconnect("a")
	req.False(ok)
}

func TestCore_Join_VerifiedTokenOverridesIdentity(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	verifier := mocks.NewMockVerifier(ctrl)

	core, _ := newTestCore(t, DefaultConfig())
	core.verifier = verifier

	verifier.EXPECT().Verify(gomock.Any(), "good").Return(auth.Identity{Subject: "user_123", Name: "Alice Verified"}, nil)
	verifier.EXPECT().Verify(gomock.Any(), "bad").Return(auth.Identity{}, errors.New("signature is invalid"))

	p, err := core.Join(context.Background(), "a", JoinRequest{DisplayName: "alice", Identity: "claimed", Token: "good"})
	req.NoError(err)
	req.True(p.Authenticated)
	req.Equal(Identity("user_123"), p.Identity)
	req.Equal("Alice Verified", p.DisplayName)

	p, err = core.Join(context.Background(), "b", JoinRequest{DisplayName: "Bob", Identity: "bob", Token: "bad"})
	req.NoError(err)
	req.False(p.Authenticated)
	req.Equal(Identity("bob"), p.Identity)
}

func TestCore_HistoryCapAndWindow(t *testing.T) {
	req := require.New(t)
	core, rec := newTestCore(t, Config{HistoryCap: 100, HistoryWindow: 50})
	join(t, core, "a", "alice", "Alice")

	for i := 1; i <= 101; i++ {
		_, err := core.SendRoomMessage("a", RoomMessageRequest{Content: fmt.Sprintf("m%d", i)})
		req.NoError(err)
	}

	all, err := core.History("general", 100)
	req.NoError(err)
	req.Len(all, 100)
	req.Equal("m2", all[0].Content)
	req.Equal("m101", all[99].Content)

	rec.reset()
	req.NoError(core.SwitchRoom("a", SwitchRoomRequest{Room: "general"}))
	window := rec.ofType("a", EventMessageHistory)[0].Payload.(HistoryWindow)
	req.Len(window.Messages, 50)
	req.Equal("m52", window.Messages[0].Content)
}

func TestCore_ConcurrentHandlers_KeepSingleRoomMembership(t *testing.T) {
	req := require.New(t)
	core, _ := newTestCore(t, DefaultConfig())

	const clients = 8
	for i := 0; i < clients; i++ {
		join(t, core, ConnID(fmt.Sprintf("c%d", i)), Identity(fmt.Sprintf("u%d", i)), fmt.Sprintf("User %d", i))
	}

	rooms := []string{"general", "random", "help"}
	var wg sync.WaitGroup
	for i := 0; i < clients; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			conn := ConnID(fmt.Sprintf("c%d", i))
			for j := 0; j < 50; j++ {
				_ = core.SwitchRoom(conn, SwitchRoomRequest{Room: rooms[(i+j)%len(rooms)]})
				_, _ = core.SendRoomMessage(conn, RoomMessageRequest{Content: "ping"})
				_ = core.SetTyping(conn, TypingRequest{}, j%2 == 0)
			}
		}(i)
	}
	wg.Wait()

	core.mu.Lock()
	defer core.mu.Unlock()
	seen := map[ConnID]int{}
	for _, room := range core.rooms.Rooms() {
		for _, member := range core.rooms.MembersOf(room) {
			seen[member]++
		}
		req.LessOrEqual(len(core.messages.HistoryOf(room, -1)), 100)
	}
	req.Len(seen, clients)
	for conn, count := range seen {
		req.Equal(1, count, "connection %s", conn)
	}
}

func TestIsClientError(t *testing.T) {
	req := require.New(t)
	req.True(IsClientError(fmt.Errorf("%w: content is required", ErrValidation)))
	req.True(IsClientError(fmt.Errorf("%w: room %q", ErrNotFound, "x")))
	req.True(IsClientError(ErrAuthentication))
	req.False(IsClientError(errors.New("disk on fire")))
	req.False(IsClientError(nil))
}
