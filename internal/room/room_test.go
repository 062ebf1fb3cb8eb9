package room

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/park285/flipflop-server/internal/apperrors"
	"github.com/park285/flipflop-server/internal/game"
	"github.com/park285/flipflop-server/internal/protocol"
)

type frame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type fakeSub struct {
	id string

	mu     sync.Mutex
	frames [][]byte
}

func (f *fakeSub) ClientID() string { return f.id }

func (f *fakeSub) Send(msg []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := make([]byte, len(msg))
	copy(cp, msg)
	f.frames = append(f.frames, cp)
}

func (f *fakeSub) types(t *testing.T) []string {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.frames))
	for _, raw := range f.frames {
		var m frame
		if err := json.Unmarshal(raw, &m); err != nil {
			t.Fatalf("unmarshal frame: %v", err)
		}
		out = append(out, m.Type)
	}
	return out
}

func (f *fakeSub) last(t *testing.T) frame {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.frames) == 0 {
		t.Fatal("no frames received")
	}
	var m frame
	if err := json.Unmarshal(f.frames[len(f.frames)-1], &m); err != nil {
		t.Fatalf("unmarshal frame: %v", err)
	}
	return m
}

func (f *fakeSub) hasType(t *testing.T, want string) bool {
	for _, got := range f.types(t) {
		if got == want {
			return true
		}
	}
	return false
}

func newMultiplayerRoom(t *testing.T) (*Room, *fakeSub, *fakeSub) {
	t.Helper()
	s1 := &fakeSub{id: "c1"}
	r, err := New(Config{ID: "TEST", GameType: game.TypeFlipFlop3x3, GameMode: ModeMultiplayer},
		InitialPlayer{ClientID: "c1", Username: "alice", Sub: s1})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	s2 := &fakeSub{id: "c2"}
	snap, err := r.Enter("c2", s2, "bob")
	if err != nil {
		t.Fatalf("Enter c2: %v", err)
	}
	if snap.IsSpectator {
		t.Fatal("second join should take the black seat, not spectate")
	}
	if !r.Start() {
		t.Fatal("Start: room did not start")
	}
	return r, s1, s2
}

func TestSecondJoinStartsGame(t *testing.T) {
	r, s1, s2 := newMultiplayerRoom(t)

	st := r.State()
	if st.Status != StatusOngoing {
		t.Fatalf("status = %s, want %s", st.Status, StatusOngoing)
	}
	if st.CurrentTurn != game.White {
		t.Fatalf("turn = %s, want white", st.CurrentTurn)
	}
	if len(st.Players) != 2 {
		t.Fatalf("players = %d, want 2", len(st.Players))
	}
	for _, s := range []*fakeSub{s1, s2} {
		if !s.hasType(t, string(protocol.MsgTypeGameStart)) {
			t.Fatalf("%s missed the start event: %v", s.id, s.types(t))
		}
	}
}

func TestThirdJoinSpectates(t *testing.T) {
	r, _, _ := newMultiplayerRoom(t)

	s3 := &fakeSub{id: "c3"}
	snap, err := r.Enter("c3", s3, "carol")
	if err != nil {
		t.Fatalf("Enter c3: %v", err)
	}
	if !snap.IsSpectator {
		t.Fatal("third join should be a spectator")
	}
	if snap.State.Status != StatusOngoing {
		t.Fatalf("snapshot status = %s", snap.State.Status)
	}
}

func TestMoveBroadcastAndTurnChecks(t *testing.T) {
	r, s1, s2 := newMultiplayerRoom(t)

	if err := r.HandleMove("c2", "B1", "B2"); err != apperrors.ErrNotYourTurn {
		t.Fatalf("black moving first: err = %v, want %v", err, apperrors.ErrNotYourTurn)
	}
	if err := r.HandleMove("nobody", "B1", "B2"); err != apperrors.ErrClientNotFound {
		t.Fatalf("stranger moving: err = %v, want %v", err, apperrors.ErrClientNotFound)
	}
	if err := r.HandleMove("c1", "B1", "B2"); err != nil {
		t.Fatalf("HandleMove: %v", err)
	}

	for _, s := range []*fakeSub{s1, s2} {
		msg := s.last(t)
		if msg.Type != string(protocol.MsgTypeMove) {
			t.Fatalf("%s last frame = %s, want move", s.id, msg.Type)
		}
		var p struct {
			PlayerID string `json:"player_id"`
			Color    string `json:"color"`
			Board    string `json:"board"`
			Move     struct {
				From string `json:"from"`
				To   string `json:"to"`
			} `json:"move"`
		}
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			t.Fatalf("payload: %v", err)
		}
		if p.PlayerID != "c1" || p.Color != "white" || p.Move.From != "B1" || p.Move.To != "B2" {
			t.Fatalf("move payload = %+v", p)
		}
		if p.Board != "aaa/oyo/xox2" {
			t.Fatalf("board = %q", p.Board)
		}
	}
}

func TestMoveBroadcastUsesCanonicalNotation(t *testing.T) {
	r, _, s2 := newMultiplayerRoom(t)

	if err := r.HandleMove("c1", " b1", "b2 "); err != nil {
		t.Fatalf("HandleMove: %v", err)
	}
	msg := s2.last(t)
	if msg.Type != string(protocol.MsgTypeMove) {
		t.Fatalf("last frame = %s, want move", msg.Type)
	}
	var p struct {
		Move struct {
			From string `json:"from"`
			To   string `json:"to"`
		} `json:"move"`
	}
	if err := json.Unmarshal(msg.Payload, &p); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if p.Move.From != "B1" || p.Move.To != "B2" {
		t.Fatalf("move = %+v, want B1-B2", p.Move)
	}
}

func TestGoalWinEndsGame(t *testing.T) {
	r, s1, _ := newMultiplayerRoom(t)

	// White lands on black's goal; black's reply does not evict.
	if err := r.HandleMove("c1", "B1", "B3"); err != nil {
		t.Fatalf("B1-B3: %v", err)
	}
	if err := r.HandleMove("c2", "C3", "C2"); err != nil {
		t.Fatalf("C3-C2: %v", err)
	}

	st := r.State()
	if st.Status != StatusEnded {
		t.Fatalf("status = %s, want %s", st.Status, StatusEnded)
	}
	if st.Winner != game.White {
		t.Fatalf("winner = %s, want white", st.Winner)
	}
	msg := s1.last(t)
	if msg.Type != string(protocol.MsgTypeGameEnd) {
		t.Fatalf("last frame = %s, want end", msg.Type)
	}
	var p struct {
		Reason string `json:"reason"`
		Winner string `json:"winner"`
	}
	if err := json.Unmarshal(msg.Payload, &p); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if p.Reason != "normal" || p.Winner != "white" {
		t.Fatalf("end payload = %+v", p)
	}
}

func TestMoveAfterEndRejected(t *testing.T) {
	r, _, _ := newMultiplayerRoom(t)
	if err := r.Forfeit("c2"); err != nil {
		t.Fatalf("Forfeit: %v", err)
	}
	if err := r.HandleMove("c1", "B1", "B2"); err != apperrors.ErrGameEnded {
		t.Fatalf("err = %v, want %v", err, apperrors.ErrGameEnded)
	}
}

func TestClosedRoomRejectsMoves(t *testing.T) {
	r, _, _ := newMultiplayerRoom(t)
	if err := r.Forfeit("c2"); err != nil {
		t.Fatalf("Forfeit: %v", err)
	}
	r.Close("room_expired")
	if err := r.HandleMove("c1", "B1", "B2"); err != apperrors.ErrRoomClosed {
		t.Fatalf("err = %v, want %v", err, apperrors.ErrRoomClosed)
	}
	if err := r.Forfeit("c1"); err != apperrors.ErrRoomClosed {
		t.Fatalf("forfeit in closed room: err = %v, want %v", err, apperrors.ErrRoomClosed)
	}
}

func TestForfeitAwardsOpponent(t *testing.T) {
	var (
		resMu sync.Mutex
		res   *Result
	)
	s1 := &fakeSub{id: "c1"}
	r, err := New(Config{
		ID: "TEST", GameType: game.TypeFlipFlop3x3, GameMode: ModeMultiplayer,
		OnEnd: func(got Result) {
			resMu.Lock()
			defer resMu.Unlock()
			res = &got
		},
	}, InitialPlayer{ClientID: "c1", Username: "alice", Sub: s1})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	s2 := &fakeSub{id: "c2"}
	if _, err := r.Enter("c2", s2, "bob"); err != nil {
		t.Fatalf("Enter: %v", err)
	}
	r.Start()

	if err := r.Forfeit("c1"); err != nil {
		t.Fatalf("Forfeit: %v", err)
	}
	st := r.State()
	if st.Winner != game.Black {
		t.Fatalf("winner = %s, want black", st.Winner)
	}

	deadline := time.Now().Add(time.Second)
	for {
		resMu.Lock()
		got := res
		resMu.Unlock()
		if got != nil {
			if got.Reason != "forfeit" || got.Winner != game.Black || got.WhiteName != "alice" {
				t.Fatalf("result = %+v", got)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("OnEnd never fired")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestChatBroadcastAndHistory(t *testing.T) {
	r, s1, s2 := newMultiplayerRoom(t)

	if err := r.HandleChat("c1", "good luck"); err != nil {
		t.Fatalf("HandleChat: %v", err)
	}
	for _, s := range []*fakeSub{s1, s2} {
		msg := s.last(t)
		if msg.Type != string(protocol.MsgTypeChat) {
			t.Fatalf("%s last frame = %s, want chat", s.id, msg.Type)
		}
	}

	s3 := &fakeSub{id: "c3"}
	snap, err := r.Enter("c3", s3, "carol")
	if err != nil {
		t.Fatalf("Enter c3: %v", err)
	}
	if len(snap.Messages) != 1 || snap.Messages[0].Message != "good luck" || snap.Messages[0].Username != "alice" {
		t.Fatalf("snapshot messages = %+v", snap.Messages)
	}
}

func TestLeaveAndRejoin(t *testing.T) {
	r, _, _ := newMultiplayerRoom(t)

	if closed := r.Leave("c2"); closed {
		t.Fatal("room closed with one player still active")
	}
	st := r.State()
	for _, p := range st.Players {
		if p.ID == "c2" && p.IsActive {
			t.Fatal("c2 still active after leave")
		}
	}

	s2b := &fakeSub{id: "c2"}
	snap, err := r.Enter("c2", s2b, "")
	if err != nil {
		t.Fatalf("rejoin: %v", err)
	}
	if snap.IsSpectator {
		t.Fatal("rejoin should restore the seat")
	}
	st = r.State()
	for _, p := range st.Players {
		if p.ID == "c2" && !p.IsActive {
			t.Fatal("c2 not reactivated")
		}
	}
}

func TestEnterWhileActiveReplacesSubscriber(t *testing.T) {
	r, s1, s2 := newMultiplayerRoom(t)

	s1b := &fakeSub{id: "c1"}
	snap, err := r.Enter("c1", s1b, "")
	if err != nil {
		t.Fatalf("re-enter: %v", err)
	}
	if snap.IsSpectator {
		t.Fatal("re-enter should keep the seat")
	}
	if s2.hasType(t, string(protocol.MsgPlayerRejoined)) {
		t.Fatal("player_rejoined broadcast for a seat that never went away")
	}

	// Frames now reach the fresh socket, not the replaced one.
	before := len(s1.types(t))
	if err := r.HandleChat("c2", "still there?"); err != nil {
		t.Fatalf("HandleChat: %v", err)
	}
	if !s1b.hasType(t, string(protocol.MsgTypeChat)) {
		t.Fatalf("new socket frames = %v, want chat", s1b.types(t))
	}
	if got := len(s1.types(t)); got != before {
		t.Fatalf("replaced socket still receives frames: %d -> %d", before, got)
	}
}

func TestBothPlayersGoneClosesRoom(t *testing.T) {
	r, _, _ := newMultiplayerRoom(t)

	r.Leave("c1")
	if closed := r.Leave("c2"); !closed {
		t.Fatal("room should close when both players are gone")
	}
	if !r.Closed() {
		t.Fatal("Closed() = false")
	}
	if _, err := r.Enter("c3", &fakeSub{id: "c3"}, "carol"); err != apperrors.ErrRoomClosed {
		t.Fatalf("err = %v, want %v", err, apperrors.ErrRoomClosed)
	}
}

func TestAbandonForfeitsRunningGame(t *testing.T) {
	r, _, s2 := newMultiplayerRoom(t)

	r.Leave("c1")
	if closed := r.Abandon("c1"); closed {
		t.Fatal("room closed while opponent still seated")
	}
	st := r.State()
	if st.Status != StatusEnded || st.Winner != game.Black {
		t.Fatalf("state = %+v, want black forfeit win", st)
	}
	if !s2.hasType(t, string(protocol.MsgTypeGameEnd)) {
		t.Fatalf("c2 frames = %v", s2.types(t))
	}
}

func TestRematchHandshake(t *testing.T) {
	r, s1, s2 := newMultiplayerRoom(t)

	if err := r.Rematch("c1"); err != apperrors.ErrGameNotEnded {
		t.Fatalf("rematch mid-game: err = %v, want %v", err, apperrors.ErrGameNotEnded)
	}
	if err := r.CancelRematch("c1"); err != apperrors.ErrGameNotEnded {
		t.Fatalf("cancel mid-game: err = %v, want %v", err, apperrors.ErrGameNotEnded)
	}
	if s2.hasType(t, string(protocol.MsgTypeRematchCancelled)) {
		t.Fatal("rematch_cancelled broadcast for a running game")
	}

	if err := r.Forfeit("c1"); err != nil {
		t.Fatalf("Forfeit: %v", err)
	}
	if err := r.Rematch("c1"); err != nil {
		t.Fatalf("Rematch c1: %v", err)
	}
	if !s2.hasType(t, string(protocol.MsgTypeRematchRequested)) {
		t.Fatalf("c2 missed rematch_requested: %v", s2.types(t))
	}
	if s1.hasType(t, string(protocol.MsgTypeRematchRequested)) {
		t.Fatal("requester got its own rematch_requested echo")
	}

	if err := r.CancelRematch("c1"); err != nil {
		t.Fatalf("CancelRematch: %v", err)
	}
	if !s2.hasType(t, string(protocol.MsgTypeRematchCancelled)) {
		t.Fatalf("c2 missed rematch_cancelled: %v", s2.types(t))
	}

	if err := r.Rematch("c1"); err != nil {
		t.Fatalf("Rematch c1 again: %v", err)
	}
	if err := r.Rematch("c2"); err != nil {
		t.Fatalf("Rematch c2: %v", err)
	}
	st := r.State()
	if st.Status != StatusOngoing {
		t.Fatalf("status = %s, want ongoing after mutual rematch", st.Status)
	}
	if st.Board != "aaa/ooo/xxx1" {
		t.Fatalf("board = %q, want fresh start", st.Board)
	}
	if st.CurrentTurn != game.White {
		t.Fatalf("turn = %s, want white", st.CurrentTurn)
	}
}

func TestSingleplayerAIReplies(t *testing.T) {
	s1 := &fakeSub{id: "c1"}
	r, err := New(Config{
		ID: "TEST", GameType: game.TypeFlipFlop3x3, GameMode: ModeSingleplayer,
		AIDifficulty: "easy", AIThinkTimeout: time.Second,
	}, InitialPlayer{ClientID: "c1", Username: "alice", Sub: s1})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if !r.Start() {
		t.Fatal("singleplayer room should start immediately")
	}
	st := r.State()
	var aiSeat *PlayerSlot
	for i := range st.Players {
		if st.Players[i].IsAI {
			aiSeat = &st.Players[i]
		}
	}
	if aiSeat == nil || aiSeat.Color != game.Black {
		t.Fatalf("players = %+v, want AI in the black seat", st.Players)
	}

	if _, err := r.Enter("c2", &fakeSub{id: "c2"}, "bob"); err != apperrors.ErrRoomFull {
		t.Fatalf("join singleplayer: err = %v, want %v", err, apperrors.ErrRoomFull)
	}

	if err := r.HandleMove("c1", "B1", "B2"); err != nil {
		t.Fatalf("HandleMove: %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for {
		st := r.State()
		if st.CurrentTurn == game.White || st.Status == StatusEnded {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("AI never answered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	moves := 0
	for _, typ := range s1.types(t) {
		if typ == string(protocol.MsgTypeMove) {
			moves++
		}
	}
	if moves < 2 {
		t.Fatalf("saw %d move frames, want the human move and the AI reply", moves)
	}
}

func TestSingleplayerLeaveClosesRoom(t *testing.T) {
	s1 := &fakeSub{id: "c1"}
	r, err := New(Config{
		ID: "TEST", GameType: game.TypeFlipFlop3x3, GameMode: ModeSingleplayer,
		AIDifficulty: "easy",
	}, InitialPlayer{ClientID: "c1", Username: "alice", Sub: s1})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	r.Start()
	if closed := r.Leave("c1"); !closed {
		t.Fatal("singleplayer room should close when the human leaves")
	}
}
