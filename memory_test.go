package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"matchbox/engine"
)

func testConfig() *Config {
	return &Config{
		bind:           "127.0.0.1",
		port:           8080,
		pairs:          engine.DefaultPairs,
		flipDelay:      0,
		sessionTimeout: time.Hour,
	}
}

func intPtr(i int) *int {
	return &i
}

// nextState pops messages from a client's send channel until a
// game_state arrives.
func nextState(t *testing.T, c *Client) GameStateMessage {
	t.Helper()

	for {
		select {
		case msg, ok := <-c.send:
			require.True(t, ok, "send channel closed while waiting for game_state")
			if state, isState := msg.(GameStateMessage); isState {
				return state
			}
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for game_state")
		}
	}
}

// pickPair returns the IDs of two face-down cards, matching when the
// second argument is true, mismatched otherwise.
func pickPair(t *testing.T, h *Hub, matching bool) (int, int) {
	t.Helper()

	byContent := make(map[string][]int)
	for _, c := range h.game.Cards() {
		if c.Matched || c.FaceUp {
			continue
		}
		byContent[c.Content] = append(byContent[c.Content], c.ID)
	}

	if matching {
		for _, ids := range byContent {
			if len(ids) == 2 {
				return ids[0], ids[1]
			}
		}
		t.Fatal("no face-down pair available")
	}

	first := -1
	for _, ids := range byContent {
		if first < 0 {
			first = ids[0]
			continue
		}
		return first, ids[0]
	}
	t.Fatal("no mismatched cards available")
	return 0, 0
}

func TestNewGameIDs(t *testing.T) {
	gm := newGameManager(0)

	seen := make(map[string]bool)
	for i := 0; i < 64; i++ {
		id := gm.newGameID()
		require.Len(t, id, 8)
		for _, r := range id {
			valid := (r >= 'A' && r <= 'Z') || (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')
			require.Truef(t, valid, "unexpected character %q in game ID %q", r, id)
		}
		require.Falsef(t, seen[id], "duplicate game ID %q", id)
		seen[id] = true
	}
}

func TestHubMatchFlow(t *testing.T) {
	cfg := testConfig()
	h := newHub(cfg, "test")

	c := &Client{send: make(chan any, 64)}
	h.clients[c] = true

	a, b := pickPair(t, h, true)

	h.handleCommand(cfg, command{msg: ClientMessage{Type: "select", Card: intPtr(a)}})
	state := nextState(t, c)
	require.Zero(t, state.Moves)

	h.handleCommand(cfg, command{msg: ClientMessage{Type: "select", Card: intPtr(b)}})
	state = nextState(t, c)
	require.Equal(t, 1, state.Moves)
	require.Equal(t, 2, state.Score)
	require.False(t, state.GameOver)

	matched := 0
	for _, card := range state.Cards {
		if card.Matched {
			matched++
			require.True(t, card.FaceUp)
		}
	}
	require.Equal(t, 2, matched)
}

func TestHubMismatchFlipsImmediatelyWithoutDelay(t *testing.T) {
	cfg := testConfig()
	h := newHub(cfg, "test")

	c := &Client{send: make(chan any, 64)}
	h.clients[c] = true

	a, b := pickPair(t, h, false)

	h.handleCommand(cfg, command{msg: ClientMessage{Type: "select", Card: intPtr(a)}})
	nextState(t, c)

	h.handleCommand(cfg, command{msg: ClientMessage{Type: "select", Card: intPtr(b)}})
	state := nextState(t, c)
	require.Equal(t, 1, state.Moves)
	require.Zero(t, state.Score)

	// With no flip delay the pair is already face-down in the broadcast.
	for _, card := range state.Cards {
		require.False(t, card.FaceUp)
	}
}

func TestHubFlipBackTimer(t *testing.T) {
	cfg := testConfig()
	cfg.flipDelay = 20 * time.Millisecond

	h := newHub(cfg, "test")
	go h.run(cfg)

	c := &Client{send: make(chan any, 64)}
	h.register <- c
	nextState(t, c)

	h.mu.RLock()
	a, b := pickPair(t, h, false)
	h.mu.RUnlock()

	h.commands <- command{msg: ClientMessage{Type: "select", Card: intPtr(a)}}
	nextState(t, c)

	h.commands <- command{msg: ClientMessage{Type: "select", Card: intPtr(b)}}
	state := nextState(t, c)

	faceUp := 0
	for _, card := range state.Cards {
		if card.FaceUp {
			faceUp++
		}
	}
	require.Equal(t, 2, faceUp)

	// The deferred flip-back re-enters the run loop and broadcasts again.
	state = nextState(t, c)
	for _, card := range state.Cards {
		require.False(t, card.FaceUp)
	}

	h.unreg <- c
}

func TestHubNewGameResetsBoard(t *testing.T) {
	cfg := testConfig()
	h := newHub(cfg, "test")

	c := &Client{send: make(chan any, 64)}
	h.clients[c] = true

	a, b := pickPair(t, h, true)
	h.handleCommand(cfg, command{msg: ClientMessage{Type: "select", Card: intPtr(a)}})
	nextState(t, c)
	h.handleCommand(cfg, command{msg: ClientMessage{Type: "select", Card: intPtr(b)}})
	nextState(t, c)

	h.handleCommand(cfg, command{msg: ClientMessage{Type: "new_game", Pairs: 3}})
	state := nextState(t, c)

	require.Len(t, state.Cards, 6)
	require.Zero(t, state.Score)
	require.Zero(t, state.Moves)
	require.False(t, state.GameOver)
}

func TestHubShuffleKeepsCounters(t *testing.T) {
	cfg := testConfig()
	h := newHub(cfg, "test")

	c := &Client{send: make(chan any, 64)}
	h.clients[c] = true

	a, b := pickPair(t, h, true)
	h.handleCommand(cfg, command{msg: ClientMessage{Type: "select", Card: intPtr(a)}})
	nextState(t, c)
	h.handleCommand(cfg, command{msg: ClientMessage{Type: "select", Card: intPtr(b)}})
	nextState(t, c)

	h.handleCommand(cfg, command{msg: ClientMessage{Type: "shuffle"}})
	state := nextState(t, c)

	require.Equal(t, 2, state.Score)
	require.Equal(t, 1, state.Moves)
	require.Len(t, state.Cards, engine.DefaultPairs*2)
}

func TestStateMessageHidesFaceDownContent(t *testing.T) {
	cfg := testConfig()
	h := newHub(cfg, "test")

	for _, card := range h.stateMessageLocked().Cards {
		require.Empty(t, card.Content)
	}

	a, _ := pickPair(t, h, true)
	h.handleCommand(cfg, command{msg: ClientMessage{Type: "select", Card: intPtr(a)}})

	for _, card := range h.stateMessageLocked().Cards {
		if card.ID == a {
			require.True(t, card.FaceUp)
			require.NotEmpty(t, card.Content)
		} else {
			require.Empty(t, card.Content)
		}
	}
}

func TestSelectWithoutCardIsIgnored(t *testing.T) {
	cfg := testConfig()
	h := newHub(cfg, "test")

	c := &Client{send: make(chan any, 1)}
	h.clients[c] = true

	h.handleCommand(cfg, command{msg: ClientMessage{Type: "select"}})

	select {
	case msg := <-c.send:
		t.Fatalf("unexpected broadcast: %#v", msg)
	default:
	}
}
