// Matchbox Memory Game
//
// A classic concentration board: every card face appears exactly twice,
// cards are revealed two at a time, and matching pairs stay face-up
// until the board is cleared.
//
// Features:
// - WebSockets per game ID: /memory/:gameid and /memory/:gameid/ws
// - All rules live server-side in the engine package; the browser
//   client is render-only and never sees a face-down card's symbol
// - Each game session is a Hub whose run loop is the sole mutator of
//   its engine.Game, so no engine locking is needed
// - Mismatched pairs flip back after --flip-delay via a cancellable
//   timer that re-enters the run loop
// - Players identified by cookie (playerID)
// - Games auto-reaped after configurable idle timeout
// - Random 8-char game IDs via crypto/rand, with server-side collision check
// - One-shot JSON snapshot at /memory/:gameid/state for non-socket consumers
// - In-browser QR button to share the current session, backed by go-qrcode

package main

import (
	"crypto/rand"
	_ "embed"
	"encoding/hex"
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/skip2/go-qrcode"

	"matchbox/engine"
)

// Messages coming from clients
type ClientMessage struct {
	Type  string `json:"type"`            // "new_game", "shuffle", "select"
	Card  *int   `json:"card,omitempty"`  // select
	Pairs int    `json:"pairs,omitempty"` // new_game (0 = session default)
}

// CardView is one card as a client is allowed to see it. Content is
// only present while the card is face-up or matched.
type CardView struct {
	ID      int    `json:"id"`
	FaceUp  bool   `json:"face_up"`
	Matched bool   `json:"matched"`
	Content string `json:"content,omitempty"`
}

// GameStateMessage broadcasts the full observable board after every mutation.
type GameStateMessage struct {
	Type     string     `json:"type"` // "game_state"
	Cards    []CardView `json:"cards"`
	Score    int        `json:"score"`
	Moves    int        `json:"moves"`
	GameOver bool       `json:"game_over"`
}

// SessionInfoMessage is sent immediately on connect so the client can
// size its reveal animation to the server's flip-back delay.
type SessionInfoMessage struct {
	Type        string `json:"type"` // "session_info"
	GameID      string `json:"game_id"`
	FlipDelayMS int    `json:"flip_delay_ms"`
	MaxPairs    int    `json:"max_pairs"`
}

type Client struct {
	conn     *websocket.Conn
	send     chan any
	playerID string
}

type command struct {
	client *Client
	msg    ClientMessage
}

type Hub struct {
	id           string
	clients      map[*Client]bool
	game         *engine.Game
	defaultPairs int

	register chan *Client
	unreg    chan *Client
	commands chan command
	flips    chan [2]int

	mu sync.RWMutex

	createdAt  time.Time
	lastActive time.Time

	// flipTimer is the pending mismatch flip-back, if any. Touched only
	// with mu held; a late firing is harmless since engine.FlipBack
	// guards against matched and re-selected cards.
	flipTimer *time.Timer
}

func newHub(cfg *Config, gameID string) *Hub {
	now := time.Now()
	return &Hub{
		id:           gameID,
		clients:      make(map[*Client]bool),
		game:         engine.New(cfg.pairs),
		defaultPairs: cfg.pairs,
		register:     make(chan *Client),
		unreg:        make(chan *Client),
		commands:     make(chan command),
		flips:        make(chan [2]int),
		createdAt:    now,
		lastActive:   now,
	}
}

func (h *Hub) run(cfg *Config) {
	for {
		select {
		case c := <-h.register:
			h.mu.Lock()
			h.lastActive = time.Now()
			h.clients[c] = true
			state := h.stateMessageLocked()
			h.mu.Unlock()

			c.send <- SessionInfoMessage{
				Type:        "session_info",
				GameID:      h.id,
				FlipDelayMS: int(cfg.flipDelay / time.Millisecond),
				MaxPairs:    engine.MaxPairs(),
			}
			c.send <- state

		case c := <-h.unreg:
			h.mu.Lock()
			h.lastActive = time.Now()

			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()

		case cmd := <-h.commands:
			h.handleCommand(cfg, cmd)

		case pair := <-h.flips:
			h.handleFlipBack(pair)
		}
	}
}

// handleCommand applies one client command to the engine and, when
// anything changed, broadcasts the new state.
func (h *Hub) handleCommand(cfg *Config, cmd command) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.lastActive = time.Now()

	switch cmd.msg.Type {
	case "new_game":
		h.stopFlipTimerLocked()
		pairs := cmd.msg.Pairs
		if pairs == 0 {
			pairs = h.defaultPairs
		}
		h.game.Reset(pairs)
		logf(cfg, "GAMES: New board with %d cards in %s", len(h.game.Cards()), h.id)

	case "shuffle":
		h.game.Shuffle()

	case "select":
		if cmd.msg.Card == nil {
			return
		}

		out := h.game.SelectCard(*cmd.msg.Card)
		switch out.Result {
		case engine.Ignored:
			// Stray click: unknown, matched, or already face-up.
			return
		case engine.FirstPick:
			// A new comparison started; any outstanding flip-back
			// was already applied wholesale by the engine.
			h.stopFlipTimerLocked()
		case engine.Mismatch:
			h.scheduleFlipBackLocked(cfg, out.FlipBack)
		case engine.Match:
			if out.Won {
				logf(cfg, "GAMES: %s cleared in %d moves, score %d", h.id, h.game.Moves(), h.game.Score())
			}
		}

	default:
		return
	}

	h.broadcastStateLocked()
}

// scheduleFlipBackLocked arms the mismatch flip-back. With no delay
// configured the pair is flipped immediately, before the broadcast.
func (h *Hub) scheduleFlipBackLocked(cfg *Config, pair [2]int) {
	h.stopFlipTimerLocked()

	if cfg.flipDelay <= 0 {
		h.game.FlipBack(pair[0], pair[1])
		return
	}

	h.flipTimer = time.AfterFunc(cfg.flipDelay, func() {
		h.flips <- pair
	})
}

func (h *Hub) stopFlipTimerLocked() {
	if h.flipTimer != nil {
		h.flipTimer.Stop()
		h.flipTimer = nil
	}
}

// handleFlipBack runs when the flip-back timer fires. The engine
// ignores cards that have been matched or re-selected meanwhile.
func (h *Hub) handleFlipBack(pair [2]int) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.flipTimer = nil
	h.game.FlipBack(pair[0], pair[1])
	h.broadcastStateLocked()
}

// stateMessageLocked snapshots the board for clients, hiding the
// symbol of every face-down card.
func (h *Hub) stateMessageLocked() GameStateMessage {
	cards := h.game.Cards()

	views := make([]CardView, 0, len(cards))
	for _, c := range cards {
		view := CardView{
			ID:      c.ID,
			FaceUp:  c.FaceUp,
			Matched: c.Matched,
		}
		if c.FaceUp || c.Matched {
			view.Content = c.Content
		}
		views = append(views, view)
	}

	return GameStateMessage{
		Type:     "game_state",
		Cards:    views,
		Score:    h.game.Score(),
		Moves:    h.game.Moves(),
		GameOver: h.game.GameOver(),
	}
}

func (h *Hub) broadcastStateLocked() {
	msg := h.stateMessageLocked()

	for client := range h.clients {
		select {
		case client.send <- msg:
		default:
			delete(h.clients, client)
			close(client.send)
		}
	}
}

// closeAll disconnects all clients of this hub (used by reaper).
func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.stopFlipTimerLocked()

	for c := range h.clients {
		close(c.send)
		if c.conn != nil {
			_ = c.conn.Close()
		}
		delete(h.clients, c)
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

const playerCookieName = "matchbox_id"

func getOrSetPlayerID(w http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie(playerCookieName); err == nil && c.Value != "" {
		return c.Value
	}

	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		log.Println("rand.Read error:", err)
		return ""
	}
	id := hex.EncodeToString(buf)

	http.SetCookie(w, &http.Cookie{
		Name:     playerCookieName,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	return id
}

// GameManager holds a set of hubs keyed by game ID, so each $path/$gameid
// is its own isolated session.
type GameManager struct {
	mu          sync.Mutex
	hubs        map[string]*Hub
	idleTimeout time.Duration
}

func newGameManager(idleTimeout time.Duration) *GameManager {
	gm := &GameManager{
		hubs:        make(map[string]*Hub),
		idleTimeout: idleTimeout,
	}
	if idleTimeout > 0 {
		go gm.reaperLoop()
	}
	return gm
}

func (gm *GameManager) getHub(cfg *Config, gameID string) *Hub {
	gm.mu.Lock()
	defer gm.mu.Unlock()

	if hub, ok := gm.hubs[gameID]; ok {
		return hub
	}

	hub := newHub(cfg, gameID)
	gm.hubs[gameID] = hub
	go hub.run(cfg)
	return hub
}

// newGameID generates a crypto-random game ID and ensures it doesn't
// collide with existing games.
func (gm *GameManager) newGameID() string {
	const letters = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	for {
		buf := make([]byte, 8)
		if _, err := rand.Read(buf); err != nil {
			panic("crypto/rand failure: " + err.Error())
		}
		out := make([]byte, 8)
		for i := range out {
			out[i] = letters[int(buf[i])%len(letters)]
		}
		id := string(out)

		gm.mu.Lock()
		_, exists := gm.hubs[id]
		gm.mu.Unlock()

		if !exists {
			return id
		}
	}
}

// reaperLoop periodically removes hubs that have been idle longer than idleTimeout.
func (gm *GameManager) reaperLoop() {
	ticker := time.NewTicker(gm.idleTimeout / 2)
	for range ticker.C {
		cutoff := time.Now().Add(-gm.idleTimeout)

		gm.mu.Lock()
		for id, hub := range gm.hubs {
			hub.mu.RLock()
			last := hub.lastActive
			hub.mu.RUnlock()

			if last.Before(cutoff) {
				delete(gm.hubs, id)
				go hub.closeAll()
			}
		}
		gm.mu.Unlock()
	}
}

// WebSocket handler that picks the hub based on :gameid
func serveWSForManager(cfg *Config, gm *GameManager) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		gameID := ps.ByName("gameid")
		if gameID == "" {
			http.Error(w, "missing game id", http.StatusBadRequest)
			return
		}

		playerID := getOrSetPlayerID(w, r)
		if playerID == "" {
			http.Error(w, "unable to assign player id", http.StatusInternalServerError)
			return
		}

		hub := gm.getHub(cfg, gameID)

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Println("upgrade error:", err)
			return
		}

		client := &Client{
			conn:     conn,
			send:     make(chan any, 8),
			playerID: playerID,
		}

		hub.register <- client

		go client.writePump()
		client.readPump(hub)
	}
}

func (c *Client) readPump(h *Hub) {
	defer func() {
		h.unreg <- c
		_ = c.conn.Close()
	}()

	for {
		var msg ClientMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			return
		}

		switch msg.Type {
		case "new_game", "shuffle", "select":
			h.commands <- command{
				client: c,
				msg:    msg,
			}
		default:
			// ignore unknown types
		}
	}
}

func (c *Client) writePump() {
	defer c.conn.Close()

	for msg := range c.send {
		if err := c.conn.WriteJSON(msg); err != nil {
			return
		}
	}
}

// serveGameState returns a one-shot JSON snapshot of the board, for
// consumers that don't want to hold a socket open.
func serveGameState(cfg *Config, gm *GameManager) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		gameID := ps.ByName("gameid")
		if gameID == "" {
			http.Error(w, "missing game id", http.StatusBadRequest)
			return
		}

		hub := gm.getHub(cfg, gameID)

		hub.mu.RLock()
		msg := hub.stateMessageLocked()
		hub.mu.RUnlock()

		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		securityHeaders(cfg, w)

		if err := json.NewEncoder(w).Encode(msg); err != nil {
			log.Println("state encode error:", err)
		}
	}
}

// QR handler: generates a PNG QR code for the current game URL using go-qrcode.
func qrHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	gameID := ps.ByName("gameid")
	if gameID == "" {
		http.Error(w, "missing game id", http.StatusBadRequest)
		return
	}

	// Derive scheme (respecting TLS and X-Forwarded-Proto if present).
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}

	// We are at /.../:gameid/qr; strip trailing "/qr" to get the game URL.
	path := strings.TrimSuffix(r.URL.Path, "/qr")

	url := scheme + "://" + r.Host + path

	const qrSize = 320 // mobile-friendly size
	png, err := qrcode.Encode(url, qrcode.Medium, qrSize)
	if err != nil {
		http.Error(w, "qr generation failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(png)
}

// ---- Static file paths ----

//go:embed memory/index.html
var indexHTML []byte

//go:embed memory/app.css
var matchboxCSS []byte

//go:embed memory/app.js
var matchboxJS []byte

func getIndexHandler(cfg *Config) func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "public, max-age=3600")
		w.Header().Set("Expires", time.Now().Add(time.Hour).UTC().Format(http.TimeFormat))
		securityHeaders(cfg, w)

		_ = getOrSetPlayerID(w, r)

		_, _ = w.Write(indexHTML)
	}
}

func getCssHandler(cfg *Config) func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		w.Header().Set("Content-Type", "text/css; charset=utf-8")
		w.Header().Set("Cache-Control", "public, max-age=3600")
		w.Header().Set("Expires", time.Now().Add(time.Hour).UTC().Format(http.TimeFormat))
		securityHeaders(cfg, w)

		_, _ = w.Write(matchboxCSS)
	}
}

func getJsHandler(cfg *Config) func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		w.Header().Set("Content-Type", "application/javascript; charset=utf-8")
		w.Header().Set("Cache-Control", "public, max-age=3600")
		w.Header().Set("Expires", time.Now().Add(time.Hour).UTC().Format(http.TimeFormat))
		securityHeaders(cfg, w)

		_, _ = w.Write(matchboxJS)
	}
}

// redirectNewGame handles GET /path by generating a new random game ID
// (with server-side collision detection) and redirecting to /path/:gameid.
func redirectNewGame(cfg *Config, path string, gm *GameManager) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		gameID := gm.newGameID()
		logf(cfg, "GAMES: Created game %s/%s", path, gameID)
		http.Redirect(w, r, cfg.prefix+path+"/"+gameID, http.StatusTemporaryRedirect)
	}
}

// registerMemoryGame sets up routes so that:
//   - $path                  → redirects to new random game (8-char ID)
//   - $path/:gameid          → HTML client
//   - $path/:gameid/ws       → WebSocket for that game
//   - $path/:gameid/state    → one-shot JSON snapshot
//   - $path/:gameid/qr       → PNG QR code for that game URL
func registerMemoryGame(cfg *Config, path string, mux *httprouter.Router) {
	gm := newGameManager(cfg.sessionTimeout)

	// Root path → redirect to new random game
	mux.GET(cfg.prefix+path, redirectNewGame(cfg, path, gm))

	// Per-game client view (HTML)
	mux.GET(cfg.prefix+path+"/:gameid", getIndexHandler(cfg))

	// Shared assets (no gameid in route)
	mux.GET(cfg.prefix+"/assets/memory/app.css", getCssHandler(cfg))
	mux.GET(cfg.prefix+"/assets/memory/app.js", getJsHandler(cfg))

	// Per-game websocket
	mux.GET(cfg.prefix+path+"/:gameid/ws", serveWSForManager(cfg, gm))

	// Per-game JSON snapshot
	mux.GET(cfg.prefix+path+"/:gameid/state", serveGameState(cfg, gm))

	// Per-game QR code
	mux.GET(cfg.prefix+path+"/:gameid/qr", qrHandler)
}
