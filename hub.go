// Seeking Systems network game
//
// Players place colored nodes on a shared canvas and connect them. Every game
// ID is its own session with one authoritative graph, per-player scores and a
// resilience clock that ticks on the server.
//
// Features:
// - WebSockets per game ID: /network/:gameid and /network/:gameid/ws
// - First connection to a game becomes host (may start the game and kick)
// - Players identified by cookie (playerID), named on join, names unique
// - New connections receive a full snapshot before incremental events
// - Every intent and clock tick is applied by the hub goroutine in order
// - Rejected intents are reported only to the offending client
// - Games auto-reaped after configurable idle timeout
// - Random 8-char game IDs via crypto/rand, with server-side collision check
// - QR code per game, backed by go-qrcode

package main

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/skip2/go-qrcode"

	"github.com/Seednode/seekingsystems/games/network"
)

type Client struct {
	conn     *websocket.Conn
	send     chan any
	playerID string
}

type intent struct {
	client *Client
	msg    ClientMessage
}

type Hub struct {
	id      string
	session *network.Session
	clients map[*Client]bool

	register chan *Client
	unreg    chan *Client
	intents  chan intent
	leaves   chan string
	done     chan struct{}
	stop     sync.Once

	mu sync.RWMutex

	createdAt     time.Time
	lastActive    time.Time
	hostPlayerID  string // cookie/playerID of the first connection
	tick          time.Duration
	cancelMetrics func()
}

func newHub(gameID string, rules network.Rules, tick time.Duration) (*Hub, error) {
	session, err := network.NewSession(rules)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	h := &Hub{
		id:         gameID,
		session:    session,
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unreg:      make(chan *Client),
		intents:    make(chan intent),
		leaves:     make(chan string),
		done:       make(chan struct{}),
		createdAt:  now,
		lastActive: now,
		tick:       tick,
	}

	session.Subscribe(h.broadcast)
	h.cancelMetrics = session.Subscribe(recordEvent)

	return h, nil
}

func (h *Hub) run(cfg *Config) {
	ticker := time.NewTicker(h.tick)
	defer ticker.Stop()

	for {
		select {
		case c := <-h.register:
			h.mu.Lock()
			h.lastActive = time.Now()

			// First connection becomes host
			if h.hostPlayerID == "" {
				h.hostPlayerID = c.playerID
			}
			isHost := h.hostPlayerID == c.playerID

			h.clients[c] = true
			h.mu.Unlock()

			clientsConnected.Inc()

			name, isExisting := h.session.PlayerName(c.playerID)

			// Send session_info first, so client decides whether to prompt.
			h.sendTo(c, SessionInfoMessage{
				Type:       "session_info",
				IsExisting: isExisting,
				IsHost:     isHost,
				Name:       name,
			})
			h.sendTo(c, SnapshotMessage{
				Type:     "snapshot",
				Snapshot: h.session.Snapshot(),
			})

		case c := <-h.unreg:
			h.mu.Lock()
			h.lastActive = time.Now()

			if _, ok := h.clients[c]; ok {
				h.dropLocked(c)
			}
			playerID := c.playerID
			h.mu.Unlock()

			if playerID != "" {
				go h.scheduleRemoval(playerID, cfg.playerTimeout)
			}

		case playerID := <-h.leaves:
			if h.connected(playerID) {
				continue
			}
			if err := h.session.Leave(playerID); err == nil {
				logf(cfg, "GAMES: Player %s left %s", playerID, h.id)
			}

		case in := <-h.intents:
			h.touch()
			h.handleIntent(cfg, in)

		case <-ticker.C:
			res := h.session.Tick()
			if res.Won {
				logf(cfg, "GAMES: %s reached the win condition after %ds", h.id, res.Elapsed)
			}

		case <-h.done:
			return
		}
	}
}

func (h *Hub) touch() {
	h.mu.Lock()
	h.lastActive = time.Now()
	h.mu.Unlock()
}

func (h *Hub) connected(playerID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.clients {
		if client.playerID == playerID {
			return true
		}
	}
	return false
}

// dropLocked assumes h.mu is already held.
func (h *Hub) dropLocked(c *Client) {
	delete(h.clients, c)
	close(c.send)
	clientsConnected.Dec()
}

// sendTo delivers msg to a single client, dropping it if its buffer is full.
func (h *Hub) sendTo(c *Client, msg any) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.clients[c] {
		return
	}

	select {
	case c.send <- msg:
	default:
		h.dropLocked(c)
	}
}

// broadcast is the session listener: every committed event goes to every
// connected client.
func (h *Hub) broadcast(e network.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		select {
		case client.send <- e:
		default:
			h.dropLocked(client)
		}
	}
}

// scheduleRemoval waits for d and then asks the hub to drop the player, which
// it does only if no client with this playerID has reconnected meanwhile.
func (h *Hub) scheduleRemoval(playerID string, d time.Duration) {
	if d > 0 {
		select {
		case <-time.After(d):
		case <-h.done:
			return
		}
	}

	select {
	case h.leaves <- playerID:
	case <-h.done:
	}
}

func (h *Hub) isHost(c *Client) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return h.hostPlayerID != "" && c.playerID == h.hostPlayerID
}

// handleIntent applies one client message to the session.
func (h *Hub) handleIntent(cfg *Config, in intent) {
	c := in.client
	msg := in.msg

	var err error

	switch msg.Type {
	case "join":
		err = h.session.Join(c.playerID, msg.Name)
		if err == nil {
			logf(cfg, "GAMES: Player %q joined %s", strings.TrimSpace(msg.Name), h.id)
		}

	case "start":
		if !h.isHost(c) {
			err = errNotHost
			break
		}
		if h.session.Start() {
			logf(cfg, "GAMES: Started %s", h.id)
		}

	case "kick":
		if !h.isHost(c) {
			err = errNotHost
			break
		}
		err = h.kick(msg.Target)

	case "create_node":
		err = h.createNode(c, msg)

	case "connect":
		_, err = h.session.Connect(c.playerID, msg.A, msg.B)

	case "remove_node":
		_, err = h.session.RemoveNode(c.playerID, msg.Node)
	}

	if err != nil {
		intentsRejected.WithLabelValues(msg.Type).Inc()

		h.sendTo(c, ErrorMessage{
			Type:    "error",
			Intent:  msg.Type,
			Message: errorText(err),
		})
	}
}

func (h *Hub) createNode(c *Client, msg ClientMessage) error {
	if msg.Position == nil {
		return errMissingPosition
	}

	var color network.Color
	if msg.Color != "" {
		parsed, err := network.ParseColor(msg.Color)
		if err != nil {
			return err
		}
		color = parsed
	}

	_, err := h.session.CreateNode(c.playerID, *msg.Position, color)
	return err
}

func (h *Hub) kick(target string) error {
	playerID, ok := h.session.PlayerByName(target)
	if !ok {
		return network.ErrUnknownPlayer
	}

	h.mu.Lock()
	for client := range h.clients {
		if client.playerID == playerID {
			select {
			case client.send <- SimpleMessage{
				Type:    "kicked",
				Message: "You have been removed by the host.",
			}:
			default:
			}
			h.dropLocked(client)
		}
	}
	h.mu.Unlock()

	return h.session.Leave(playerID)
}

// closeAll disconnects all clients of this hub and stops its loop (used by reaper).
func (h *Hub) closeAll() {
	h.stop.Do(func() {
		close(h.done)
	})

	h.cancelMetrics()

	h.mu.Lock()
	defer h.mu.Unlock()

	for c := range h.clients {
		_ = c.conn.Close()
		h.dropLocked(c)
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

const (
	playerCookieName = "seekingsystems_id"

	// Largest client frame accepted; intents are a few hundred bytes at most.
	maxMessageSize = 4096
)

func getOrSetPlayerID(w http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie(playerCookieName); err == nil && c.Value != "" {
		return c.Value
	}

	id, err := uuid.NewRandom()
	if err != nil {
		log.Println("uuid error:", err)
		return ""
	}

	http.SetCookie(w, &http.Cookie{
		Name:     playerCookieName,
		Value:    id.String(),
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	return id.String()
}

// GameManager holds a set of hubs keyed by game ID, so each $path/$gameid
// is its own isolated session.
type GameManager struct {
	mu          sync.Mutex
	hubs        map[string]*Hub
	idleTimeout time.Duration
	rules       network.Rules
}

func newGameManager(idleTimeout time.Duration, rules network.Rules) *GameManager {
	return &GameManager{
		hubs:        make(map[string]*Hub),
		idleTimeout: idleTimeout,
		rules:       rules,
	}
}

func (gm *GameManager) getHub(cfg *Config, gameID string) (*Hub, error) {
	gm.mu.Lock()
	defer gm.mu.Unlock()

	if hub, ok := gm.hubs[gameID]; ok {
		return hub, nil
	}

	hub, err := newHub(gameID, gm.rules, cfg.tick)
	if err != nil {
		return nil, fmt.Errorf("game %s: %w", gameID, err)
	}
	gm.hubs[gameID] = hub
	sessionsActive.Inc()

	go hub.run(cfg)

	return hub, nil
}

// applyRules makes r the rule set for new games and pushes it into every
// running one.
func (gm *GameManager) applyRules(cfg *Config, r network.Rules) {
	gm.mu.Lock()
	defer gm.mu.Unlock()

	gm.rules = r
	for id, hub := range gm.hubs {
		if err := hub.session.SetRules(r); err != nil {
			logf(cfg, "RULES: Keeping previous rules for %s: %v", id, err)
		}
	}
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

// reap removes hubs that have been idle longer than idleTimeout.
func (gm *GameManager) reap(cfg *Config) {
	cutoff := time.Now().Add(-gm.idleTimeout)

	gm.mu.Lock()
	defer gm.mu.Unlock()

	for id, hub := range gm.hubs {
		hub.mu.RLock()
		last := hub.lastActive
		hub.mu.RUnlock()

		if last.Before(cutoff) {
			delete(gm.hubs, id)
			sessionsActive.Dec()
			logf(cfg, "GAMES: Reaped idle game %s", id)
			go hub.closeAll()
		}
	}
}

// reaperLoop periodically reaps idle hubs until ctx is done.
func (gm *GameManager) reaperLoop(ctx context.Context, cfg *Config) error {
	if gm.idleTimeout <= 0 {
		return nil
	}

	ticker := time.NewTicker(gm.idleTimeout / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			gm.reap(cfg)
		case <-ctx.Done():
			return nil
		}
	}
}

// closeAll ends every running game.
func (gm *GameManager) closeAll() {
	gm.mu.Lock()
	defer gm.mu.Unlock()

	for id, hub := range gm.hubs {
		delete(gm.hubs, id)
		sessionsActive.Dec()
		hub.closeAll()
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

		hub, err := gm.getHub(cfg, gameID)
		if err != nil {
			log.Println("hub error:", err)
			http.Error(w, "unable to start game", http.StatusInternalServerError)
			return
		}

		// Carries the Set-Cookie from getOrSetPlayerID, if any.
		conn, err := upgrader.Upgrade(w, r, w.Header())
		if err != nil {
			log.Println("upgrade error:", err)
			return
		}

		client := &Client{
			conn:     conn,
			send:     make(chan any, 64),
			playerID: playerID,
		}

		select {
		case hub.register <- client:
		case <-hub.done:
			_ = conn.Close()
			return
		}

		go client.writePump()
		client.readPump(hub)
	}
}

func (c *Client) readPump(h *Hub) {
	defer func() {
		select {
		case h.unreg <- c:
		case <-h.done:
		}
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)

	for {
		var msg ClientMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			return
		}

		switch msg.Type {
		case "join", "start", "kick", "create_node", "connect", "remove_node":
			select {
			case h.intents <- intent{client: c, msg: msg}:
			case <-h.done:
				return
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

func getIndexHandler(cfg *Config, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		data, err := assets.ReadFile("assets/network/index.html")
		if err != nil {
			errs <- err
			http.Error(w, "missing client", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "public, max-age=3600")
		w.Header().Set("Expires", time.Now().Add(time.Hour).UTC().Format(http.TimeFormat))
		securityHeaders(cfg, w)

		_ = getOrSetPlayerID(w, r)

		_, _ = w.Write(data)
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

// registerNetworkGame sets up routes so that:
//   - $path                  → redirects to new random game (8-char ID)
//   - $path/:gameid          → HTML client
//   - $path/:gameid/ws       → WebSocket for that game
//   - $path/:gameid/qr       → PNG QR code for that game URL
func registerNetworkGame(cfg *Config, path string, mux *httprouter.Router, gm *GameManager, errs chan<- error) {
	mux.GET(cfg.prefix+path, redirectNewGame(cfg, path, gm))

	mux.GET(cfg.prefix+path+"/:gameid", getIndexHandler(cfg, errs))

	mux.GET(cfg.prefix+path+"/:gameid/ws", serveWSForManager(cfg, gm))

	mux.GET(cfg.prefix+path+"/:gameid/qr", qrHandler)
}

var (
	errNotHost         = errors.New("only the host can do that")
	errMissingPosition = errors.New("missing node position")
)

func errorText(err error) string {
	switch {
	case errors.Is(err, network.ErrNameTaken):
		return "That name is already taken. Please choose a different name."
	case errors.Is(err, network.ErrEmptyName):
		return "Please enter a name."
	case errors.Is(err, network.ErrNameTooLong):
		return fmt.Sprintf("Names can be at most %d characters.", network.MaxNameLength)
	case errors.Is(err, network.ErrUnknownPlayer):
		return "Join the game before playing."
	case errors.Is(err, network.ErrNotStarted):
		return "The game has not started yet."
	case errors.Is(err, network.ErrDuplicatePosition):
		return "There is already a node there."
	case errors.Is(err, network.ErrAlreadyConnected):
		return "Those nodes are already connected."
	case errors.Is(err, network.ErrSelfLoop):
		return "A node cannot connect to itself."
	case errors.Is(err, network.ErrUnknownNode):
		return "That node no longer exists."
	}
	return err.Error()
}
