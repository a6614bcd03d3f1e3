package core

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/automoto/ticksync/shared/leveldata"
	"github.com/automoto/ticksync/shared/messages"
	"github.com/automoto/ticksync/shared/movement"
	"github.com/automoto/ticksync/shared/netcomponents"
	"github.com/automoto/ticksync/shared/netconfig"
	"github.com/automoto/ticksync/shared/protocol"
	"github.com/automoto/ticksync/shared/sim"
	"github.com/google/uuid"
	"github.com/leap-fish/necs/esync"
	"github.com/leap-fish/necs/esync/srvsync"
	"github.com/leap-fish/necs/router"
	"github.com/leap-fish/necs/transports"
	"github.com/rotisserie/eris"
	"github.com/yohamta/donburi"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const joinTimeout = 5 * time.Second

var ErrQueueFull = eris.New("command queue full")

// Rejection is returned when a join is refused. Reason is one of the
// messages.Reject* constants.
type Rejection struct {
	Reason string
}

func (r *Rejection) Error() string {
	return "join rejected: " + r.Reason
}

func (r *Rejection) RejectReason() string {
	return r.Reason
}

// Config holds everything a Server needs besides its transports.
type Config struct {
	Name            string
	Version         string // required client version, empty accepts any
	TickRate        int    // game loop rate and the default client rate
	StrictTickRate  bool   // reject clients whose rate differs from TickRate
	MaxPlayers      int    // 0 means unlimited
	HistoryCapacity int
	InputRateSlack  float64 // inputs per second allowed = client tick rate * slack
	ReconnectGrace  time.Duration
	QueueSize       int
	Movement        movement.Config
	Level           *leveldata.Level
	Sessions        *SessionIssuer // nil disables session tokens
}

func DefaultConfig() Config {
	return Config{
		Name:            "ticksync",
		Version:         netconfig.ProtocolVersion,
		TickRate:        netconfig.DefaultTickRate,
		HistoryCapacity: netconfig.DefaultHistoryCapacity,
		InputRateSlack:  2,
		ReconnectGrace:  10 * time.Second,
		QueueSize:       4096,
		Movement:        movement.DefaultConfig(),
	}
}

type player struct {
	authority  *Authority
	entity     donburi.Entity
	name       string
	tickRate   int
	attached   bool
	detachedAt time.Time
	sink       protocol.Sink // nil for WebSocket clients
}

// EntityView is a read-only summary of one authority entity.
type EntityView struct {
	ID          uint64     `json:"id"`
	Name        string     `json:"name"`
	ClientToken string     `json:"clientToken"`
	TickRate    int        `json:"tickRate"`
	Tick        uint32     `json:"tick"`
	Position    [3]float64 `json:"position"`
	Connected   bool       `json:"connected"`
	StaleInputs int        `json:"staleInputs"`
}

// Server owns the Authority side: a donburi world replicated through necs,
// one Authority per joined client and the fan-out to every transport.
//
// World and authorities belong to the game loop goroutine. Transports hand
// work to it through the command queue.
type Server struct {
	cfg    Config
	logger *zap.Logger
	world  donburi.World
	loop   *GameLoop
	ctrls  *controllers
	stats  Stats
	now    func() time.Time

	commands chan func()

	players map[uint64]*player
	byToken map[string]*player
	spawned int

	sinkMu sync.RWMutex
	sinks  map[protocol.Sink]struct{}

	// Track which network client owns which entity
	mu             sync.RWMutex
	clientEntities map[*router.NetworkClient]uint64
	limiters       map[*router.NetworkClient]*rate.Limiter

	viewMu sync.RWMutex
	view   []EntityView

	wsEnabled atomic.Bool
	transport *transports.WsServerTransport
	kcp       *KCPListener
}

// NewServer creates a new game server. It does not start the loop or any
// transport.
func NewServer(cfg Config, logger *zap.Logger) (*Server, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.HistoryCapacity <= 0 {
		cfg.HistoryCapacity = netconfig.DefaultHistoryCapacity
	}
	if cfg.TickRate <= 0 {
		cfg.TickRate = netconfig.DefaultTickRate
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 4096
	}
	if err := protocol.RegisterComponents(); err != nil {
		return nil, err
	}

	world := donburi.NewWorld()
	s := &Server{
		cfg:            cfg,
		logger:         logger.Named("server"),
		world:          world,
		ctrls:          newControllers(cfg.Movement, cfg.Level),
		now:            time.Now,
		commands:       make(chan func(), cfg.QueueSize),
		players:        make(map[uint64]*player),
		byToken:        make(map[string]*player),
		sinks:          make(map[protocol.Sink]struct{}),
		clientEntities: make(map[*router.NetworkClient]uint64),
		limiters:       make(map[*router.NetworkClient]*rate.Limiter),
	}
	s.loop = NewGameLoop(s, cfg.TickRate, s.logger)

	// Set up the world for esync
	srvsync.UseEsync(world)

	return s, nil
}

// Start runs the game loop in its own goroutine.
func (s *Server) Start() {
	s.loop.running.Store(true)
	go s.loop.Run()
}

// ServeWS registers the necs router callbacks and serves WebSocket clients
// on port. It blocks.
func (s *Server) ServeWS(port uint) error {
	s.setupRouterCallbacks()
	s.wsEnabled.Store(true)

	s.transport = transports.NewWsServerTransport(port, "", nil)
	return s.transport.Start()
}

// ServeKCP accepts KCP sessions on addr in the background.
func (s *Server) ServeKCP(addr string) error {
	l, err := ListenKCP(addr, s, s.logger)
	if err != nil {
		return err
	}
	s.kcp = l
	go l.Serve()
	return nil
}

// Stop gracefully shuts down the server
func (s *Server) Stop() {
	if s.kcp != nil {
		_ = s.kcp.Close()
	}
	if s.loop.Running() {
		s.loop.Stop()
	}
}

func (s *Server) setupRouterCallbacks() {
	router.OnConnect(func(client *router.NetworkClient) {
		s.logger.Info("client connected", zap.Any("client", client.Id()))
	})

	router.OnDisconnect(func(client *router.NetworkClient, err error) {
		s.onDisconnect(client, err)
	})

	router.On(func(client *router.NetworkClient, req messages.JoinRequest) {
		s.onJoinRequest(client, req)
	})

	router.On(func(client *router.NetworkClient, in messages.InputSample) {
		s.onInput(client, in)
	})

	router.OnError(func(client *router.NetworkClient, err error) {
		s.logger.Warn("client error", zap.Error(err))
	})
}

func (s *Server) onJoinRequest(client *router.NetworkClient, req messages.JoinRequest) {
	ctx, cancel := context.WithTimeout(context.Background(), joinTimeout)
	defer cancel()

	accepted, err := s.Join(ctx, req, nil)
	if err != nil {
		s.logger.Info("join refused", zap.Any("client", client.Id()), zap.Error(err))
		return
	}

	s.mu.Lock()
	s.clientEntities[client] = accepted.EntityID
	s.limiters[client] = s.newLimiter(accepted.TickRate)
	s.mu.Unlock()
}

func (s *Server) onInput(client *router.NetworkClient, in messages.InputSample) {
	s.mu.RLock()
	id, ok := s.clientEntities[client]
	limiter := s.limiters[client]
	s.mu.RUnlock()

	if !ok {
		return
	}
	if !limiter.Allow() {
		s.stats.RateLimited.Add(1)
		return
	}
	s.SubmitInput(id, in)
}

func (s *Server) onDisconnect(client *router.NetworkClient, err error) {
	if err != nil {
		s.logger.Info("client disconnected", zap.Any("client", client.Id()), zap.Error(err))
	} else {
		s.logger.Info("client disconnected", zap.Any("client", client.Id()))
	}

	s.mu.Lock()
	id, exists := s.clientEntities[client]
	delete(s.clientEntities, client)
	delete(s.limiters, client)
	s.mu.Unlock()

	if exists {
		s.Leave(id, nil)
	}
}

func (s *Server) newLimiter(tickRate int) *rate.Limiter {
	slack := s.cfg.InputRateSlack
	if slack <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	return rate.NewLimiter(rate.Limit(float64(tickRate)*slack), tickRate)
}

// Join admits a client and returns the entity it controls. sink, if not nil,
// receives every publication from then on, starting with the joining
// entity's spawn pose or, on resume, its latest snapshot.
func (s *Server) Join(ctx context.Context, req messages.JoinRequest, sink protocol.Sink) (messages.JoinAccepted, error) {
	type result struct {
		accepted messages.JoinAccepted
		err      error
	}
	// Whichever side claims first decides: the loop spawns, or the caller
	// gives up and the queued join becomes a no-op.
	var claimed atomic.Bool
	done := make(chan result, 1)
	err := s.do(ctx, func() {
		if !claimed.CompareAndSwap(false, true) {
			s.logger.Debug("abandoned join skipped", zap.String("token", req.ClientToken))
			return
		}
		accepted, err := s.join(req, sink)
		done <- result{accepted, err}
	})
	if err != nil {
		return messages.JoinAccepted{}, err
	}

	select {
	case r := <-done:
		return r.accepted, r.err
	case <-ctx.Done():
		if claimed.CompareAndSwap(false, true) {
			return messages.JoinAccepted{}, eris.Wrap(ctx.Err(), "join")
		}
		r := <-done
		return r.accepted, r.err
	}
}

// SubmitInput queues one input for entityID. It never blocks; a full queue
// drops the input and reports false.
func (s *Server) SubmitInput(entityID uint64, in messages.InputSample) bool {
	ok := s.enqueue(func() { s.applyInput(entityID, in) })
	if !ok {
		s.stats.QueueDrops.Add(1)
	}
	return ok
}

// Leave detaches the client controlling entityID. The entity stays for the
// reconnect grace period. A Leave from a sink that no longer controls the
// entity, because the client already resumed elsewhere, only drops the sink.
func (s *Server) Leave(entityID uint64, sink protocol.Sink) {
	if sink != nil {
		s.RemoveSink(sink)
	}
	ctx, cancel := context.WithTimeout(context.Background(), joinTimeout)
	defer cancel()
	if err := s.do(ctx, func() { s.detach(entityID, sink) }); err != nil {
		s.logger.Warn("leave not processed", zap.Uint64("entity", entityID), zap.Error(err))
	}
}

func (s *Server) AddSink(sink protocol.Sink) {
	s.sinkMu.Lock()
	s.sinks[sink] = struct{}{}
	s.sinkMu.Unlock()
}

func (s *Server) RemoveSink(sink protocol.Sink) {
	s.sinkMu.Lock()
	delete(s.sinks, sink)
	s.sinkMu.Unlock()
}

// enqueue hands fn to the game loop without blocking.
func (s *Server) enqueue(fn func()) bool {
	select {
	case s.commands <- fn:
		return true
	default:
		return false
	}
}

// do hands fn to the game loop, waiting for queue space. Without a running
// loop the caller owns the world and fn runs inline.
func (s *Server) do(ctx context.Context, fn func()) error {
	if !s.loop.Running() {
		fn()
		return nil
	}
	select {
	case s.commands <- fn:
		return nil
	case <-ctx.Done():
		return eris.Wrap(ErrQueueFull, ctx.Err().Error())
	}
}

// Step runs one iteration of the game loop: queued commands, reaping of
// abandoned entities and replication. The loop goroutine calls it every
// tick; with no loop running a host may call it directly.
func (s *Server) Step() {
	s.ProcessCommands()
	s.reap(s.now())
	s.refreshView()
	s.stats.Ticks.Add(1)

	if s.wsEnabled.Load() {
		if err := srvsync.DoSync(); err != nil {
			s.logger.Warn("sync error", zap.Error(err))
		}
	}
}

// ProcessCommands drains the command queue.
func (s *Server) ProcessCommands() {
	for {
		select {
		case fn := <-s.commands:
			fn()
		default:
			return
		}
	}
}

func (s *Server) join(req messages.JoinRequest, sink protocol.Sink) (messages.JoinAccepted, error) {
	if s.cfg.Version != "" && req.Version != s.cfg.Version {
		return s.reject(messages.RejectVersion)
	}

	hz := req.TickRate
	if hz == 0 {
		hz = s.cfg.TickRate
	}
	if !netconfig.ValidTickRate(hz) || (s.cfg.StrictTickRate && hz != s.cfg.TickRate) {
		return s.reject(messages.RejectTickRate)
	}

	var p *player
	switch {
	case req.SessionToken != "":
		if s.cfg.Sessions == nil {
			return s.reject(messages.RejectSession)
		}
		claims, err := s.cfg.Sessions.Verify(req.SessionToken)
		if err != nil {
			s.logger.Debug("session token refused", zap.Error(err))
			return s.reject(messages.RejectSession)
		}
		p = s.players[claims.EntityID]
		if p == nil || p.authority.Owner() != claims.ClientToken {
			return s.reject(messages.RejectSession)
		}
	case req.ClientToken != "":
		p = s.byToken[req.ClientToken]
	}

	if p != nil {
		if p.tickRate != hz {
			return s.reject(messages.RejectTickRate)
		}
		return s.resume(p, sink)
	}

	if s.cfg.MaxPlayers > 0 && s.attachedCount() >= s.cfg.MaxPlayers {
		return s.reject(messages.RejectFull)
	}
	return s.spawn(req, hz, sink)
}

func (s *Server) spawn(req messages.JoinRequest, hz int, sink protocol.Sink) (messages.JoinAccepted, error) {
	token := req.ClientToken
	if token == "" {
		token = uuid.NewString()
	}

	ctrl := s.ctrls.forRate(hz)
	state := ctrl.Spawn(s.spawned)

	// Create player entity with network components
	entity := s.world.Create(netcomponents.NetTransform, netcomponents.NetOwner)
	entry := s.world.Entry(entity)
	netcomponents.NetOwner.Set(entry, &netcomponents.NetOwnerData{
		ClientToken: token,
		Name:        req.PlayerName,
		TickRate:    hz,
	})
	transform := netcomponents.FromSnapshot(sim.Snapshot{State: state})
	netcomponents.NetTransform.Set(entry, &transform)

	if err := srvsync.NetworkSync(s.world, &entity, netcomponents.NetTransform, netcomponents.NetOwner); err != nil {
		s.world.Remove(entity)
		return messages.JoinAccepted{}, eris.Wrap(err, "network sync")
	}
	nid := esync.GetNetworkId(s.world.Entry(entity))
	if nid == nil {
		s.world.Remove(entity)
		return messages.JoinAccepted{}, eris.New("entity has no network id")
	}
	id := uint64(*nid)

	a := NewAuthority(id, token, state, ctrl.Step, sim.NewHistory(s.cfg.HistoryCapacity), s)
	p := &player{authority: a, entity: entity, name: req.PlayerName, tickRate: hz, attached: true, sink: sink}
	s.players[id] = p
	s.byToken[token] = p
	s.spawned++

	accepted, err := s.accept(p)
	if err != nil {
		s.remove(p)
		return messages.JoinAccepted{}, err
	}
	if sink != nil {
		s.AddSink(sink)
	}
	a.Spawn()

	s.stats.Joins.Add(1)
	s.logger.Info("player spawned",
		zap.Uint64("entity", id),
		zap.String("name", req.PlayerName),
		zap.Int("tickRate", hz))
	return accepted, nil
}

func (s *Server) resume(p *player, sink protocol.Sink) (messages.JoinAccepted, error) {
	accepted, err := s.accept(p)
	if err != nil {
		return messages.JoinAccepted{}, err
	}
	p.attached = true
	p.detachedAt = time.Time{}
	p.sink = sink
	if sink != nil {
		s.AddSink(sink)
	}
	p.authority.Republish()

	s.stats.Resumes.Add(1)
	s.logger.Info("player resumed", zap.Uint64("entity", p.authority.ID()), zap.String("name", p.name))
	return accepted, nil
}

func (s *Server) accept(p *player) (messages.JoinAccepted, error) {
	accepted := messages.JoinAccepted{
		EntityID:    p.authority.ID(),
		ClientToken: p.authority.Owner(),
		ServerName:  s.cfg.Name,
		TickRate:    p.tickRate,
		SpawnTick:   p.authority.NextTick(),
	}
	if s.cfg.Sessions != nil {
		token, err := s.cfg.Sessions.Generate(accepted.EntityID, accepted.ClientToken)
		if err != nil {
			return messages.JoinAccepted{}, err
		}
		accepted.SessionToken = token
	}
	return accepted, nil
}

func (s *Server) reject(reason string) (messages.JoinAccepted, error) {
	s.stats.Rejects.Add(1)
	return messages.JoinAccepted{}, &Rejection{Reason: reason}
}

func (s *Server) attachedCount() int {
	n := 0
	for _, p := range s.players {
		if p.attached {
			n++
		}
	}
	return n
}

func (s *Server) applyInput(id uint64, in messages.InputSample) {
	p, ok := s.players[id]
	if !ok || !p.attached {
		return
	}
	s.stats.Inputs.Add(1)
	if !in.Finite() {
		s.stats.InvalidInputs.Add(1)
		s.logger.Debug("non-finite input dropped", zap.Uint64("entity", id), zap.Uint32("tick", in.Tick))
		return
	}
	if !p.authority.ReceiveInput(in) {
		s.stats.StaleInputs.Add(1)
	}
}

func (s *Server) detach(id uint64, sink protocol.Sink) {
	p, ok := s.players[id]
	if !ok || (sink != nil && p.sink != sink) {
		return
	}
	p.attached = false
	p.detachedAt = s.now()
	if s.cfg.ReconnectGrace <= 0 {
		s.remove(p)
	}
}

func (s *Server) reap(now time.Time) {
	for _, p := range s.players {
		if !p.attached && now.Sub(p.detachedAt) >= s.cfg.ReconnectGrace {
			s.remove(p)
		}
	}
}

func (s *Server) remove(p *player) {
	id := p.authority.ID()
	delete(s.players, id)
	delete(s.byToken, p.authority.Owner())
	if s.world.Valid(p.entity) {
		s.world.Remove(p.entity)
	}

	s.stats.Despawns.Add(1)
	s.sinkMu.RLock()
	for sink := range s.sinks {
		sink.Despawn(id)
	}
	s.sinkMu.RUnlock()

	s.logger.Info("player removed", zap.Uint64("entity", id), zap.String("name", p.name))
}

// Publish records snap on the entity's replicated transform and forwards it
// to every sink. Authorities call it from the game loop goroutine.
func (s *Server) Publish(entityID uint64, owner string, snap sim.Snapshot) {
	if p, ok := s.players[entityID]; ok && s.world.Valid(p.entity) {
		transform := netcomponents.FromSnapshot(snap)
		netcomponents.NetTransform.Set(s.world.Entry(p.entity), &transform)
	}

	s.stats.Publications.Add(1)
	pub := protocol.Publication{EntityID: entityID, Owner: owner, Snapshot: snap}
	s.sinkMu.RLock()
	for sink := range s.sinks {
		sink.Publish(pub)
	}
	s.sinkMu.RUnlock()
}

func (s *Server) refreshView() {
	view := make([]EntityView, 0, len(s.players))
	for id, p := range s.players {
		snap := p.authority.Snapshot()
		view = append(view, EntityView{
			ID:          id,
			Name:        p.name,
			ClientToken: p.authority.Owner(),
			TickRate:    p.tickRate,
			Tick:        snap.Tick,
			Position:    snap.State.Position,
			Connected:   p.attached,
			StaleInputs: p.authority.Stale(),
		})
	}
	sort.Slice(view, func(i, j int) bool { return view[i].ID < view[j].ID })

	s.viewMu.Lock()
	s.view = view
	s.viewMu.Unlock()
}

// Entities returns the view taken at the end of the last loop step.
func (s *Server) Entities() []EntityView {
	s.viewMu.RLock()
	defer s.viewMu.RUnlock()
	out := make([]EntityView, len(s.view))
	copy(out, s.view)
	return out
}

// EntityByToken finds the entity controlled by clientToken.
func (s *Server) EntityByToken(clientToken string) (EntityView, bool) {
	for _, v := range s.Entities() {
		if v.ClientToken == clientToken {
			return v, true
		}
	}
	return EntityView{}, false
}

// Authority returns the authority for entityID. Only safe on the loop
// goroutine or while no loop is running.
func (s *Server) Authority(entityID uint64) (*Authority, bool) {
	p, ok := s.players[entityID]
	if !ok {
		return nil, false
	}
	return p.authority, true
}

func (s *Server) Stats() StatsSnapshot {
	snap := s.stats.Snapshot()
	s.viewMu.RLock()
	snap.Entities = len(s.view)
	s.viewMu.RUnlock()
	return snap
}

// World returns the ECS world
func (s *Server) World() donburi.World {
	return s.world
}

func (s *Server) Config() Config {
	return s.cfg
}

// PlayerCount returns the number of connected WebSocket players
func (s *Server) PlayerCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clientEntities)
}

// IsRejection reports whether err is a join rejection and returns its reason.
func IsRejection(err error) (string, bool) {
	var r *Rejection
	if errors.As(err, &r) {
		return r.Reason, true
	}
	return "", false
}
