package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
	lru "github.com/hashicorp/golang-lru"
	"github.com/robfig/cron/v3"
	"github.com/tcriess/lightspeed-chat-client/access"
	"github.com/tcriess/lightspeed-chat-client/config"
	"github.com/tcriess/lightspeed-chat-client/directory"
	"github.com/tcriess/lightspeed-chat-client/filter"
	"github.com/tcriess/lightspeed-chat-client/globals"
	"github.com/tcriess/lightspeed-chat-client/ledger"
	"github.com/tcriess/lightspeed-chat-client/presence"
	"github.com/tcriess/lightspeed-chat-client/types"
	"github.com/tcriess/lightspeed-chat-client/ws"
)

const taskChannelSize = 64

var (
	ErrEmptyMessage  = errors.New("message is empty")
	ErrEmptyRoomName = errors.New("room name is empty")
	ErrInvalidPeer   = errors.New("invalid direct message peer")
	ErrNotCreator    = errors.New("only the creator may delete a room")
	ErrClosed        = errors.New("session closed")
	ErrNoRoom        = errors.New("not in a room")
)

// Channel is the event channel to the authority, see ws.Manager.
type Channel interface {
	Connect() error
	Emit(types.OutboundEvent) error
	Track(types.Join)
	Events() <-chan types.InboundEvent
	States() <-chan ws.StateChange
	Close() error
}

// Queries is the read-only query surface of the authority, see api.Client.
type Queries interface {
	directory.Source
	FetchMessages(ctx context.Context, room string) ([]types.Message, error)
	FetchRoomRequests(ctx context.Context, username string) ([]types.AccessRequest, error)
	FetchRoomInvitations(ctx context.Context, username string) ([]types.Invitation, error)
	FetchRoom(ctx context.Context, room string) (types.RoomInfo, error)
}

type Options struct {
	Username     string
	DefaultRoom  string
	InitialRooms []string

	TypingTimeout       time.Duration
	RequestingIndicator time.Duration
	RefreshDelay        time.Duration
	QueryTimeout        time.Duration

	StatusPolicy   ledger.Policy
	Notify         *filter.Filter
	ResyncSchedule string
	RoomCacheSize  int

	// OnUpdate is called on the session loop after every state change. It must not call
	// back into the session synchronously.
	OnUpdate func(Update)
	Logger   hclog.Logger
}

// OptionsFromConfig maps the configuration onto session options.
func OptionsFromConfig(cfg *config.Config) (Options, error) {
	policy, err := ledger.ParsePolicy(cfg.StatusPolicy)
	if err != nil {
		return Options{}, err
	}
	notify, err := filter.Compile(cfg.NotifyFilter)
	if err != nil {
		return Options{}, err
	}
	return Options{
		Username:            cfg.Username,
		DefaultRoom:         cfg.DefaultRoom,
		InitialRooms:        cfg.InitialRooms,
		TypingTimeout:       cfg.TimingConfig.TypingTimeout,
		RequestingIndicator: cfg.TimingConfig.RequestingIndicator,
		RefreshDelay:        cfg.TimingConfig.RefreshDelay,
		QueryTimeout:        cfg.TimingConfig.QueryTimeout,
		StatusPolicy:        policy,
		Notify:              notify,
		ResyncSchedule:      cfg.ResyncSchedule,
		RoomCacheSize:       cfg.RoomCacheSize,
	}, nil
}

// Session composes the components for one logged in user and owns the current room.
//
// All state is owned by the goroutine executing Run. Events from the channel, timer
// callbacks, query results and public method calls are all executed there one at a time.
type Session struct {
	opts    Options
	self    string
	channel Channel
	queries Queries
	logger  hclog.Logger

	tasks   chan func()
	closing chan struct{}
	done    chan struct{}

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	started   bool
	closeOnce sync.Once

	creators *lru.Cache
	cron     *cron.Cron

	// loop owned
	connection ws.State
	current    string
	roomGen    uint64
	creator    string
	peer       string
	rooms      *directory.Set
	allUsers   []string
	ledger     *ledger.Ledger
	presence   *presence.Tracker
	typing     *presence.Typing
	access     *access.Workflow
	syncer     *directory.Synchronizer
	timers     map[*timer]struct{}
	handlers   ws.Handlers
}

func New(opts Options, channel Channel, queries Queries) (*Session, error) {
	if opts.Username == "" {
		return nil, fmt.Errorf("username is required")
	}
	if opts.DefaultRoom == "" {
		return nil, ErrEmptyRoomName
	}
	if opts.RoomCacheSize <= 0 {
		opts.RoomCacheSize = 128
	}
	if opts.QueryTimeout <= 0 {
		opts.QueryTimeout = 10 * time.Second
	}
	if opts.OnUpdate == nil {
		opts.OnUpdate = func(Update) {}
	}
	creators, err := lru.New(opts.RoomCacheSize)
	if err != nil {
		return nil, err
	}
	logger := globals.Logger(opts.Logger).Named("session")
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		opts:       opts,
		self:       opts.Username,
		channel:    channel,
		queries:    queries,
		logger:     logger,
		tasks:      make(chan func(), taskChannelSize),
		closing:    make(chan struct{}),
		done:       make(chan struct{}),
		ctx:        ctx,
		cancel:     cancel,
		creators:   creators,
		connection: ws.StateDisconnected,
		rooms:      directory.NewSet(opts.InitialRooms...),
		ledger:     ledger.New(opts.Username, opts.StatusPolicy, logger),
		presence:   presence.NewTracker(),
		syncer:     directory.NewSynchronizer(queries, logger),
		timers:     make(map[*timer]struct{}),
	}
	s.typing = presence.NewTyping(opts.Username, opts.TypingTimeout, s.after, s.emitTyping)
	s.access = access.New(access.Options{
		Self:             opts.Username,
		Emitter:          channel,
		After:            s.after,
		IndicatorTimeout: opts.RequestingIndicator,
		OnIndicator: func(room string) {
			s.notify(Update{Kind: UpdateIndicator, Room: room})
		},
		Logger: logger,
	})
	s.handlers = s.newHandlers()
	if opts.ResyncSchedule != "" {
		s.cron = cron.New(cron.WithLocation(time.UTC), cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)))
		if _, err := s.cron.AddFunc(opts.ResyncSchedule, func() { s.post(s.resync) }); err != nil {
			cancel()
			return nil, fmt.Errorf("invalid resync schedule %q: %w", opts.ResyncSchedule, err)
		}
	}
	return s, nil
}

// Run connects and processes events until ctx is done or Close is called. Every resource
// acquired here is released before Run returns.
func (s *Session) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		select {
		case <-s.closing:
			return ErrClosed
		default:
		}
		return fmt.Errorf("session already running")
	}
	s.started = true
	s.mu.Unlock()
	defer s.teardown()

	s.current = s.opts.DefaultRoom
	s.channel.Track(types.Join{Username: s.self, Room: s.current})
	if err := s.channel.Connect(); err != nil {
		return err
	}
	s.resolveCreator(s.current)
	if s.cron != nil {
		s.cron.Start()
	}

	s.logger.Info("session started", "username", s.self, "room", s.current)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-s.closing:
			return nil

		case ev := <-s.channel.Events():
			if !s.handlers.Dispatch(ev) {
				s.logger.Debug("unhandled event", "event", ev.EventName())
			}

		case sc := <-s.channel.States():
			s.onState(sc)

		case task := <-s.tasks:
			task()
		}
	}
}

func (s *Session) teardown() {
	s.typing.Cancel()
	s.access.Stop()
	for t := range s.timers {
		t.stop()
	}
	if s.cron != nil {
		s.cron.Stop()
	}
	s.cancel()
	if err := s.channel.Close(); err != nil {
		s.logger.Warn("could not close channel", "error", err)
	}
	close(s.done)
	s.logger.Info("session stopped", "username", s.self)
}

// Close stops Run and waits for the teardown. It is safe to call more than once.
func (s *Session) Close() error {
	s.closeOnce.Do(func() { close(s.closing) })
	s.mu.Lock()
	started := s.started
	s.started = true
	s.mu.Unlock()
	if !started {
		s.cancel()
		err := s.channel.Close()
		close(s.done)
		return err
	}
	<-s.done
	return nil
}

// do runs fn on the loop and waits for it.
func (s *Session) do(fn func()) error {
	finished := make(chan struct{})
	task := func() {
		defer close(finished)
		fn()
	}
	select {
	case s.tasks <- task:
	case <-s.done:
		return ErrClosed
	case <-s.closing:
		return ErrClosed
	}
	select {
	case <-finished:
		return nil
	case <-s.done:
		return ErrClosed
	}
}

// post queues fn on the loop without waiting.
func (s *Session) post(fn func()) {
	select {
	case s.tasks <- fn:
	case <-s.done:
	}
}

type timer struct {
	t         *time.Timer
	cancelled bool
	stop      func()
}

// after schedules fn on the loop. The returned func cancels it; a cancelled timer never
// runs fn, even if it already fired and is waiting in the task queue.
func (s *Session) after(d time.Duration, fn func()) func() {
	t := &timer{}
	t.stop = func() {
		if t.cancelled {
			return
		}
		t.cancelled = true
		t.t.Stop()
		delete(s.timers, t)
	}
	s.timers[t] = struct{}{}
	t.t = time.AfterFunc(d, func() {
		s.post(func() {
			if t.cancelled {
				return
			}
			t.cancelled = true
			delete(s.timers, t)
			fn()
		})
	})
	return t.stop
}

// query runs fetch on its own goroutine and applies the result on the loop. Failures are
// logged and leave the state as it was.
func query[T any](s *Session, name string, fetch func(context.Context) (T, error), apply func(T)) {
	ctx, cancel := context.WithTimeout(s.ctx, s.opts.QueryTimeout)
	go func() {
		defer cancel()
		res, err := fetch(ctx)
		s.post(func() {
			if err != nil {
				s.logger.Warn("query failed", "query", name, "error", err)
				return
			}
			apply(res)
		})
	}()
}

func (s *Session) notify(u Update) {
	s.opts.OnUpdate(u)
}

func (s *Session) emit(ev types.OutboundEvent) error {
	err := s.channel.Emit(ev)
	if err != nil {
		s.logger.Warn("could not emit event", "event", ev.EventName(), "error", err)
	}
	return err
}

func (s *Session) emitTyping(ev types.Typing) {
	_ = s.emit(ev)
}
