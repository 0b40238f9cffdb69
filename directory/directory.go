package directory

import (
	"context"
	"sort"

	"github.com/hashicorp/go-hclog"
	"github.com/mitchellh/hashstructure/v2"
	"github.com/tcriess/lightspeed-chat-client/globals"
	"golang.org/x/sync/errgroup"
)

// Source is the part of the query surface the synchronizer reads.
type Source interface {
	FetchUserRooms(ctx context.Context, username string) ([]string, error)
	FetchPublicRooms(ctx context.Context) ([]string, error)
	FetchRoomsWithUser(ctx context.Context, username string) ([]string, error)
}

// Set is the deduplicated set of room names available to the user.
type Set struct {
	rooms       map[string]struct{}
	fingerprint uint64
}

func NewSet(names ...string) *Set {
	s := &Set{}
	s.Replace(names)
	return s
}

// Replace sets the contents to names and reports whether that changed anything.
func (s *Set) Replace(names []string) bool {
	rooms := make(map[string]struct{}, len(names))
	for _, name := range names {
		if name != "" {
			rooms[name] = struct{}{}
		}
	}
	s.rooms = rooms
	return s.rehash()
}

// Add reports whether name was not present before.
func (s *Set) Add(name string) bool {
	if _, ok := s.rooms[name]; ok || name == "" {
		return false
	}
	s.rooms[name] = struct{}{}
	s.rehash()
	return true
}

// Remove reports whether name was present.
func (s *Set) Remove(name string) bool {
	if _, ok := s.rooms[name]; !ok {
		return false
	}
	delete(s.rooms, name)
	s.rehash()
	return true
}

func (s *Set) Has(name string) bool {
	_, ok := s.rooms[name]
	return ok
}

func (s *Set) Len() int {
	return len(s.rooms)
}

// Names returns the rooms in lexical order.
func (s *Set) Names() []string {
	names := make([]string, 0, len(s.rooms))
	for name := range s.rooms {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (s *Set) rehash() bool {
	// hashstructure ignores map iteration order, so equal sets hash equal.
	h, err := hashstructure.Hash(s.rooms, hashstructure.FormatV2, nil)
	if err != nil {
		return true
	}
	changed := h != s.fingerprint
	s.fingerprint = h
	return changed
}

// Synchronizer computes the available rooms from the three room queries.
type Synchronizer struct {
	source Source
	logger hclog.Logger
}

func NewSynchronizer(source Source, logger hclog.Logger) *Synchronizer {
	return &Synchronizer{
		source: source,
		logger: globals.Logger(logger).Named("directory"),
	}
}

// Refresh returns the union of the user's joined rooms, all public rooms, and the rooms
// the user is an explicit member of. A failing member query only narrows the result; the
// other two queries failing fails the refresh.
func (s *Synchronizer) Refresh(ctx context.Context, username string) ([]string, error) {
	var joined, public, member []string
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		joined, err = s.source.FetchUserRooms(gctx, username)
		return err
	})
	g.Go(func() error {
		var err error
		public, err = s.source.FetchPublicRooms(gctx)
		return err
	})
	g.Go(func() error {
		rooms, err := s.source.FetchRoomsWithUser(gctx, username)
		if err != nil {
			s.logger.Warn("could not fetch rooms with user, continuing without them", "username", username, "error", err)
			return nil
		}
		member = rooms
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(joined)+len(public)+len(member))
	union := make([]string, 0, len(seen))
	for _, list := range [][]string{joined, public, member} {
		for _, name := range list {
			if _, ok := seen[name]; ok || name == "" {
				continue
			}
			seen[name] = struct{}{}
			union = append(union, name)
		}
	}
	return union, nil
}
