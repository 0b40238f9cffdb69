package directory

import (
	"context"
	"errors"
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	joined, public, member []string
	joinedErr, memberErr   error
}

func (f *fakeSource) FetchUserRooms(context.Context, string) ([]string, error) {
	return f.joined, f.joinedErr
}

func (f *fakeSource) FetchPublicRooms(context.Context) ([]string, error) {
	return f.public, nil
}

func (f *fakeSource) FetchRoomsWithUser(context.Context, string) ([]string, error) {
	return f.member, f.memberErr
}

func TestRefreshUnion(t *testing.T) {
	s := NewSynchronizer(&fakeSource{
		joined: []string{"general", "team"},
		public: []string{"random", "general"},
		member: []string{"team", "secret"},
	}, hclog.NewNullLogger())

	rooms, err := s.Refresh(context.Background(), "alice")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"general", "team", "random", "secret"}, rooms)
}

func TestRefreshToleratesMemberFailure(t *testing.T) {
	s := NewSynchronizer(&fakeSource{
		joined:    []string{"general"},
		public:    []string{"random"},
		memberErr: errors.New("404"),
	}, hclog.NewNullLogger())

	rooms, err := s.Refresh(context.Background(), "alice")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"general", "random"}, rooms)
}

func TestRefreshFailsOnJoinedFailure(t *testing.T) {
	s := NewSynchronizer(&fakeSource{joinedErr: errors.New("boom")}, hclog.NewNullLogger())
	_, err := s.Refresh(context.Background(), "alice")
	assert.Error(t, err)
}

func TestSet(t *testing.T) {
	s := NewSet("general", "tech", "general")
	assert.Equal(t, []string{"general", "tech"}, s.Names())

	assert.False(t, s.Replace([]string{"tech", "general"}))
	assert.True(t, s.Replace([]string{"tech", "general", "random"}))

	assert.True(t, s.Add("team"))
	assert.False(t, s.Add("team"))
	assert.True(t, s.Has("team"))
	assert.True(t, s.Remove("team"))
	assert.False(t, s.Remove("team"))
	assert.Equal(t, 3, s.Len())
}
