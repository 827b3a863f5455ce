//go:build integration

package markers_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/suite"

	"nivaran/internal/delivery/markers"
	"nivaran/internal/grievance"
	id "nivaran/pkg/domain"
	"nivaran/pkg/platform/sentinel"
	"nivaran/pkg/testutil/containers"
)

type RedisMarkerSuite struct {
	suite.Suite
	redis *containers.RedisContainer
	store *markers.RedisStore
}

func TestRedisMarkerSuite(t *testing.T) {
	suite.Run(t, new(RedisMarkerSuite))
}

func (s *RedisMarkerSuite) SetupSuite() {
	s.redis = containers.NewRedisContainer(s.T())
	s.store = markers.NewRedisStore(s.redis.Client)
}

func (s *RedisMarkerSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
}

func (s *RedisMarkerSuite) TestFirstWriteWins() {
	ctx := context.Background()
	gid := id.NewGrievanceID()

	first := markers.Marker{GrievanceID: gid, Channel: grievance.ChannelUser, State: markers.StatePending}
	_, created, err := s.store.PutIfAbsent(ctx, first)
	s.Require().NoError(err)
	s.True(created)

	second := markers.Marker{GrievanceID: gid, Channel: grievance.ChannelUser, State: markers.StateFailed}
	existing, created, err := s.store.PutIfAbsent(ctx, second)
	s.Require().NoError(err)
	s.False(created)
	s.Equal(markers.StatePending, existing.State)
}

func (s *RedisMarkerSuite) TestUpdateResolvesClaim() {
	ctx := context.Background()
	gid := id.NewGrievanceID()

	_, _, err := s.store.PutIfAbsent(ctx, markers.Marker{
		GrievanceID: gid, Channel: grievance.ChannelOfficer, State: markers.StatePending,
	})
	s.Require().NoError(err)

	s.Require().NoError(s.store.Update(ctx, markers.Marker{
		GrievanceID: gid, Channel: grievance.ChannelOfficer,
		State: markers.StateSent, MessageID: "em-42", Attempts: 1,
	}))

	m, err := s.store.Get(ctx, gid, grievance.ChannelOfficer)
	s.Require().NoError(err)
	s.Equal(markers.StateSent, m.State)
	s.Equal("em-42", m.MessageID)
}

func (s *RedisMarkerSuite) TestUpdateWithoutClaim() {
	err := s.store.Update(context.Background(), markers.Marker{
		GrievanceID: id.NewGrievanceID(), Channel: grievance.ChannelUser, State: markers.StateSent,
	})
	s.Require().ErrorIs(err, sentinel.ErrNotFound)
}

func (s *RedisMarkerSuite) TestGetMissing() {
	_, err := s.store.Get(context.Background(), id.NewGrievanceID(), grievance.ChannelUser)
	s.Require().ErrorIs(err, sentinel.ErrNotFound)
}

func (s *RedisMarkerSuite) TestConcurrentClaimsSingleCreator() {
	ctx := context.Background()
	gid := id.NewGrievanceID()

	const workers = 16
	var wins int32
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, created, err := s.store.PutIfAbsent(ctx, markers.Marker{
				GrievanceID: gid, Channel: grievance.ChannelUser, State: markers.StatePending,
			})
			if err != nil {
				return
			}
			if created {
				atomic.AddInt32(&wins, 1)
			}
		}()
	}
	wg.Wait()

	s.EqualValues(1, wins)
}
