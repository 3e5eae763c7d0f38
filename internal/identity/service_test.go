package identity

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"

	"equilex/internal/outbox"
	id "equilex/pkg/domain"
	dErrors "equilex/pkg/domain-errors"
)

type IdentityServiceSuite struct {
	suite.Suite
	store    *InMemoryStore
	events   *outbox.Publisher
	eventLog *outbox.InMemoryStore
	service  *Service
}

func TestIdentityServiceSuite(t *testing.T) {
	suite.Run(t, new(IdentityServiceSuite))
}

func (s *IdentityServiceSuite) SetupTest() {
	s.store = NewInMemoryStore()
	s.eventLog = outbox.NewInMemoryStore()
	s.events = outbox.NewPublisher(s.eventLog)
	s.service = NewService(s.store, s.events)
}

func (s *IdentityServiceSuite) TestRegister() {
	ctx := context.Background()

	s.Run("registers a verified record", func() {
		err := s.service.Register(ctx, "acct-1", "key-1", "DE")
		s.NoError(err)
		s.True(s.service.IsVerified(ctx, "acct-1"))

		record, err := s.service.Find(ctx, "acct-1")
		s.NoError(err)
		s.Equal(id.CountryCode("DE"), record.Country)
		s.True(record.Verified)
	})

	s.Run("rejects a missing identity key", func() {
		err := s.service.Register(ctx, "acct-2", "", "DE")
		s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
		s.False(s.service.IsVerified(ctx, "acct-2"))
	})

	s.Run("overwrites an existing record", func() {
		s.Require().NoError(s.service.Register(ctx, "acct-3", "key-a", "DE"))
		s.Require().NoError(s.service.Register(ctx, "acct-3", "key-b", "FR"))

		record, err := s.service.Find(ctx, "acct-3")
		s.NoError(err)
		s.Equal("key-b", record.IdentityKey)
		s.Equal(id.CountryCode("FR"), record.Country)
	})

	s.Run("stages a registration event", func() {
		before := s.events.PendingCount()
		s.Require().NoError(s.service.Register(ctx, "acct-4", "key-4", "US"))
		s.Equal(before+1, s.events.PendingCount())
	})
}

func (s *IdentityServiceSuite) TestRemove() {
	ctx := context.Background()

	s.Run("removes verification", func() {
		s.Require().NoError(s.service.Register(ctx, "acct-1", "key-1", "DE"))
		s.Require().NoError(s.service.Remove(ctx, "acct-1"))
		s.False(s.service.IsVerified(ctx, "acct-1"))
	})

	s.Run("unknown account is not found", func() {
		err := s.service.Remove(ctx, "ghost")
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func (s *IdentityServiceSuite) TestSetCountry() {
	ctx := context.Background()

	s.Run("updates the country on an existing record", func() {
		s.Require().NoError(s.service.Register(ctx, "acct-1", "key-1", "DE"))
		s.Require().NoError(s.service.SetCountry(ctx, "acct-1", "CH"))

		record, err := s.service.Find(ctx, "acct-1")
		s.NoError(err)
		s.Equal(id.CountryCode("CH"), record.Country)
		s.True(record.Verified)
	})

	s.Run("unknown account is not found", func() {
		err := s.service.SetCountry(ctx, "ghost", "CH")
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func (s *IdentityServiceSuite) TestIsVerified() {
	ctx := context.Background()

	s.Run("unknown account is unverified", func() {
		s.False(s.service.IsVerified(ctx, "nobody"))
	})
}
