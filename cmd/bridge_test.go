package main

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ponytojas/mqtt-team-bridge/config"
	"github.com/ponytojas/mqtt-team-bridge/internal/models"
)

type MockEnsurer struct {
	mock.Mock
}

func (m *MockEnsurer) EnsureCollection(ctx context.Context, team models.Team) error {
	return m.Called(ctx, team).Error(0)
}

func TestEnsureTeamsPreparesEveryTeam(t *testing.T) {
	teams := models.NewTeamSet(config.DefaultTeams(3)).Teams()

	store := new(MockEnsurer)
	for _, team := range teams {
		store.On("EnsureCollection", mock.MatchedBy(func(ctx context.Context) bool {
			_, ok := ctx.Deadline()
			return ok
		}), team).Return(nil).Once()
	}

	require.NoError(t, ensureTeams(context.Background(), store, teams))
	store.AssertExpectations(t)
}

func TestEnsureTeamsStopsOnFailure(t *testing.T) {
	teams := models.NewTeamSet(config.DefaultTeams(3)).Teams()
	dbErr := errors.New("permission denied for schema workshop_team02")

	store := new(MockEnsurer)
	store.On("EnsureCollection", mock.Anything, teams[0]).Return(nil).Once()
	store.On("EnsureCollection", mock.Anything, teams[1]).Return(dbErr).Once()

	err := ensureTeams(context.Background(), store, teams)
	assert.ErrorIs(t, err, dbErr)
	assert.ErrorContains(t, err, "team02")
	store.AssertNotCalled(t, "EnsureCollection", mock.Anything, teams[2])
}
