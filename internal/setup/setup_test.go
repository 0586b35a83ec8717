package setup

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ponytojas/mqtt-team-bridge/internal/database"
	"github.com/ponytojas/mqtt-team-bridge/internal/models"
)

type MockAdmin struct {
	mock.Mock
}

func (m *MockAdmin) Describe(ctx context.Context, team models.Team) (database.CollectionInfo, error) {
	args := m.Called(ctx, team)
	return args.Get(0).(database.CollectionInfo), args.Error(1)
}

func (m *MockAdmin) Drop(ctx context.Context, team models.Team) error {
	return m.Called(ctx, team).Error(0)
}

func (m *MockAdmin) EnsureCollection(ctx context.Context, team models.Team) error {
	return m.Called(ctx, team).Error(0)
}

func (m *MockAdmin) Insert(ctx context.Context, team models.Team, reading models.Reading) (string, error) {
	args := m.Called(ctx, team, reading)
	return args.String(0), args.Error(1)
}

var (
	team01 = models.Team{Name: "team01", Database: "workshop_team01", Collection: "sensor_data"}
	team02 = models.Team{Name: "team02", Database: "workshop_team02", Collection: "sensor_data"}
	fixed  = time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)
)

func clock() time.Time { return fixed }

func ready(team models.Team) database.CollectionInfo {
	return database.CollectionInfo{
		Team:       team.Name,
		Name:       team.Database + "." + team.Collection,
		Exists:     true,
		TimeSeries: true,
		Documents:  1,
	}
}

func TestConfirm(t *testing.T) {
	var out bytes.Buffer
	assert.True(t, Confirm(strings.NewReader("DELETE\n"), &out))
	assert.Contains(t, out.String(), "PERMANENTLY LOST")

	assert.True(t, Confirm(strings.NewReader("  DELETE  "), &out))
	assert.False(t, Confirm(strings.NewReader("delete\n"), &out))
	assert.False(t, Confirm(strings.NewReader("yes\n"), &out))
	assert.False(t, Confirm(strings.NewReader(""), &out))
}

func TestResetAllTeams(t *testing.T) {
	store := new(MockAdmin)
	for _, team := range []models.Team{team01, team02} {
		store.On("Drop", mock.Anything, team).Return(nil).Once()
		store.On("EnsureCollection", mock.Anything, team).Return(nil).Once()
		store.On("Insert", mock.Anything, team, database.WelcomeReading(team, fixed)).Return("id", nil).Once()
		store.On("Describe", mock.Anything, team).Return(ready(team), nil).Once()
	}

	res, err := Reset(context.Background(), store, []models.Team{team01, team02}, clock)
	require.NoError(t, err)

	assert.Equal(t, []string{"team01", "team02"}, res.Created)
	assert.Empty(t, res.Failed)
	assert.Equal(t, 2, res.Ready())
	store.AssertExpectations(t)

	var out bytes.Buffer
	res.Print(&out)
	assert.Contains(t, out.String(), "Successfully created: 2/2 collections")
	assert.Contains(t, out.String(), "All TimeSeries collections are ready!")
}

func TestResetContinuesAfterFailure(t *testing.T) {
	store := new(MockAdmin)
	store.On("Drop", mock.Anything, team01).Return(errors.New("not authorized")).Once()
	store.On("Describe", mock.Anything, team01).Return(database.CollectionInfo{Team: "team01", Name: "workshop_team01.sensor_data"}, nil).Once()

	store.On("Drop", mock.Anything, team02).Return(nil).Once()
	store.On("EnsureCollection", mock.Anything, team02).Return(nil).Once()
	store.On("Insert", mock.Anything, team02, mock.Anything).Return("id", nil).Once()
	store.On("Describe", mock.Anything, team02).Return(ready(team02), nil).Once()

	res, err := Reset(context.Background(), store, []models.Team{team01, team02}, clock)
	require.NoError(t, err)

	assert.Equal(t, []string{"team02"}, res.Created)
	require.Len(t, res.Failed, 1)
	assert.Equal(t, "team01", res.Failed[0].Team)
	assert.Equal(t, 1, res.Ready())
	store.AssertNotCalled(t, "EnsureCollection", mock.Anything, team01)

	var out bytes.Buffer
	res.Print(&out)
	assert.Contains(t, out.String(), "Failed teams: team01")
	assert.Contains(t, out.String(), "Some collections need attention")
}

func TestInspectAndPrint(t *testing.T) {
	store := new(MockAdmin)
	store.On("Describe", mock.Anything, team01).Return(ready(team01), nil).Once()
	store.On("Describe", mock.Anything, team02).Return(database.CollectionInfo{Name: "workshop_team02.sensor_data"}, nil).Once()

	infos, err := Inspect(context.Background(), store, []models.Team{team01, team02})
	require.NoError(t, err)
	require.Len(t, infos, 2)

	var out bytes.Buffer
	PrintCollections(&out, infos)
	assert.Contains(t, out.String(), "TimeSeries")
	assert.Contains(t, out.String(), "Missing")
}

func TestInspectError(t *testing.T) {
	store := new(MockAdmin)
	store.On("Describe", mock.Anything, team01).Return(database.CollectionInfo{}, errors.New("timeout")).Once()

	_, err := Inspect(context.Background(), store, []models.Team{team01})
	assert.ErrorContains(t, err, "team01")
}
