package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ponytojas/mqtt-team-bridge/config"
	"github.com/ponytojas/mqtt-team-bridge/internal/models"
)

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(ctx context.Context, topic string, payload []byte) error {
	args := m.Called(ctx, topic, payload)
	return args.Error(0)
}

func defaultTeams() *models.TeamSet {
	return models.NewTeamSet(config.DefaultTeams(10))
}

func TestTemplatesAreValidObjects(t *testing.T) {
	for _, tpl := range Templates {
		var obj map[string]any
		require.NoError(t, json.Unmarshal([]byte(tpl), &obj), tpl)
		assert.NotEmpty(t, obj)
		assert.Contains(t, obj, "temperature")
	}
}

func TestPayloadForCyclesTemplates(t *testing.T) {
	assert.Equal(t, Templates[0], PayloadFor(0))
	assert.Equal(t, Templates[4], PayloadFor(4))
	assert.Equal(t, Templates[0], PayloadFor(5))
	assert.Equal(t, Templates[4], PayloadFor(9))
}

func TestSelectTeams(t *testing.T) {
	set := defaultTeams()

	all, err := SelectTeams(set, nil)
	require.NoError(t, err)
	assert.Len(t, all, 10)

	some, err := SelectTeams(set, []string{"team03", "team01"})
	require.NoError(t, err)
	require.Len(t, some, 2)
	assert.Equal(t, "team03", some[0].Name)

	_, err = SelectTeams(set, []string{"team99"})
	assert.Error(t, err)
}

func TestRunSendsOneMessagePerTeam(t *testing.T) {
	pub := new(MockPublisher)
	pub.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	teams := defaultTeams().Teams()
	sent, err := Run(context.Background(), pub, teams, Options{})
	require.NoError(t, err)

	require.Len(t, sent, 10)
	for i, s := range sent {
		assert.Equal(t, teams[i].Name, s.Topic)
		assert.Equal(t, PayloadFor(i), s.Payload)
	}
	pub.AssertCalled(t, "Publish", mock.Anything, "team02", []byte(Templates[1]))
	pub.AssertNumberOfCalls(t, "Publish", 10)
}

func TestRunRounds(t *testing.T) {
	pub := new(MockPublisher)
	pub.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	teams, err := SelectTeams(defaultTeams(), []string{"team01", "team02"})
	require.NoError(t, err)

	sent, err := Run(context.Background(), pub, teams, Options{Rounds: 3, Interval: time.Millisecond})
	require.NoError(t, err)
	assert.Len(t, sent, 6)
}

func TestRunStopsOnPublishError(t *testing.T) {
	pub := new(MockPublisher)
	pub.On("Publish", mock.Anything, "team01", mock.Anything).Return(nil)
	pub.On("Publish", mock.Anything, "team02", mock.Anything).Return(errors.New("broker gone"))

	sent, err := Run(context.Background(), pub, defaultTeams().Teams(), Options{})
	require.Error(t, err)
	assert.Len(t, sent, 1)
	pub.AssertNumberOfCalls(t, "Publish", 2)
}

func TestRunHonoursTimeout(t *testing.T) {
	pub := new(MockPublisher)
	pub.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	sent, err := Run(ctx, pub, defaultTeams().Teams(), Options{Interval: time.Hour})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Len(t, sent, 1)
}
