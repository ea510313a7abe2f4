package app

import (
	"context"
	"testing"

	"github.com/spetersoncode/longform/client"
	"github.com/spetersoncode/longform/config"
	"github.com/spetersoncode/longform/task"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *config.Config {
	cfg := config.Default()
	cfg.APIKeys = client.APIKeys{Anthropic: "sk-ant", OpenAI: "sk-openai"}
	cfg.Workflow.CheckpointDir = t.TempDir()
	return &cfg
}

func TestNew(t *testing.T) {
	cfg := testConfig(t)
	cfg.ImageProvider = "openai"

	a, err := New(cfg, nil, WithUniqueRunIDs())
	require.NoError(t, err)
	assert.NotNil(t, a.Client.Images())
	assert.NotNil(t, a.Logger)

	ids, err := a.Generator.Checkpoints().List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, ids, "file checkpoints start empty")

	tasks := task.New()
	t.Cleanup(tasks.Close)
	assert.NotNil(t, a.Pipeline(tasks))
}

func TestNewRejectsBadClientConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.APIKeys.Anthropic = ""

	_, err := New(cfg, nil)
	var missing *client.ErrMissingAPIKey
	assert.ErrorAs(t, err, &missing)
}
