package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractConcepts(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    []string
	}{
		{"none", "A post about gardening.", []string{}},
		{"case insensitive", "Putting Redis in front of MySQL", []string{"redis", "mysql"}},
		{"library order wins", "We use Kafka as a message queue.", []string{"message queue", "kafka", "queue"}},
		{"capped", "redis mysql database cache kafka docker api", []string{"redis", "mysql", "database", "cache", "kafka"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractConcepts(DefaultLibrary, tt.content))
		})
	}
}

func TestFindMetaphors(t *testing.T) {
	got := FindMetaphors(DefaultLibrary, []string{"Redis", "unknown", "cache"})
	assert.Len(t, got, 2)
	assert.Equal(t, "redis -> a corner shop", got[0].String())
	assert.Equal(t, "cache", got[1].Concept)

	assert.Empty(t, FindMetaphors(DefaultLibrary, nil))
}
