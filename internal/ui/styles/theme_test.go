package styles

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tgienger/devdesk/internal/models"
)

func TestProgressBar(t *testing.T) {
	bar := ProgressBar(50, 10)
	assert.Equal(t, 5, strings.Count(bar, "█"))
	assert.Equal(t, 5, strings.Count(bar, "░"))

	assert.Equal(t, 4, strings.Count(ProgressBar(150, 4), "█"), "clamped to 100")
	assert.Equal(t, 4, strings.Count(ProgressBar(-3, 4), "░"), "clamped to 0")
	assert.Empty(t, ProgressBar(50, 0))
}

func TestContentWidth(t *testing.T) {
	assert.Equal(t, MaxWidth, ContentWidth(200))
	assert.Equal(t, 40, ContentWidth(40))
}

func TestStatusColor(t *testing.T) {
	assert.Equal(t, Current.Success, StatusColor(models.StatusCompleted))
	assert.Equal(t, Current.Error, StatusColor(models.StatusCancelled))
	assert.Equal(t, Current.ForegroundDim, StatusColor(models.StatusPending))
	assert.Equal(t, Current.Error, PriorityColor(models.PriorityCritical))
	assert.Equal(t, Current.Foreground, PriorityColor(models.PriorityMedium))
}
