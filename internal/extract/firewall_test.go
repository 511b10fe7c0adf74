package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/event-assistant/internal/model"
)

func TestToolFirewall(t *testing.T) {
	f, err := NewToolFirewall()
	require.NoError(t, err)

	tool, err := f.Check(Call{Name: "add-event", Args: map[string]any{"title": "Workshop", "start_time": "2025-01-15T09:00"}})
	require.NoError(t, err)
	assert.Equal(t, model.ToolAddEvent, tool)

	_, err = f.Check(Call{Name: "ADD_EVENT", Args: map[string]any{"start_time": "2025-01-15T09:00"}})
	assert.Error(t, err, "title is required")

	_, err = f.Check(Call{Name: "ADD_EVENT", Args: map[string]any{"title": 42.0}})
	assert.Error(t, err)

	_, err = f.Check(Call{Name: "UPDATE_EVENT", Args: map[string]any{"title": "new"}})
	assert.Error(t, err, "needs event_id or original_title")

	_, err = f.Check(Call{Name: "UPDATE_EVENT", Args: map[string]any{"event_id": 3.0, "title": "new"}})
	assert.NoError(t, err)

	_, err = f.Check(Call{Name: "DELETE_EVENT", Args: map[string]any{"event_id": "#12"}})
	assert.NoError(t, err)

	_, err = f.Check(Call{Name: "ORDER_TICKET"})
	assert.NoError(t, err)

	tool, err = f.Check(Call{Name: "SEND_EMAIL", Args: map[string]any{}})
	assert.Error(t, err)
	assert.Equal(t, model.ToolUnknown, tool)
}
