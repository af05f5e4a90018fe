package builtin

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unillm/unillm/internal/tool"
)

func TestRegisterAll(t *testing.T) {
	r := tool.NewRegistry()
	require.NoError(t, RegisterAll(r))
	assert.Equal(t, []string{"calculate", "current_time", "web_fetch"}, r.Names())
}

func TestCalculate(t *testing.T) {
	run := calculateTool().Run
	ctx := context.Background()

	tests := []struct {
		expr string
		want string
	}{
		{"2 + 3 * 4", "14"},
		{"(2 + 3) * 4", "20"},
		{"-3 + 10", "7"},
		{"10 / 4", "2.5"},
		{"1.5 * 2", "3"},
		{"2 * (3 + (4 - 1))", "12"},
	}
	for _, tt := range tests {
		args, _ := json.Marshal(map[string]string{"expression": tt.expr})
		got, err := run(ctx, args)
		require.NoError(t, err, tt.expr)
		assert.Equal(t, tt.want, got, tt.expr)
	}
}

func TestCalculateErrors(t *testing.T) {
	run := calculateTool().Run
	ctx := context.Background()

	for _, expr := range []string{"1 / 0", "2 +", "(1 + 2", "abc", "1 2"} {
		args, _ := json.Marshal(map[string]string{"expression": expr})
		_, err := run(ctx, args)
		assert.Error(t, err, expr)
	}
}

func TestCurrentTime(t *testing.T) {
	run := timeTool().Run
	ctx := context.Background()

	out, err := run(ctx, nil)
	require.NoError(t, err)
	parsed, err := time.Parse(time.RFC3339, out)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now(), parsed, time.Minute)

	args, _ := json.Marshal(map[string]string{"timezone": "America/New_York"})
	_, err = run(ctx, args)
	require.NoError(t, err)

	args, _ = json.Marshal(map[string]string{"timezone": "Mars/Olympus"})
	_, err = run(ctx, args)
	assert.Error(t, err)
}

func TestWebFetchRejectsBadURL(t *testing.T) {
	run := webFetchTool().Run
	args, _ := json.Marshal(map[string]string{"url": "ftp://example.com"})
	_, err := run(context.Background(), args)
	assert.Error(t, err)
}
