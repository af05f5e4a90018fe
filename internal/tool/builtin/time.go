package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/unillm/unillm/internal/tool"
	"github.com/unillm/unillm/pkg/types"
)

func timeTool() tool.Definition {
	return tool.Definition{
		ToolInfo: types.ToolInfo{
			Name:        "current_time",
			Description: "Returns the current date and time, optionally in a named IANA timezone.",
			Parameters: json.RawMessage(`{
				"type": "object",
				"properties": {
					"timezone": {"type": "string", "description": "IANA timezone name, e.g. Europe/Berlin. Defaults to UTC."}
				}
			}`),
		},
		Run: func(ctx context.Context, args json.RawMessage) (string, error) {
			var input struct {
				Timezone string `json:"timezone"`
			}
			if len(args) > 0 {
				if err := json.Unmarshal(args, &input); err != nil {
					return "", fmt.Errorf("invalid arguments: %w", err)
				}
			}

			loc := time.UTC
			if input.Timezone != "" {
				var err error
				loc, err = time.LoadLocation(input.Timezone)
				if err != nil {
					return "", fmt.Errorf("unknown timezone %q", input.Timezone)
				}
			}
			return time.Now().In(loc).Format(time.RFC3339), nil
		},
	}
}
