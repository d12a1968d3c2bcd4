package native

import (
	"context"
	"strings"
	"time"
	_ "time/tzdata"
)

// TimeArgs are the arguments of the current_time tool.
type TimeArgs struct {
	Timezone string `json:"timezone,omitempty" jsonschema:"description=IANA timezone such as Asia/Shanghai (default UTC)"`
}

func (c *config) currentTime(_ context.Context, args TimeArgs) (string, error) {
	now := c.now()

	name := strings.TrimSpace(args.Timezone)
	if name == "" {
		name = "UTC"
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return "Current time (UTC): " + now.UTC().Format("2006-01-02 15:04:05"), nil
	}
	return "Current time: " + now.In(loc).Format("2006-01-02 15:04:05 MST"), nil
}
