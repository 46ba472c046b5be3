package cmdutils

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/openkcm/common-sdk/pkg/health"
	"github.com/stretchr/testify/assert"

	"github.com/openkcm/session-client/internal/config"
)

func TestCobraCommand(t *testing.T) {
	businessFunc := func(ctx context.Context, cfg *config.Config) error {
		return nil
	}

	t.Run("creates command with correct properties", func(t *testing.T) {
		wrapperFunc := func(ctx context.Context, fn BusinessFunc, cfg *config.Config) error {
			return fn(ctx, cfg)
		}

		cmd := CobraCommand("test-cmd", "short desc", "long description", "v1.0.0", wrapperFunc, businessFunc)

		assert.Equal(t, "test-cmd", cmd.Use)
		assert.Equal(t, "short desc", cmd.Short)
		assert.Equal(t, "long description", cmd.Long)
		assert.NotNil(t, cmd.RunE)
	})

	t.Run("RunE returns error when config loading fails", func(t *testing.T) {
		t.Chdir(t.TempDir())
		t.Setenv("HOME", t.TempDir())

		wrapperCalled := false
		wrapperFunc := func(ctx context.Context, fn BusinessFunc, cfg *config.Config) error {
			wrapperCalled = true
			return errors.New("wrapper error")
		}

		cmd := CobraCommand("test", "short", "long", "v1.0.0", wrapperFunc, businessFunc)
		cmd.SetArgs([]string{})

		// No config file exists, so the wrapper is never reached
		err := cmd.Execute()
		assert.ErrorContains(t, err, "loading config")
		assert.False(t, wrapperCalled)
	})
}

func TestStatusListener(t *testing.T) {
	tests := []struct {
		name  string
		state health.State
	}{
		{
			name: "handles empty state",
			state: health.State{
				Status:     "up",
				CheckState: map[string]health.CheckState{},
			},
		},
		{
			name: "handles state with multiple check states",
			state: health.State{
				Status: "degraded",
				CheckState: map[string]health.CheckState{
					"valkey": {
						Status: "down",
						Result: errors.New("connection refused"),
					},
					"issuer": {
						Status: "up",
					},
				},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NotPanics(t, func() {
				statusListener(t.Context(), tt.state)
			})
		})
	}
}

func TestHealthStatusTimeout(t *testing.T) {
	assert.Equal(t, 5*time.Second, healthStatusTimeout)
}

func ExampleCobraCommand() {
	businessFunc := func(ctx context.Context, cfg *config.Config) error {
		fmt.Println("Running business logic")
		return nil
	}

	wrapperFunc := func(ctx context.Context, fn BusinessFunc, cfg *config.Config) error {
		fmt.Println("Wrapper function called")
		return fn(ctx, cfg)
	}

	cmd := CobraCommand(
		"example",
		"Example command",
		"This is an example of how to use CobraCommand",
		"v1.0.0",
		wrapperFunc,
		businessFunc,
	)

	fmt.Printf("Command use: %s\n", cmd.Use)
	// Output: Command use: example
}
