package client

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"toolhub/internal/domain"
	"toolhub/internal/telemetry"
	"toolhub/internal/transport"
)

// Discover fetches the provider's catalog and publishes it into the shared
// registries. Requires connected. Registration happens page by page and is
// never rolled back: a failure partway leaves the already-registered
// entries in place and moves the client to failed with *DiscoveryError.
func (c *Client) Discover(ctx context.Context) error {
	c.mu.Lock()
	if c.state != domain.StateConnected {
		state := c.state
		c.mu.Unlock()
		return &domain.DiscoveryError{
			Provider: c.name,
			Err:      fmt.Errorf("%w: state %q", domain.ErrNotConnected, state),
		}
	}
	prev := c.state
	conn := c.conn
	caps := c.caps
	c.state = domain.StateDiscovering
	c.mu.Unlock()
	c.fireState(prev, domain.StateDiscovering)

	started := time.Now()

	// Stale entries from this provider's previous cycle vanish before the
	// fresh catalog lands.
	if c.tools != nil {
		c.tools.RemoveProvider(c.name)
	}
	if c.prompts != nil {
		c.prompts.RemoveProvider(c.name)
	}

	var toolCount, promptCount int
	if caps.Tools && c.tools != nil {
		n, err := c.discoverTools(ctx, conn)
		if err != nil {
			return c.failDiscovery(ctx, started, err)
		}
		toolCount = n
	}
	if caps.Prompts && c.prompts != nil {
		n, err := c.discoverPrompts(ctx, conn)
		if err != nil {
			return c.failDiscovery(ctx, started, err)
		}
		promptCount = n
	}

	c.mu.Lock()
	c.toolCount = toolCount
	c.promptCount = promptCount
	c.settled = time.Since(c.startedAt)
	c.mu.Unlock()
	c.setState(domain.StateReady)

	c.metrics.ObserveDiscovery(c.name, time.Since(started), nil)
	c.metrics.SetRegisteredDefinitions(c.name, "tool", toolCount)
	c.metrics.SetRegisteredDefinitions(c.name, "prompt", promptCount)
	c.logger.Info("provider ready",
		telemetry.EventField(telemetry.EventDiscoverSuccess),
		zap.Int("tools", toolCount),
		zap.Int("prompts", promptCount),
		telemetry.DurationField(time.Since(started)))
	return nil
}

// failDiscovery releases the connection alongside the state change: failed
// is terminal, so holding a dead provider's subprocess would only leak it.
func (c *Client) failDiscovery(ctx context.Context, started time.Time, err error) error {
	discErr := &domain.DiscoveryError{Provider: c.name, Err: err}
	c.mu.Lock()
	conn := c.conn
	stop := c.stop
	c.conn = nil
	c.stop = nil
	c.lastErr = discErr
	c.settled = time.Since(c.startedAt)
	c.mu.Unlock()

	c.teardown(ctx, conn, stop)
	c.setState(domain.StateFailed)

	c.metrics.ObserveDiscovery(c.name, time.Since(started), discErr)
	return discErr
}

func (c *Client) discoverTools(ctx context.Context, conn transport.Conn) (int, error) {
	allowed := allowedTools(c.spec)
	count := 0
	cursor := ""
	for {
		params := &mcp.ListToolsParams{Cursor: cursor}
		raw, err := conn.Call(ctx, "tools/list", params)
		if err != nil {
			return count, fmt.Errorf("tools/list: %w", err)
		}
		var result mcp.ListToolsResult
		if err := transport.DecodeResult(raw, &result); err != nil {
			return count, fmt.Errorf("tools/list: %w", err)
		}

		for _, tool := range result.Tools {
			if tool == nil || tool.Name == "" {
				continue
			}
			if !allowed(tool.Name) {
				continue
			}
			rawDef, err := json.Marshal(tool)
			if err != nil {
				c.logger.Warn("skip undecodable tool", zap.String("tool", tool.Name), zap.Error(err))
				continue
			}
			c.tools.Register(domain.ToolDefinition{
				Provider:    c.name,
				Name:        tool.Name,
				Description: tool.Description,
				Raw:         rawDef,
			})
			count++
		}

		if result.NextCursor == "" {
			return count, nil
		}
		cursor = result.NextCursor
	}
}

func (c *Client) discoverPrompts(ctx context.Context, conn transport.Conn) (int, error) {
	count := 0
	cursor := ""
	for {
		params := &mcp.ListPromptsParams{Cursor: cursor}
		raw, err := conn.Call(ctx, "prompts/list", params)
		if err != nil {
			return count, fmt.Errorf("prompts/list: %w", err)
		}
		var result mcp.ListPromptsResult
		if err := transport.DecodeResult(raw, &result); err != nil {
			return count, fmt.Errorf("prompts/list: %w", err)
		}

		for _, prompt := range result.Prompts {
			if prompt == nil || prompt.Name == "" {
				continue
			}
			rawDef, err := json.Marshal(prompt)
			if err != nil {
				c.logger.Warn("skip undecodable prompt", zap.String("prompt", prompt.Name), zap.Error(err))
				continue
			}
			c.prompts.Register(domain.PromptDefinition{
				Provider:    c.name,
				Name:        prompt.Name,
				Description: prompt.Description,
				Raw:         rawDef,
			})
			count++
		}

		if result.NextCursor == "" {
			return count, nil
		}
		cursor = result.NextCursor
	}
}

func allowedTools(spec domain.ProviderSpec) func(string) bool {
	if len(spec.IncludeTools) == 0 {
		return func(string) bool { return true }
	}
	allowed := make(map[string]struct{}, len(spec.IncludeTools))
	for _, name := range spec.IncludeTools {
		allowed[name] = struct{}{}
	}
	return func(name string) bool {
		_, ok := allowed[name]
		return ok
	}
}
