package client

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"toolhub/internal/domain"
	"toolhub/internal/transport"
)

// CallTool invokes a tool on a ready provider. The result payload comes back
// raw; wire errors surface as *domain.ProtocolError.
func (c *Client) CallTool(ctx context.Context, name string, args json.RawMessage) (json.RawMessage, error) {
	conn, err := c.readyConn()
	if err != nil {
		return nil, err
	}
	params := &mcp.CallToolParams{
		Name:      name,
		Arguments: args,
	}
	return conn.Call(ctx, "tools/call", params)
}

// GetPrompt renders a prompt template on a ready provider.
func (c *Client) GetPrompt(ctx context.Context, name string, args map[string]string) (json.RawMessage, error) {
	conn, err := c.readyConn()
	if err != nil {
		return nil, err
	}
	params := &mcp.GetPromptParams{
		Name:      name,
		Arguments: args,
	}
	return conn.Call(ctx, "prompts/get", params)
}

// Ping checks liveness over any established connection, ready or not.
func (c *Client) Ping(ctx context.Context) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("%w: provider %q", domain.ErrNotConnected, c.name)
	}
	_, err := conn.Call(ctx, "ping", nil)
	return err
}

func (c *Client) readyConn() (transport.Conn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != domain.StateReady || c.conn == nil {
		return nil, fmt.Errorf("%w: provider %q in state %q", domain.ErrNotConnected, c.name, c.state)
	}
	return c.conn, nil
}
