// Package mcp serves the action catalog as Model Context Protocol tools.
package mcp

import (
	"context"
	"encoding/json"
	"io"
	"log"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/sirupsen/logrus"

	"github.com/ggonzalez94/agentkit-go/internal/actions"
	"github.com/ggonzalez94/agentkit-go/internal/logging"
)

const ServerName = "agentkit"

type Tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"inputSchema"`
}

// Tools describes the catalog the way NewServer registers it.
func Tools(kit *actions.AgentKit) ([]Tool, error) {
	out := make([]Tool, 0, len(kit.Actions()))
	for _, action := range kit.Actions() {
		schema, err := json.Marshal(action.Schema)
		if err != nil {
			return nil, err
		}
		out = append(out, Tool{Name: action.Name, Description: action.Description, InputSchema: schema})
	}
	return out, nil
}

func NewServer(kit *actions.AgentKit, version string, logger logrus.FieldLogger) (*server.MCPServer, error) {
	if logger == nil {
		logger = logging.Discard()
	}
	tools, err := Tools(kit)
	if err != nil {
		return nil, err
	}
	s := server.NewMCPServer(ServerName, version, server.WithToolCapabilities(true), server.WithRecovery())
	for _, t := range tools {
		s.AddTool(mcp.NewToolWithRawSchema(t.Name, t.Description, t.InputSchema), handler(kit, t.Name, logger))
	}
	return s, nil
}

func handler(kit *actions.AgentKit, name string, logger logrus.FieldLogger) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args, err := json.Marshal(req.GetArguments())
		if err != nil {
			return mcp.NewToolResultError("invalid arguments: " + err.Error()), nil
		}
		result, err := kit.Invoke(ctx, name, args)
		if err != nil {
			logger.WithFields(logrus.Fields{"tool": name}).WithError(err).Info("tool call rejected")
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(result), nil
	}
}

// Serve runs s over the given stdio streams until ctx is done or stdin closes.
func Serve(ctx context.Context, s *server.MCPServer, stdin io.Reader, stdout io.Writer, logger *logrus.Logger) error {
	stdio := server.NewStdioServer(s)
	if logger != nil {
		stdio.SetErrorLogger(log.New(logger.WriterLevel(logrus.ErrorLevel), "", 0))
	}
	return stdio.Listen(ctx, stdin, stdout)
}
