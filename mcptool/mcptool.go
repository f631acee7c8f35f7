// Package mcptool registers the gateway's single tool-calling entry point on
// an MCP server. It is the thinnest possible binding of mcp-go over
// sqlgw.Gateway — no agent loop, prompt template, or model client lives here,
// only the translation between MCP's wire shapes and a validate_query call.
package mcptool

import (
	"context"
	"errors"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"

	sqlgw "github.com/sqlsafetygw/gopgsafe"
)

// RegisterTools registers validate_query as an MCP tool on mcpServer,
// routing every call through gw.ValidateQuery.
func RegisterTools(mcpServer *server.MCPServer, gw *sqlgw.Gateway, logger zerolog.Logger) {
	validateQueryTool := mcp.NewTool("validate_query",
		mcp.WithDescription("Validate and rewrite an untrusted SQL query into a read-only, "+
			"table/column whitelisted, user-row-scoped, limit-capped query. Returns the "+
			"rewritten SQL on success, or a rejection reason naming the offending table, "+
			"column, or function."),
		mcp.WithString("sql",
			mcp.Required(),
			mcp.Description("The SQL query to validate"),
		),
		mcp.WithNumber("current_user_id",
			mcp.Required(),
			mcp.Description("The id of the user on whose behalf this query runs; injected into every user-scoped table's filter"),
		),
		mcp.WithBoolean("skip_user_filter",
			mcp.Description("Skip user-row scoping entirely — only meaningful for callers operating outside a specific user's context"),
		),
		mcp.WithNumber("custom_limit",
			mcp.Description("Override the default row limit of 50; any positive value replaces it"),
		),
		mcp.WithReadOnlyHintAnnotation(true),
	)

	mcpServer.AddTool(validateQueryTool, loggedToolHandler(logger, "validate_query", validateQueryHandler(gw)))
}

// validateQueryHandler builds the validate_query tool handler. Split out
// from RegisterTools so it can be exercised directly in tests without a
// live *server.MCPServer.
func validateQueryHandler(gw *sqlgw.Gateway) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		sql, err := req.RequireString("sql")
		if err != nil {
			return mcp.NewToolResultError("sql parameter is required"), nil
		}
		userID, err := req.RequireFloat("current_user_id")
		if err != nil {
			return mcp.NewToolResultError("current_user_id parameter is required"), nil
		}

		gwReq := sqlgw.Request{
			SQL:            sql,
			CurrentUserID:  int(userID),
			SkipUserFilter: req.GetBool("skip_user_filter", false),
		}
		if limit := req.GetFloat("custom_limit", 0); limit > 0 {
			customLimit := int(limit)
			gwReq.CustomLimit = &customLimit
		}

		out, err := gw.ValidateQuery(gwReq)
		if err != nil {
			var gwErr *sqlgw.Error
			if errors.As(err, &gwErr) && gwErr.Guidance != "" {
				return mcp.NewToolResultError(gwErr.Error() + "\n" + gwErr.Guidance), nil
			}
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(out), nil
	}
}

// loggedToolHandler wraps a tool handler to log every call's outcome.
func loggedToolHandler(logger zerolog.Logger, tool string, handler server.ToolHandlerFunc) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		result, err := handler(ctx, req)
		logger.Info().
			Str("tool", tool).
			Bool("is_error", result != nil && result.IsError).
			Msg("tool call")
		return result, err
	}
}
