package gmail_tools

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"golang.org/x/oauth2"

	"github.com/my-personal-agent/google-service/internal/gmail"
	"github.com/my-personal-agent/google-service/internal/server"
	"github.com/my-personal-agent/google-service/internal/tools/common"
)

// Error types carried in failure payloads. Validation failures are
// rejected before any credential lookup or network call.
const (
	errTypeValidation = "validation"
	errTypeCredential = "credential"
	errTypeSend       = "send"
)

// RegisterGmailTools registers the Gmail tools with the MCP server.
func RegisterGmailTools(s *mcpserver.MCPServer, sc *server.ServerContext) error {
	sendTool := mcp.NewTool("send_gmail",
		mcp.WithDescription("Send an email through Gmail on behalf of an authorized user"),
		mcp.WithString("user_id",
			mcp.Required(),
			mcp.Description("Credential reference returned by the authorization callback (google_id)"),
		),
		mcp.WithString("to",
			mcp.Required(),
			mcp.Description("Recipient email address, or an array of addresses"),
		),
		mcp.WithString("subject",
			mcp.Required(),
			mcp.Description("Email subject"),
		),
		mcp.WithString("body",
			mcp.Required(),
			mcp.Description("Email body content"),
		),
		mcp.WithString("cc",
			mcp.Description("CC email address, or an array of addresses"),
		),
		mcp.WithString("bcc",
			mcp.Description("BCC email address, or an array of addresses"),
		),
		mcp.WithBoolean("isHTML",
			mcp.Description("Whether the body is HTML (default: false for plain text)"),
		),
	)

	s.AddTool(sendTool, common.InstrumentedToolHandlerWithService(
		"send_gmail", "gmail", "send", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleSendGmail(ctx, request, sc)
		},
	))

	return nil
}

func handleSendGmail(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	userTokenID := common.GetUserTokenIDFromArgs(args)
	if userTokenID == "" {
		return validationError("'user_id' field is required"), nil
	}

	to, ok := common.NormalizeRecipients(args["to"])
	if !ok {
		return validationError("'to' must be an email address or an array of addresses"), nil
	}
	if len(to) == 0 {
		return validationError("'to' field is required"), nil
	}

	cc, ok := common.NormalizeRecipients(args["cc"])
	if !ok {
		return validationError("'cc' must be an email address or an array of addresses"), nil
	}
	bcc, ok := common.NormalizeRecipients(args["bcc"])
	if !ok {
		return validationError("'bcc' must be an email address or an array of addresses"), nil
	}

	subject, _ := args["subject"].(string)
	if subject == "" {
		return validationError("'subject' field is required"), nil
	}
	body, _ := args["body"].(string)
	if body == "" {
		return validationError("'body' field is required"), nil
	}

	isHTML := false
	if isHTMLVal, ok := args["isHTML"].(bool); ok {
		isHTML = isHTMLVal
	}

	for _, list := range [][]string{to, cc, bcc} {
		if err := gmail.ValidateAddresses(list); err != nil {
			return validationError(err.Error()), nil
		}
	}

	// Validation passed; everything below touches credentials or the
	// network and reports non-validation error types.
	correlationID := uuid.NewString()
	notifyMessage(ctx, "info", map[string]any{
		"event":            "send_gmail_started",
		"correlation_id":   correlationID,
		"session_id":       sessionID(ctx),
		"total_recipients": len(to) + len(cc) + len(bcc),
	})

	token, _, err := sc.Broker().Credentials(ctx, userTokenID)
	if err != nil {
		return failureResult(errTypeCredential, fmt.Sprintf("failed to load credentials: %v", err), correlationID), nil
	}

	client, err := gmail.NewClient(ctx, oauth2.StaticTokenSource(token), sc.GmailOptions()...)
	if err != nil {
		return failureResult(errTypeSend, fmt.Sprintf("failed to create Gmail client: %v", err), correlationID), nil
	}

	notifyProgress(ctx, request, 50, 100, "calling Gmail API")

	messageID, err := client.SendEmail(ctx, &gmail.EmailMessage{
		To:      to,
		Cc:      cc,
		Bcc:     bcc,
		Subject: subject,
		Body:    body,
		IsHTML:  isHTML,
	})
	if err != nil {
		notifyMessage(ctx, "error", map[string]any{
			"event":          "send_gmail_failed",
			"correlation_id": correlationID,
			"error":          err.Error(),
		})
		return failureResult(errTypeSend, fmt.Sprintf("failed to send email: %v", err), correlationID), nil
	}

	notifyMessage(ctx, "info", map[string]any{
		"event":          "send_gmail_completed",
		"correlation_id": correlationID,
		"message_id":     messageID,
	})

	payload, err := json.Marshal(map[string]any{
		"success":          true,
		"message_id":       messageID,
		"timestamp":        time.Now().UTC().Format(time.RFC3339),
		"recipients":       to,
		"total_recipients": len(to) + len(cc) + len(bcc),
	})
	if err != nil {
		return failureResult(errTypeSend, fmt.Sprintf("failed to encode result: %v", err), correlationID), nil
	}

	return mcp.NewToolResultText(string(payload)), nil
}

// validationError builds the error payload for input rejected before
// any credential lookup or network call.
func validationError(message string) *mcp.CallToolResult {
	payload, _ := json.Marshal(map[string]any{
		"success":    false,
		"error_type": errTypeValidation,
		"message":    message,
	})
	return mcp.NewToolResultError(string(payload))
}

func failureResult(errType, message, correlationID string) *mcp.CallToolResult {
	payload, _ := json.Marshal(map[string]any{
		"success":        false,
		"error_type":     errType,
		"message":        message,
		"correlation_id": correlationID,
	})
	return mcp.NewToolResultError(string(payload))
}

// notifyMessage sends a logging notification to the connected client.
// A no-op when the request did not arrive through an MCP server.
func notifyMessage(ctx context.Context, level string, data map[string]any) {
	srv := mcpserver.ServerFromContext(ctx)
	if srv == nil {
		return
	}
	_ = srv.SendNotificationToClient(ctx, "notifications/message", map[string]any{
		"level": level,
		"data":  data,
	})
}

// notifyProgress reports progress through the request's progress token,
// if the client supplied one.
func notifyProgress(ctx context.Context, request mcp.CallToolRequest, progress, total float64, message string) {
	if request.Params.Meta == nil || request.Params.Meta.ProgressToken == nil {
		return
	}
	srv := mcpserver.ServerFromContext(ctx)
	if srv == nil {
		return
	}
	_ = srv.SendNotificationToClient(ctx, "notifications/progress", map[string]any{
		"progressToken": request.Params.Meta.ProgressToken,
		"progress":      progress,
		"total":         total,
		"message":       message,
	})
}

// sessionID returns the client session id for correlation, or "" when
// the request is not bound to a session.
func sessionID(ctx context.Context) string {
	if session := mcpserver.ClientSessionFromContext(ctx); session != nil {
		return session.SessionID()
	}
	return ""
}
