// Package gmail_tools provides MCP (Model Context Protocol) tools for
// sending mail through Gmail.
//
// The package exposes one tool:
//
//   - send_gmail: Send an email on behalf of an authorized user. The
//     user_id argument references a credential stored by the broker's
//     authorization callback; the broker refreshes it transparently
//     before the send.
//
// The to, cc, and bcc arguments accept either a single address string
// or an array of addresses; both forms are normalized and validated
// before any credential lookup or network call. The tool emits
// lifecycle notifications to the connected client (start, a midpoint
// progress update via the request's progress token, and completion)
// and returns a JSON payload with the provider-assigned message id.
package gmail_tools
