// Package logging provides structured logging utilities for the
// google-service broker.
//
// This package centralizes logging patterns to ensure consistent,
// structured logging throughout the codebase using the standard
// library's slog package.
//
// # Usage Patterns
//
// Create the process root logger:
//
//	logger := logging.New(os.Stderr, "production")
//
// Attach standard attributes:
//
//	logger.Info("authorization flow initiated",
//	    logging.ClientID(clientID),
//	    logging.AuthType(authType))
//
// Sanitize sensitive data before logging:
//
//	logger.Debug("token loaded",
//	    logging.UserHash(email),
//	    "token", logging.SanitizeToken(token))
//
// # Security Considerations
//
// User emails are hashed to prevent PII leakage while allowing
// correlation. Tokens are never logged directly.
package logging
