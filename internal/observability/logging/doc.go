// Package logging provides structured logging helpers on top of log/slog.
//
// Loggers travel through the delivery pipeline on the context so that every line written
// for one message carries the same message_id:
//
//	logger := logging.WithMessageID(logging.FromContext(ctx), req.MessageID)
//	ctx = logging.WithLogger(ctx, logger)
//
// Provider errors can embed credentials (SMTP passwords, bearer tokens, DSNs). Run them
// through SanitizeError before logging or persisting them.
package logging
