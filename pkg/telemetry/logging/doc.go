// Package logging builds the process logger.
//
// The logger is a plain *slog.Logger whose handler also copies governance
// fields stored in the context (actor, operation, draft id and the active
// trace) onto every record logged with a *Context method:
//
//	logger, err := logging.New(logging.Config{Level: "info", Format: "json"})
//	ctx = logging.WithActor(ctx, "alice")
//	logger.InfoContext(ctx, "draft approved", "draft_id", id)
//
// Components derive their own logger with logger.With("component", name).
package logging
