// Package logger builds the structured *slog.Logger shared by the spooler,
// the queue worker and task bodies.
//
// New assembles a text or JSON handler from functional options and wraps it in
// a decorator that copies values out of context.Context on every record, so a
// job id or environment attached to the task context shows up in every line a
// task logs. Attribute helpers in attr.go keep key names uniform across
// packages:
//
//	log := logger.New(logger.WithEnvironment(environment.Production, "spooler"))
//	log.ErrorContext(ctx, "spooled task failed",
//	    logger.Task("send_email"),
//	    logger.Attempt(2),
//	    logger.Error(err),
//	)
package logger
