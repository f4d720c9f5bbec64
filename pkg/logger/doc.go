// Package logger builds slog loggers configured from the environment and
// enriched with values carried by the context.
//
// New returns a *slog.Logger writing JSON or text. Records logged with a
// context pass through the registered ContextExtractor functions, so the
// active tenant or the request id lands on every line without being passed
// around explicitly.
//
// # Usage
//
//	var cfg logger.Config
//	if err := config.Parse(&cfg); err != nil {
//	    return err
//	}
//	log := logger.New(
//	    logger.WithConfig(cfg),
//	    logger.WithContextExtractors(tenant.LoggerExtractor(m)),
//	)
//	log.InfoContext(ctx, "invoice created", logger.Component("billing"))
//
// WithConfig picks defaults from APP_ENV: development logs text at debug
// level, staging and production log JSON at info level. LOG_LEVEL overrides
// the level.
//
// Attribute helpers such as TenantID, RequestID, TaskID and Error keep key
// names consistent. Error and Errors return an empty attribute for nil
// errors, so they can be passed unconditionally.
package logger
