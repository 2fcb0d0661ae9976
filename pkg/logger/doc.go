// Package logger provides the structured logging interface used throughout
// igresolver.
//
// It wraps zerolog. Console output is colourised for local runs and JSON lines
// are written when the format is "json", which is what the HTTP server uses in
// deployment. A log file may be added alongside either.
//
//	log, err := logger.New(&cfg.Logging)
//	log.WithField("tier", "embed").WarnWithFields("tier miss", map[string]interface{}{
//	    "operation": "get_post",
//	    "error":     err,
//	})
//
// Request scoped fields (the request id, for example) travel in the context:
//
//	ctx = logger.ContextWithFields(ctx, map[string]interface{}{"request_id": id})
//	log.WithContext(ctx).Info("resolving post")
package logger
