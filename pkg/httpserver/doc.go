// Package httpserver runs an http.Server whose lifetime is bound to a context
// and provides liveness and readiness check handlers.
//
//	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
//	defer stop()
//
//	srv := httpserver.New(cfg, httpserver.WithLogger(log))
//	if err := srv.Run(ctx, router); err != nil {
//		log.Error("server failed", logger.Error(err))
//	}
//
// Cancelling ctx drains in-flight requests for up to Config.ShutdownTimeout.
package httpserver
