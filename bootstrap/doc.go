// Package bootstrap assembles a flowkit process from its configuration.
//
// New builds the provider and processor registries and the run store
// backend. Start installs telemetry, starts the backends and creates the
// run controller. Shutdown stops the controller first, so runs in flight
// are cancelled and recorded before the store closes.
//
//	app, err := bootstrap.New(cfg)
//	if err != nil {
//	    return err
//	}
//	return app.RunTask(ctx, func(ctx context.Context) error {
//	    h, err := app.Controller.Start(ctx, wf, app.Registries(), run.StartOptions{})
//	    if err != nil {
//	        return err
//	    }
//	    _, err = h.Wait(ctx)
//	    return err
//	})
package bootstrap
