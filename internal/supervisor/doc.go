// Package supervisor re-runs a failing session with exponential backoff.
//
// The sync engine never reconnects by itself; a lost connection simply ends
// engine.Serve. The supervisor owns that decision: it calls the session
// function again after a delay that doubles on each consecutive failure and
// resets once a session has stayed up long enough.
//
// Example usage:
//
//	sup := supervisor.New(supervisor.Config{
//	    Name:               "mqtt",
//	    RestartOnFailure:   true,
//	    RestartDelay:       5 * time.Second,
//	    MaxRestartDelay:    time.Minute,
//	    MaxRestartAttempts: 0,
//	}, func(ctx context.Context) error {
//	    return eng.Serve(ctx, endpoint)
//	})
//
//	if err := sup.Run(ctx); err != nil {
//	    log.Fatal(err)
//	}
package supervisor
