// Package engine wires the Atomizer subsystems together and provides the
// application-level API for registering handlers and submitting work.
//
// The engine package exists to break an import cycle: the root atomizer
// package defines Entity and the sentinel errors (imported by job, cron
// and the stores) and therefore cannot import those packages back.
// Engine sits above every subsystem package and below the application.
//
// # Building an Engine
//
//	s, err := postgres.New(ctx, dsn)
//
//	critical := queue.MustOptions("critical",
//	    queue.WithDegreeOfParallelism(16),
//	    queue.WithRetry(backoff.MustFixed(5, 10*time.Second, true)),
//	)
//
//	eng, err := engine.Build(s,
//	    engine.WithQueues(queue.DefaultOptions(), critical),
//	    engine.WithExtension(myExtension),
//	    engine.WithMiddleware(middleware.Timeout(time.Minute)),
//	)
//
// # Registering Handlers
//
// Handlers are ordinary functions keyed by their payload type:
//
//	engine.Register(eng, func(ctx context.Context, p SendEmail) error {
//	    return mailer.Send(ctx, p.To, p.Body)
//	})
//
// # Submitting Work
//
//	engine.Enqueue(ctx, eng, SendEmail{To: "a@example.com"})
//	engine.Schedule(ctx, eng, SendEmail{To: "b@example.com"}, time.Now().Add(time.Hour))
//	engine.ScheduleRecurring(ctx, eng, Digest{}, job.MustKey("daily-digest"), "0 8 * * *",
//	    cron.WithTimeZone("Europe/Copenhagen"),
//	    cron.WithMisfirePolicy(cron.MisfireCatchUp),
//	)
//
// # Lifecycle
//
//	eng.Start(ctx)
//	defer eng.Stop(ctx)
package engine
