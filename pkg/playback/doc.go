// Package playback implements the recitation playback engine: a state
// machine that walks the track queue, decodes each track to PCM, encodes it
// to opus and delivers it over a supervised voice transport.
//
// A single command-processing goroutine owns every state transition. Control
// methods (Begin, Pause, Resume, Skip, SetQueueMode, SetReciter) post
// commands to it and wait for an acknowledgement, so callers never race the
// engine. Transport failures move the engine to a recovering state; once the
// supervisor re-establishes the connection, playback resumes on the same
// track at the last saved offset. The position store is updated on a timer
// while playing and synchronously on every transition away from playing, so
// a crash loses at most one save interval of progress.
//
//	engine, err := playback.New(cfg, playback.Deps{
//		Queue:      q,
//		Supervisor: sup,
//		Positions:  store,
//		Resolver:   resolver,
//		Logger:     logger,
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer engine.Close()
//
//	if err := engine.Begin(ctx, true); err != nil {
//		log.Fatal(err)
//	}
package playback
