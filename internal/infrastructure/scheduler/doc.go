// Package scheduler runs timetabled's timers on gocron.
//
// Once arms the single outstanding transition timer of a timetable; the
// returned OneShot is cancelled before every re-arm. Every runs periodic
// maintenance such as state history pruning.
//
//	s, err := scheduler.New(scheduler.Options{Location: cfg.Location(), Logger: log})
//	if err != nil {
//	    return err
//	}
//	s.Start()
//	defer s.Stop()
//
//	handle, err := s.Once(next, fire)
//	...
//	handle.Cancel()
package scheduler
