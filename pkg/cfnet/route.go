package cfnet

import (
	"github.com/relaycore/cfcore/pkg/cfnotify"
	"github.com/relaycore/cfcore/pkg/cftask"
	"github.com/relaycore/cfcore/pkg/cfthread"
)

// defaultPumpWaitMillis bounds each PumpNotifier iteration's blocking
// wait so it reliably notices thread.StopRequested() even when nothing
// is ever signalled.
const defaultPumpWaitMillis = 1000

// PumpNotifier runs the event-routing loop: it blocks on notifier.Wait,
// and for every delivered event whose cookie is a *cftask.Task, signals
// that task with the readiness translated into cftask.EventRead /
// cftask.EventWrite. It returns once thread.StopRequested() is true.
//
// The loop runs on its own cfthread.Thread, wiring the notifier's
// delivered events into Task.Signal, separate from the TaskPool
// workers running ordinary Tasks.
func PumpNotifier(thread *cfthread.Thread, notifier *cfnotify.Notifier) {
	for !thread.StopRequested() {
		ev, ok, err := notifier.Wait(defaultPumpWaitMillis)
		if err != nil || !ok {
			continue
		}
		task, isTask := ev.Cookie.(*cftask.Task)
		if !isTask {
			continue
		}
		var bits cftask.EventFlags
		if ev.Interest&cfnotify.Readable != 0 {
			bits |= cftask.EventRead
		}
		if ev.Interest&cfnotify.Writable != 0 {
			bits |= cftask.EventWrite
		}
		task.Signal(bits)
	}
}
