// Package watcher turns file system notifications into refresh activity.
//
// Raw fsnotify events are filtered against exclude patterns and coalesced by
// a Debouncer. While events are pending or a batch is being refreshed the
// scanning signal is raised, which keeps idle callbacks from running. Each
// batch is handed to a Refresher, which runs it as a heavy activity that
// suspends background tasks and then queues a rescan for the changed paths.
//
// Usage:
//
//	w, err := watcher.New(root, watcher.Options{Signal: scanning})
//	if err != nil {
//	    return err
//	}
//	r := watcher.NewRefresher(w, coordinator, newRescan)
//	go r.Run(ctx)
//	return w.Run(ctx)
package watcher
