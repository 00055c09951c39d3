// Package watcher keeps an inbox directory and the knowledge base in step.
//
// An fsnotify Watcher reports debounced batches of FileEvents for files
// with a supported extension. An Ingestor applies each batch to the
// engine: a created file is added, a modified file is removed and added
// again, and a deleted or renamed file is removed.
//
//	w, err := watcher.New(watcher.DefaultOptions())
//	if err != nil {
//	    return err
//	}
//	defer w.Stop()
//	go func() { _ = w.Start(ctx, inbox) }()
//
//	ing := watcher.NewIngestor(engine, inbox, watcher.DefaultOptions())
//	if err := ing.Sync(ctx); err != nil {
//	    return err
//	}
//	ing.Run(ctx, w.Events())
package watcher
