package workflow

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/ofujimoto/foreman/internal/model"
)

// watchStateFile cancels the returned context when the state file's
// desired_state flips to pause or terminated mid-cycle. The state file is
// replaced by atomic rename, so the watch is on its directory and events
// are filtered by name.
func (c *Controller) watchStateFile(ctx context.Context) (context.Context, func(), error) {
	statePath := c.state.Path()
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return ctx, nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(statePath)); err != nil {
		watcher.Close()
		return ctx, nil, fmt.Errorf("watch %s: %w", filepath.Dir(statePath), err)
	}

	wctx, cancel := context.WithCancel(ctx)
	go func() {
		for {
			select {
			case <-wctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Base(event.Name) != filepath.Base(statePath) {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
					continue
				}
				if c.suspendRequested() {
					cancel()
					return
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				c.logger.Printf("workflow_watch error=%v", err)
			}
		}
	}()

	stop := func() {
		cancel()
		watcher.Close()
	}
	return wctx, stop, nil
}

func (c *Controller) suspendRequested() bool {
	st := c.state.Read()
	switch st.DesiredState {
	case model.RunPause, model.RunTerminated:
		c.logger.Printf("workflow_suspend desired_state=%s set_by=%s", st.DesiredState, st.SetBy)
		return true
	}
	return false
}
