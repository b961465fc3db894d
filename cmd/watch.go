package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/ollama/schema2grammar/fetch"
)

// editors often write a file in several steps
const watchDebounce = 100 * time.Millisecond

// watchSchemas converts the schema files and converts them again after
// every change until ctx is done. Conversion errors are reported to errOut
// without stopping the watch.
func watchSchemas(ctx context.Context, out, errOut io.Writer, files []string, opts *convertOptions) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	watched := make(map[string]bool)
	dirs := make(map[string]bool)
	for _, file := range files {
		if file == "-" || fetch.IsURL(file) {
			return fmt.Errorf("--watch needs schema files, got %q", file)
		}
		abs, err := filepath.Abs(file)
		if err != nil {
			return err
		}
		watched[abs] = true

		// watch the directory so that files replaced by rename are seen
		if dir := filepath.Dir(abs); !dirs[dir] {
			if err := w.Add(dir); err != nil {
				return err
			}
			dirs[dir] = true
		}
	}

	run := func() {
		if err := convertAll(ctx, out, nil, files, opts); err != nil {
			fmt.Fprintln(errOut, "Error:", err)
		}
	}
	run()

	var pending <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if abs, err := filepath.Abs(ev.Name); err != nil || !watched[abs] {
				continue
			}
			slog.Debug("schema changed", "file", ev.Name, "op", ev.Op.String())
			pending = time.After(watchDebounce)
		case <-pending:
			pending = nil
			run()
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			slog.Warn("watch error", "error", err)
		}
	}
}
