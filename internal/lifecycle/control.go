package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// defaultInterval is used when ControlFile.Interval is not positive.
const defaultInterval = 10 * time.Second

// ErrDisabled is returned by Wait when no control file is configured.
var ErrDisabled = errors.New("lifecycle: control file disabled")

// ControlFile watches a file whose removal requests shutdown.
type ControlFile struct {
	// Path of the control file. Empty disables the watcher.
	Path string

	// Interval between existence checks.
	Interval time.Duration
}

// Enabled reports whether a control file is configured.
func (c ControlFile) Enabled() bool {
	return c.Path != ""
}

// Create makes the control file if it does not exist yet.
// An existing file is left untouched.
func (c ControlFile) Create() error {
	if !c.Enabled() {
		return nil
	}

	if dir := filepath.Dir(c.Path); dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return fmt.Errorf("creating control file directory: %w", err)
		}
	}

	f, err := os.OpenFile(c.Path, os.O_RDONLY|os.O_CREATE, 0600)
	if err != nil {
		return fmt.Errorf("creating control file: %w", err)
	}
	return f.Close()
}

// Exists reports whether the control file is present.
func (c ControlFile) Exists() (bool, error) {
	_, err := os.Stat(c.Path)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, os.ErrNotExist):
		return false, nil
	default:
		return false, fmt.Errorf("checking control file: %w", err)
	}
}

// Wait blocks until the control file disappears or ctx is done.
//
// Returns:
//   - nil: The file was removed (stop requested)
//   - error: ctx.Err(), ErrDisabled, or a stat failure other than not-exist
func (c ControlFile) Wait(ctx context.Context) error {
	if !c.Enabled() {
		return ErrDisabled
	}

	interval := c.Interval
	if interval <= 0 {
		interval = defaultInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		exists, err := c.Exists()
		if err != nil {
			return err
		}
		if !exists {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
