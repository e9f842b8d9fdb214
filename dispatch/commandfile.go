package dispatch

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/geekxflood/trapdirector/logging"
)

// CommandFile writes external commands to the Icinga2 command pipe.
type CommandFile struct {
	path string
	log  logging.Logger
	now  func() time.Time
	mu   sync.Mutex
}

// NewCommandFile returns a Submitter writing to path. The file must exist.
func NewCommandFile(path string, log logging.Logger) *CommandFile {
	if log == nil {
		log = logging.NewComponentLogger("dispatch", "command_file")
	}
	return &CommandFile{path: path, log: log, now: time.Now}
}

// Submit appends a PROCESS_SERVICE_CHECK_RESULT command.
func (c *CommandFile) Submit(ctx context.Context, check Check) (Result, error) {
	if err := validate(check); err != nil {
		return Result{}, err
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	line := c.format(check)
	c.log.Info("sending service check", "command", line, "file", c.path)

	c.mu.Lock()
	defer c.mu.Unlock()

	f, err := os.OpenFile(c.path, os.O_WRONLY|os.O_APPEND, 0)
	if err != nil {
		return Result{}, fmt.Errorf("opening command file: %w", err)
	}
	if _, err := f.WriteString(line + "\n"); err != nil {
		_ = f.Close()
		return Result{}, fmt.Errorf("writing command file: %w", err)
	}
	if err := f.Close(); err != nil {
		return Result{}, fmt.Errorf("closing command file: %w", err)
	}
	return Result{OK: true, Message: "command written to " + c.path}, nil
}

func (c *CommandFile) format(check Check) string {
	// ';' and newlines would split the command
	display := strings.NewReplacer("\n", " ", "\r", " ", ";", ",").Replace(check.Display)
	return fmt.Sprintf("[%d] PROCESS_SERVICE_CHECK_RESULT;%s;%s;%d;%s",
		c.now().Unix(), check.Host, check.Service, check.State, display)
}
