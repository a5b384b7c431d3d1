package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/suredone/qdone/internal/worker"
)

// installSignalHandler wires SIGINT/SIGTERM into sd per the worker's
// documented state machine: the first signal requests cooperative
// shutdown (the loop finishes its current job, then halts); a second
// force-kills the process group immediately.
func installSignalHandler(sd *worker.Shutdown) {
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		sd.Request()

		<-sigCh
		if pgid, err := syscall.Getpgid(os.Getpid()); err == nil {
			_ = syscall.Kill(-pgid, syscall.SIGKILL)
		}
		os.Exit(1)
	}()
}
