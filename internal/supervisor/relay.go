package supervisor

import (
	"bufio"
	"io"
	"log/slog"
	"os"
	"os/exec"

	"github.com/nuko-mc/nuko/internal/events"
)

const maxLineSize = 1 << 20

// outputPipes attaches fresh pipes to the worker's stdout and stderr and
// returns their read ends. cmd.Wait never closes them, so a relay keeps
// reading until every process holding a write end is gone. closeWriters
// must be called once cmd.Start has returned.
func outputPipes(cmd *exec.Cmd) (stdout, stderr *os.File, closeWriters func(), err error) {
	outR, outW, err := os.Pipe()
	if err != nil {
		return nil, nil, nil, err
	}
	errR, errW, err := os.Pipe()
	if err != nil {
		_ = outR.Close()
		_ = outW.Close()
		return nil, nil, nil, err
	}
	cmd.Stdout, cmd.Stderr = outW, errW
	return outR, errR, func() {
		_ = outW.Close()
		_ = errW.Close()
	}, nil
}

// relay copies newline-delimited output of one stream into buf and the bus
// and closes r at end of stream. A read error ends the loop; the rest of the
// stream is discarded so the worker never blocks on a full pipe.
func relay(r io.ReadCloser, id, stream string, buf *LogBuffer, bus *events.Bus, logger *slog.Logger) {
	defer func() { _ = r.Close() }()
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for sc.Scan() {
		line := sc.Text()
		buf.Append(line)
		bus.Publish(events.LogLine(id, stream, line))
	}
	if err := sc.Err(); err != nil {
		logger.Debug("output relay stopped", "instance", id, "stream", stream, "error", err)
		_, _ = io.Copy(io.Discard, r)
	}
}
