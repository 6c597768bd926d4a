package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sync"

	"checkin-backend/scanner"
)

// runPlain reads one command per line from in and writes answers to
// out. Used with --plain and for hardware scanners that type into a
// terminal.
func runPlain(ctx context.Context, c *console, reports <-chan scanner.DrainReport, in io.Reader, out io.Writer) error {
	var mu sync.Mutex
	emit := func(text string) {
		mu.Lock()
		defer mu.Unlock()
		fmt.Fprintln(out, text)
	}

	done := make(chan struct{})
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		for {
			select {
			case res := <-c.loop.Results():
				emit(formatResult(res))
			case r, ok := <-reports:
				if !ok {
					reports = nil
					continue
				}
				emit(formatReport(r))
			case <-done:
				return
			}
		}
	}()

	emit(c.status(ctx))
	lines := bufio.NewScanner(in)
	for lines.Scan() {
		if ctx.Err() != nil {
			break
		}
		cmd, err := parseCommand(lines.Text())
		if err != nil {
			emit("✗ " + err.Error())
			continue
		}
		if cmd.kind == cmdQuit {
			break
		}
		if reply := c.execute(ctx, cmd); reply != "" {
			emit(reply)
		}
	}

	// let in-flight scans answer before exiting
	c.loop.Wait()
	close(done)
	<-stopped
	for {
		select {
		case res := <-c.loop.Results():
			emit(formatResult(res))
		default:
			return lines.Err()
		}
	}
}
