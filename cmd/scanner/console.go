package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"checkin-backend/apperror"
	"checkin-backend/models"
	"checkin-backend/scanner"
)

// console runs operator commands against a scan loop. The TUI and the
// plain line mode share it.
type console struct {
	sc      *scanner.SessionContext
	loop    *scanner.Loop
	drainer *scanner.Drainer
	timeout time.Duration

	mu         sync.Mutex
	candidates []models.SearchCandidate
}

func newConsole(sc *scanner.SessionContext, loop *scanner.Loop, drainer *scanner.Drainer, timeout time.Duration) *console {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &console{sc: sc, loop: loop, drainer: drainer, timeout: timeout}
}

// execute runs cmd and returns the text to show. Scans answer later on
// the loop's result channel, so an accepted scan returns "".
func (c *console) execute(ctx context.Context, cmd command) string {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	switch cmd.kind {
	case cmdNone:
		return ""
	case cmdScan:
		if c.loop.State() == scanner.StateIdle {
			return "camera is off, /start to scan"
		}
		if !c.loop.HandleDecode(cmd.arg) {
			return "ignored: repeat scan or another check-in in progress"
		}
		return ""
	case cmdSearch:
		return c.search(ctx, cmd.arg)
	case cmdPick:
		c.mu.Lock()
		if cmd.index > len(c.candidates) {
			c.mu.Unlock()
			return fmt.Sprintf("no result %d, run /search first", cmd.index)
		}
		pick := c.candidates[cmd.index-1]
		c.mu.Unlock()
		if !c.loop.SubmitSelection(pick.GuestID) {
			return "another check-in is in progress"
		}
		return ""
	case cmdRefresh:
		n, err := c.sc.Directory.Refresh(ctx, c.sc)
		if err != nil {
			if apperror.Is(err, apperror.KindTransient) {
				c.drainer.SetOnline(false)
			}
			return "refresh failed: " + describeError(err)
		}
		c.drainer.SetOnline(true)
		return fmt.Sprintf("guest list refreshed: %d guests", n)
	case cmdOffline:
		c.drainer.Hold(true)
		return "offline mode forced; scans are queued locally"
	case cmdOnline:
		c.drainer.Hold(false)
		c.drainer.Trigger()
		return "offline hold released"
	case cmdStop:
		c.loop.StopCamera()
		return "camera stopped"
	case cmdStart:
		c.loop.StartCamera()
		return "camera started"
	case cmdStatus:
		return c.status(ctx)
	case cmdHelp:
		return helpText
	default:
		return ""
	}
}

func (c *console) search(ctx context.Context, query string) string {
	found, offline, err := c.loop.Search(ctx, query)
	if err != nil {
		return "search failed: " + describeError(err)
	}
	c.mu.Lock()
	c.candidates = found
	c.mu.Unlock()

	if len(found) == 0 {
		return "no guests match " + query
	}
	var b strings.Builder
	if offline {
		b.WriteString("(offline results)\n")
	}
	for i, g := range found {
		mark := " "
		if g.CheckedIn {
			mark = "✓"
		}
		fmt.Fprintf(&b, "%2d. %s %s  %s", i+1, mark, g.Name, g.Phone)
		if i < len(found)-1 {
			b.WriteByte('\n')
		}
	}
	return b.String()
}

func (c *console) status(ctx context.Context) string {
	eventID := c.sc.Session.EventID
	total, admitted, err := c.sc.Directory.Counts(ctx, eventID)
	if err != nil {
		return "status failed: " + describeError(err)
	}
	pending, err := c.sc.Queue.PendingCount(ctx, eventID)
	if err != nil {
		return "status failed: " + describeError(err)
	}
	failed, err := c.sc.Queue.Failed(ctx, eventID)
	if err != nil {
		return "status failed: " + describeError(err)
	}
	line := fmt.Sprintf("%s | %s | %d/%d admitted | %d pending", c.connectivity(), c.loop.State(), admitted, total, pending)
	if len(failed) > 0 {
		line += fmt.Sprintf(" | %d refused", len(failed))
	}
	return line
}

func (c *console) connectivity() string {
	switch {
	case c.drainer.Held():
		return "OFFLINE (forced)"
	case c.drainer.Online():
		return "ONLINE"
	default:
		return "OFFLINE"
	}
}

func describeError(err error) string {
	if err == nil {
		return "unknown error"
	}
	var appErr *apperror.Error
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return err.Error()
}

func formatResult(res scanner.ScanResult) string {
	name := res.Name
	if name == "" {
		name = res.GuestID
	}
	switch res.Outcome {
	case scanner.OutcomeCheckedIn:
		return fmt.Sprintf("✓ %s checked in at %s", name, res.Display)
	case scanner.OutcomeAlreadyCheckedIn:
		return fmt.Sprintf("! %s already checked in at %s", name, res.Display)
	case scanner.OutcomeQueued:
		return fmt.Sprintf("✓ %s checked in offline at %s, pending sync", name, res.Display)
	case scanner.OutcomeNotFound:
		return fmt.Sprintf("✗ no guest for %q", res.Payload)
	case scanner.OutcomeInvalid:
		return fmt.Sprintf("✗ not a guest code: %q", res.Payload)
	case scanner.OutcomeUnauthorized:
		return "✗ scanner session rejected, rebind with --token"
	default:
		return "✗ check-in failed: " + describeError(res.Err)
	}
}

func formatReport(r scanner.DrainReport) string {
	line := fmt.Sprintf("sync: %d sent, %d already in, %d refused, %d pending", r.Synced, r.Conflicts, r.Failed, r.Remaining)
	if r.Stopped != nil {
		line += " (paused: " + describeError(r.Stopped) + ")"
	}
	return line
}
