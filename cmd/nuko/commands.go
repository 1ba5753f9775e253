package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/nuko-mc/nuko/pkg/client"
)

type command struct {
	global *GlobalFlags
	out    io.Writer
}

// client builds an API client from the global flags and fails fast when the
// daemon cannot be reached.
func (c *command) client(ctx context.Context) (*client.Client, error) {
	return c.clientWithRestart(ctx, 0)
}

// clientWithRestart is client with its own bound for restart calls; zero
// keeps client.DefaultRestartTimeout.
func (c *command) clientWithRestart(ctx context.Context, restart time.Duration) (*client.Client, error) {
	apiUrl := c.global.APIUrl
	if apiUrl == "" {
		apiUrl = client.DefaultBaseURL
	}
	cl := client.New(client.Config{BaseURL: apiUrl, Timeout: c.global.APITimeout, RestartTimeout: restart})
	if !cl.IsReachable(ctx) {
		return nil, fmt.Errorf("daemon not reachable at %s - please start daemon first with 'nuko serve'", apiUrl)
	}
	return cl, nil
}

// List prints every instance as a table, or as JSON.
func (c *command) List(ctx context.Context, f ListFlags) error {
	cl, err := c.client(ctx)
	if err != nil {
		return err
	}
	infos, err := cl.List(ctx)
	if err != nil {
		return err
	}
	if f.JSON {
		return c.printJSON(infos)
	}
	tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "NAME\tID\tSOFTWARE\tVERSION\tSTATE\tPID")
	for _, in := range infos {
		state := "stopped"
		if in.Running {
			state = "running"
			if !in.Attached {
				state = "running (detached)"
			}
		}
		pid := "-"
		if in.PID > 0 {
			pid = fmt.Sprint(in.PID)
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", in.Name, in.ID, in.Software, in.Version, state, pid)
	}
	return tw.Flush()
}

func (c *command) Create(ctx context.Context, f CreateFlags) error {
	if f.Name == "" {
		return fmt.Errorf("instance name is required")
	}
	cl, err := c.client(ctx)
	if err != nil {
		return err
	}
	inst, err := cl.Create(ctx, client.CreateRequest{
		Name:           f.Name,
		Software:       f.Software,
		Version:        f.Version,
		Loader:         f.Loader,
		CustomJarPath:  f.CustomJarPath,
		IconPath:       f.IconPath,
		JavaPath:       f.JavaPath,
		MinMemory:      f.MinMemory,
		MaxMemory:      f.MaxMemory,
		AdditionalArgs: f.AdditionalArgs,
	})
	if err != nil {
		return err
	}
	return c.printJSON(inst)
}

// Lifecycle runs one of start, stop, kill or restart and prints the
// resulting state.
func (c *command) Lifecycle(ctx context.Context, action, id string) error {
	cl, err := c.client(ctx)
	if err != nil {
		return err
	}
	switch action {
	case "start":
		err = cl.Start(ctx, id)
	case "stop":
		err = cl.Stop(ctx, id)
	case "kill":
		err = cl.Kill(ctx, id)
	case "restart":
		err = cl.Restart(ctx, id)
	default:
		return fmt.Errorf("unknown action %q", action)
	}
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(c.out, "%s: %s ok\n", id, action)
	return err
}

// Restart waits up to f.Wait for the daemon to stop and start id again.
func (c *command) Restart(ctx context.Context, id string, f RestartFlags) error {
	cl, err := c.clientWithRestart(ctx, f.Wait)
	if err != nil {
		return err
	}
	if err := cl.Restart(ctx, id); err != nil {
		return err
	}
	_, err = fmt.Fprintf(c.out, "%s: restart ok\n", id)
	return err
}

// Status prints the instance with its run state.
func (c *command) Status(ctx context.Context, id string) error {
	cl, err := c.client(ctx)
	if err != nil {
		return err
	}
	info, err := cl.Info(ctx, id)
	if err != nil {
		return err
	}
	return c.printJSON(info)
}

func (c *command) Send(ctx context.Context, id string, words []string) error {
	text := strings.Join(words, " ")
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("command text is required")
	}
	cl, err := c.client(ctx)
	if err != nil {
		return err
	}
	return cl.Send(ctx, id, text)
}

// Logs prints captured output from f.Since on. With f.Follow it keeps polling
// for new lines until ctx is done.
func (c *command) Logs(ctx context.Context, id string, f LogsFlags) error {
	cl, err := c.client(ctx)
	if err != nil {
		return err
	}
	if f.Interval <= 0 {
		f.Interval = time.Second
	}
	offset := f.Since
	var run uint64
	for {
		page, err := cl.Logs(ctx, id, run, offset)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		for _, line := range page.Lines {
			if _, err := fmt.Fprintln(c.out, line); err != nil {
				return err
			}
		}
		offset, run = page.Next, page.Run
		if !f.Follow {
			return nil
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(f.Interval):
		}
	}
}

func (c *command) Metrics(ctx context.Context, id string) error {
	cl, err := c.client(ctx)
	if err != nil {
		return err
	}
	s, err := cl.Metrics(ctx, id)
	if err != nil {
		return err
	}
	return c.printJSON(s)
}

func (c *command) History(ctx context.Context, id string, f HistoryFlags) error {
	cl, err := c.client(ctx)
	if err != nil {
		return err
	}
	evs, err := cl.History(ctx, id, f.Limit)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "TIME\tEVENT\tPID\tDETAIL")
	for _, e := range evs {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", e.OccurredAt.Local().Format(time.DateTime), e.Type, e.PID, e.Detail)
	}
	return tw.Flush()
}

func (c *command) printJSON(v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(c.out, string(b))
	return err
}
