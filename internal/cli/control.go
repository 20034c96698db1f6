package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/spf13/cobra"

	"github.com/GriffinCanCode/AgentOS/termhub/internal/client"
)

func (a *app) newPauseCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "pause <session>",
		Short: "Pause a session; output is held until it resumes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
			defer cancel()

			rec, err := a.lookup(args[0])
			if err != nil {
				return err
			}
			stream, err := a.dial(ctx)
			if err != nil {
				return err
			}
			defer stream.Close()

			if !a.policy.PauseRecord(ctx, rec.ID) {
				return fmt.Errorf("session %s is %s, not active", rec.ID, rec.Status)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Paused %s\n", rec.ID)
			return nil
		},
	}
}

func (a *app) newResumeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "resume <session>",
		Short: "Resume a paused session and print the held output",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
			defer cancel()

			rec, err := a.lookup(args[0])
			if err != nil {
				return err
			}
			stream, err := a.dial(ctx)
			if err != nil {
				return err
			}
			defer stream.Close()

			ctrl := &echoController{stream: stream, out: cmd.OutOrStdout()}
			a.policy.WithController(ctrl)

			if !a.policy.ResumeRecord(ctx, rec.ID) {
				return fmt.Errorf("session %s is %s, not paused", rec.ID, rec.Status)
			}
			if err := ctrl.Err(); err != nil {
				return fmt.Errorf("server did not resume %s: %w", rec.ID, err)
			}
			return nil
		},
	}
}

func (a *app) newCloseCommand() *cobra.Command {
	var keep bool

	cmd := &cobra.Command{
		Use:   "close <session>",
		Short: "Terminate a session and remove it from the catalogue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
			defer cancel()

			rec, err := a.lookup(args[0])
			if err != nil {
				return err
			}

			// A session the server no longer knows is closed already
			if err := a.rest.Close(ctx, rec.ID); err != nil && !errors.Is(err, client.ErrNotFound) {
				return fmt.Errorf("failed to close %s: %w", rec.ID, err)
			}

			if keep {
				a.policy.CloseRecord(ctx, rec.ID)
			} else {
				a.policy.PurgeRecord(ctx, rec.ID)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Closed %s\n", rec.ID)
			return nil
		},
	}

	cmd.Flags().BoolVar(&keep, "keep", false, "keep the closed record in the catalogue")
	return cmd
}

// echoController drives the server through a stream and writes output held
// during a pause to out when the session resumes
type echoController struct {
	stream *client.Stream
	out    io.Writer

	mu  sync.Mutex
	err error
}

func (c *echoController) PauseSession(ctx context.Context, sessionID string) error {
	return c.record(c.stream.PauseSession(ctx, sessionID))
}

func (c *echoController) ResumeSession(ctx context.Context, sessionID string) error {
	held, err := c.stream.Resume(ctx, sessionID)
	if err != nil {
		return c.record(err)
	}
	_, err = io.WriteString(c.out, held)
	return c.record(err)
}

// Err returns the last controller failure
func (c *echoController) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *echoController) record(err error) error {
	c.mu.Lock()
	c.err = err
	c.mu.Unlock()
	return err
}
