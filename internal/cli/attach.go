package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/term"

	"github.com/GriffinCanCode/AgentOS/termhub/internal/client"
	"github.com/GriffinCanCode/AgentOS/termhub/internal/shared/protocol"
	"github.com/GriffinCanCode/AgentOS/termhub/internal/storage"
)

// detachKey is Ctrl-]
const detachKey = 0x1d

var (
	errDetached      = errors.New("detached")
	errSessionClosed = errors.New("session closed")
)

func (a *app) newAttachCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "attach <session>",
		Short: "Attach the terminal to a session (Ctrl-] detaches)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rec, err := a.lookup(args[0])
			if err != nil {
				return err
			}
			if rec.Status == storage.StatusClosed {
				return fmt.Errorf("session %s is closed", rec.ID)
			}
			return a.attach(cmd.Context(), rec, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
}

func (a *app) attach(ctx context.Context, rec storage.Record, in io.Reader, out io.Writer) error {
	dialCtx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	stream, err := a.dial(dialCtx)
	if err != nil {
		return err
	}
	defer stream.Close()

	ctrl := &echoController{stream: stream, out: out}
	a.policy.WithController(ctrl)

	closed := make(chan *int, 1)
	stream.OnMessage(func(msg protocol.Message) {
		if msg.SessionID != rec.ID {
			return
		}
		switch msg.Type {
		case protocol.TypeData:
			_, _ = io.WriteString(out, msg.Data)
		case protocol.TypePaused:
			_, _ = io.WriteString(out, "\r\n[paused; type to resume]\r\n")
		case protocol.TypeClosed:
			select {
			case closed <- msg.ExitCode:
			default:
			}
		case protocol.TypeError:
			a.logger.Debug("Server rejected request", zap.String("code", msg.Code), zap.String("message", msg.Message))
		}
	})

	buffer, err := stream.Attach(dialCtx, rec.ID)
	if errors.Is(err, client.ErrNotFound) {
		a.policy.CloseRecord(ctx, rec.ID)
		return fmt.Errorf("session %s no longer exists on the server", rec.ID)
	}
	if err != nil {
		return err
	}
	_, _ = io.WriteString(out, buffer)

	if rec.Status != storage.StatusActive {
		a.policy.ResumeRecord(ctx, rec.ID)
	}

	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		state, err := term.MakeRaw(int(f.Fd()))
		if err != nil {
			return fmt.Errorf("failed to enter raw mode: %w", err)
		}
		defer func() { _ = term.Restore(int(f.Fd()), state) }()
	}

	// The reader goroutine cannot be interrupted; it ends with the process
	input := make(chan []byte)
	go readInput(in, input)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case chunk, ok := <-input:
				if !ok {
					return errDetached
				}
				data, detach := splitDetach(chunk)
				if len(data) > 0 {
					if r, ok := a.policy.Get(rec.ID); ok && r.Status == storage.StatusPaused {
						a.policy.ResumeRecord(gctx, rec.ID)
					}
					a.policy.RecordActivity(rec.ID)
					if err := stream.Input(rec.ID, string(data)); err != nil {
						return err
					}
				}
				if detach {
					return errDetached
				}
			}
		}
	})

	g.Go(func() error {
		select {
		case <-gctx.Done():
			return nil
		case code := <-closed:
			a.policy.CloseRecord(context.Background(), rec.ID)
			if code != nil {
				_, _ = fmt.Fprintf(out, "\r\n[session exited with code %d]\r\n", *code)
			}
			return errSessionClosed
		case <-stream.Done():
			if err := stream.Err(); err != nil {
				return err
			}
			return client.ErrClosed
		}
	})

	g.Go(func() error {
		return watchResize(gctx, stream, rec.ID)
	})

	err = g.Wait()
	switch {
	case errors.Is(err, errDetached):
		_, _ = io.WriteString(out, "\r\n[detached]\r\n")
		return nil
	case errors.Is(err, errSessionClosed):
		return nil
	}
	return err
}

func readInput(in io.Reader, input chan<- []byte) {
	defer close(input)
	buf := make([]byte, 1024)
	for {
		n, err := in.Read(buf)
		if n > 0 {
			input <- append([]byte(nil), buf[:n]...)
		}
		if err != nil {
			return
		}
	}
}

// splitDetach cuts chunk at the detach key
func splitDetach(chunk []byte) ([]byte, bool) {
	if i := bytes.IndexByte(chunk, detachKey); i >= 0 {
		return chunk[:i], true
	}
	return chunk, false
}

// watchResize forwards terminal size changes until ctx ends
func watchResize(ctx context.Context, stream *client.Stream, sessionID string) error {
	fd := int(os.Stdout.Fd())
	if !term.IsTerminal(fd) {
		return nil
	}

	resize := func() {
		if cols, rows, err := term.GetSize(fd); err == nil {
			_ = stream.Resize(sessionID, cols, rows)
		}
	}
	resize()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGWINCH)
	defer signal.Stop(sig)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-sig:
			resize()
		}
	}
}
