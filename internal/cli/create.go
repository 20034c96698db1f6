package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/GriffinCanCode/AgentOS/termhub/internal/client"
	"github.com/GriffinCanCode/AgentOS/termhub/internal/domain/policy"
	"github.com/GriffinCanCode/AgentOS/termhub/internal/shared/protocol"
)

func (a *app) newCreateCommand() *cobra.Command {
	var (
		name     string
		model    string
		provider string
		cols     int
		rows     int
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Start a shell or agent session in the project",
		Long: `Start a new session. Without --model a plain shell is started; with
--model the agent CLI for --provider (or the server default) is started.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
			defer cancel()

			if err := a.policy.Admit(a.project); err != nil {
				return fmt.Errorf("%w (project %s)", err, a.project)
			}

			stream, err := a.dial(ctx)
			if err != nil {
				return err
			}
			defer stream.Close()

			params := client.CreateParams{
				ProjectPath:  a.project,
				TerminalType: protocol.TerminalShell,
				Cols:         cols,
				Rows:         rows,
			}
			if model != "" {
				params.TerminalType = protocol.TerminalAgent
				params.Model = model
				params.Provider = provider
			}

			summary, err := stream.Create(ctx, params)
			if err != nil {
				return fmt.Errorf("failed to create session: %w", err)
			}

			_, err = a.policy.CreateRecord(ctx, policy.CreateParams{
				ID:           summary.ID,
				Name:         name,
				ModelID:      model,
				ProviderID:   provider,
				ProjectPath:  summary.ProjectPath,
				TerminalType: summary.TerminalType,
			})
			if errors.Is(err, policy.ErrMaxSessionsReached) {
				_ = stream.CloseSession(ctx, summary.ID)
				return err
			}
			if err != nil {
				return fmt.Errorf("failed to record session: %w", err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), summary.ID)
			return nil
		},
	}

	cmd.Flags().StringVarP(&name, "name", "n", "", "display name")
	cmd.Flags().StringVarP(&model, "model", "m", "", "model for an agent session")
	cmd.Flags().StringVar(&provider, "provider", "", "agent provider")
	cmd.Flags().IntVar(&cols, "cols", 0, "terminal width (default 80)")
	cmd.Flags().IntVar(&rows, "rows", 0, "terminal height (default 24)")
	return cmd
}
