package cli

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/termhub/internal/domain/terminal"
	"github.com/GriffinCanCode/AgentOS/termhub/internal/shared/paths"
	"github.com/GriffinCanCode/AgentOS/termhub/internal/storage"
)

type listedSession struct {
	ID       string    `yaml:"id"`
	Name     string    `yaml:"name"`
	Status   string    `yaml:"status"`
	Type     string    `yaml:"type"`
	Model    string    `yaml:"model,omitempty"`
	Project  string    `yaml:"project"`
	Created  time.Time `yaml:"created"`
	PID      int       `yaml:"pid,omitempty"`
	Buffered int       `yaml:"buffered_lines,omitempty"`
}

func (a *app) newListCommand() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List catalogued sessions, reconciled with the server",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
			defer cancel()

			project := a.project
			if a.allProjects {
				project = ""
			}

			live := a.reconcile(ctx, project)

			var rows []listedSession
			for _, rec := range a.policy.Records(project) {
				row := listedSession{
					ID:      rec.ID,
					Name:    rec.Name,
					Status:  string(rec.Status),
					Type:    rec.TerminalType,
					Model:   rec.ModelID,
					Project: rec.ProjectPath,
					Created: rec.CreatedAt,
				}
				if info, ok := live[rec.ID]; ok {
					row.PID = info.PID
					row.Buffered = info.BufferedLines
				}
				rows = append(rows, row)
			}

			switch output {
			case "yaml":
				return writeYAML(cmd.OutOrStdout(), rows)
			case "table", "":
				return writeTable(cmd.OutOrStdout(), rows, a.allProjects)
			default:
				return fmt.Errorf("unknown output format %q", output)
			}
		},
	}

	cmd.Flags().BoolVarP(&a.allProjects, "all", "a", false, "list every project")
	cmd.Flags().StringVarP(&output, "output", "o", "table", "output format: table or yaml")
	return cmd
}

// reconcile asks the server which catalogued sessions still exist and settles
// each record. When the server is unreachable the catalogue is left alone.
func (a *app) reconcile(ctx context.Context, project string) map[string]terminal.Info {
	sessions, _, err := a.rest.List(ctx, project)
	if err != nil {
		a.logger.Warn("Server unreachable, showing catalogue only", zap.Error(err))
		return nil
	}

	live := make(map[string]terminal.Info, len(sessions))
	for _, info := range sessions {
		live[info.ID.String()] = info
	}

	a.policy.MarkReconnecting(ctx)
	for _, rec := range a.policy.Records(project) {
		if rec.Status != storage.StatusReconnecting {
			continue
		}
		info, exists := live[rec.ID]
		status := string(info.Status)
		if info.Status == terminal.StatusCreating {
			status = string(terminal.StatusActive)
		}
		a.policy.Reconcile(ctx, rec.ID, status, exists)
	}
	return live
}

func writeTable(w io.Writer, rows []listedSession, withProject bool) error {
	if len(rows) == 0 {
		_, err := fmt.Fprintln(w, "No sessions")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	header := "ID\tNAME\tSTATUS\tTYPE\tMODEL\tCREATED"
	if withProject {
		header += "\tPROJECT"
	}
	fmt.Fprintln(tw, header)
	for _, r := range rows {
		model := r.Model
		if model == "" {
			model = "-"
		}
		line := fmt.Sprintf("%s\t%s\t%s\t%s\t%s\t%s", r.ID, r.Name, r.Status, r.Type, model, r.Created.Local().Format("2006-01-02 15:04"))
		if withProject {
			line += "\t" + paths.Display(r.Project)
		}
		fmt.Fprintln(tw, line)
	}
	return tw.Flush()
}

func writeYAML(w io.Writer, rows []listedSession) error {
	if rows == nil {
		rows = []listedSession{}
	}
	data, err := yaml.Marshal(rows)
	if err != nil {
		return fmt.Errorf("failed to encode sessions: %w", err)
	}
	_, err = w.Write(data)
	return err
}
