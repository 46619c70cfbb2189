package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/hupe1980/meshgate"
	"github.com/hupe1980/meshgate/tool"
	"github.com/spf13/cobra"
)

func newAgentsCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "agents",
		Short: "Print the wired agent tree and each agent's delegation recipients",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			mesh, err := loadMesh(flags, false)
			if err != nil {
				return err
			}
			defer mesh.Close(context.Background()) //nolint:errcheck

			return printAgents(cmd.OutOrStdout(), mesh)
		},
	}
}

func printAgents(w io.Writer, mesh *meshgate.Mesh) error {
	orch := mesh.Orchestrator()
	mainAgent := mesh.Config().MainAgent

	for _, name := range orch.Agents() {
		inv, _ := orch.Agent(name)

		marker := " "
		if name == mainAgent {
			marker = "*"
		}

		kind := "mock"
		if a, ok := mesh.Agent(name); ok {
			if ac, declared := mesh.Config().Agent(name); !declared || !ac.Mock {
				kind = a.ModelIdentifier()
			}
		}

		if _, err := fmt.Fprintf(w, "%s %s [%s] %s\n", marker, name, kind, inv.Description()); err != nil {
			return err
		}

		if d, ok := orch.Delegation(name); ok {
			if _, err := fmt.Fprintf(w, "    %s -> %s\n", tool.DelegationToolName, strings.Join(d.Schema().Names(), ", ")); err != nil {
				return err
			}
		}
	}

	return nil
}
