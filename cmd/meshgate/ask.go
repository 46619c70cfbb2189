package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newAskCmd(flags *rootFlags) *cobra.Command {
	var (
		thread string
		stream bool
	)

	cmd := &cobra.Command{
		Use:   "ask <message>",
		Short: "Send one message to the main agent and print the reply",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mesh, err := loadMesh(flags, false)
			if err != nil {
				return err
			}
			defer mesh.Close(context.Background()) //nolint:errcheck

			message := strings.Join(args, " ")
			out := cmd.OutOrStdout()

			if !stream {
				reply, err := mesh.Invoke(cmd.Context(), message, thread)
				if err != nil {
					return err
				}

				_, err = fmt.Fprintln(out, reply)

				return err
			}

			events, errs := mesh.Stream(cmd.Context(), message, thread)

			var streamed bool

			for ev := range events {
				switch {
				case ev.Partial:
					streamed = true
					fmt.Fprint(out, ev.Text())
				case ev.IsFinalResponse() && !streamed:
					fmt.Fprint(out, ev.Text())
				}
			}

			fmt.Fprintln(out)

			return <-errs
		},
	}

	cmd.Flags().StringVarP(&thread, "thread", "t", "cli", "Conversation thread id")
	cmd.Flags().BoolVarP(&stream, "stream", "s", false, "Stream the reply as it is generated")

	return cmd
}
