package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/yanizio/vidcat/internal/shape"
)

// newClassifyCommand reports the shape a template maps to.  With
// parameters it also shows the bound query, which is how drift between a
// caller's template wording and the classifier is diagnosed.
func newClassifyCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "classify <template> [params...]",
		Short: "Show which query shape a template maps to",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if len(args) == 1 {
				kind, err := shape.KindOf(args[0])
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(out, kind)
				return err
			}

			params := make([]any, len(args)-1)
			for i, p := range args[1:] {
				params[i] = p
			}
			q, err := shape.Classify(args[0], params...)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(out, "%s %+v\n", q.Kind(), q)
			return err
		},
	}
}
