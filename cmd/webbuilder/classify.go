package main

import (
	"encoding/json"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mohammad-safakhou/webbuilder/internal/helpers"
	"github.com/mohammad-safakhou/webbuilder/internal/plan"
)

// classifyCMD prints the plan a prompt would produce without calling any
// generation backend.
func classifyCMD() *cobra.Command {
	var images, docs []string
	var classify = &cobra.Command{
		Use:   "classify [prompt]",
		Short: "Print the generation plan for a prompt",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			prompt := helpers.PromptText(strings.Join(args, " "))
			p := plan.Classify(prompt, images, docs)
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(p)
		},
	}
	classify.Flags().StringSliceVar(&images, "image", nil, "image path (repeatable)")
	classify.Flags().StringSliceVar(&docs, "doc", nil, "document path (repeatable)")

	return classify
}
