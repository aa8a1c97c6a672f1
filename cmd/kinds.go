package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ewolf/brain/core/messages"
)

var kindsCmd = &cobra.Command{
	Use:   "kinds",
	Short: "List the message kinds of the bus",
	RunE:  listKinds,
}

func init() {
	rootCmd.AddCommand(kindsCmd)
}

func listKinds(cmd *cobra.Command, args []string) error {
	reg, err := messages.Catalogue()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	for _, k := range reg.Kinds() {
		if _, err := fmt.Fprintf(out, "%-36s %-9s %s\n", k.Key(), k.Class, k.Payload); err != nil {
			return err
		}
	}
	return nil
}
