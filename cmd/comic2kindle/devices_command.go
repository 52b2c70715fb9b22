package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"comic2kindle/internal/devices"
)

func newDevicesCommand() *cobra.Command {
	return &cobra.Command{
		Use:         "devices",
		Short:       "List supported device profiles",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			rows := make([][]string, 0)
			for _, profile := range devices.All() {
				rows = append(rows, []string{
					profile.ID,
					profile.DisplayName,
					fmt.Sprintf("%dx%d", profile.Width, profile.Height),
					fmt.Sprintf("%d", profile.DPI),
					profile.RecommendedFormat,
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"ID", "Name", "Resolution", "DPI", "Format"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignLeft},
			))
			return nil
		},
	}
}
