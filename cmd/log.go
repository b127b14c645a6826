// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"encoding/hex"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var logCmd = &cobra.Command{
	Use:   "log",
	Short: "Inspect the bounded SDLS event log and Frame Security Report",
}

var logStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the Log-Status summary and current Frame Security Report",
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := buildEngine()
		if err != nil {
			return err
		}
		summary := eng.Log().Status()
		fsr := eng.FSR().Snapshot()

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendHeader(table.Row{"Field", "Value"})
		t.AppendRow(table.Row{"Unread entries", summary.CountSinceLastRead})
		t.AppendRow(table.Row{"Remaining slots", summary.RemainingSlots})
		t.AppendSeparator()
		t.AppendRow(table.Row{"Alarm", fsr.Alarm})
		t.AppendRow(table.Row{"Bad SN", fsr.BadSN})
		t.AppendRow(table.Row{"Bad MAC", fsr.BadMAC})
		t.AppendRow(table.Row{"Invalid SPI", fsr.InvalidSPI})
		t.AppendRow(table.Row{"Last SPI used", fsr.LastSPIUsed})
		t.Render()
		return nil
	},
}

var logDumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Dump every live event log entry, oldest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := buildEngine()
		if err != nil {
			return err
		}
		entries := eng.Log().Dump()

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendHeader(table.Row{"#", "Type", "Value"})
		for i, e := range entries {
			t.AppendRow(table.Row{i, e.Type.String(), hex.EncodeToString(e.Value[:e.Len])})
		}
		t.Render()
		return nil
	},
}

func init() {
	logCmd.AddCommand(logStatusCmd, logDumpCmd)
	rootCmd.AddCommand(logCmd)
}
