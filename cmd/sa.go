// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/spacedatalink/sdls-core/internal/sastore"
)

var saSPIs []uint16

var saCmd = &cobra.Command{
	Use:   "sa",
	Short: "Inspect Security Associations",
}

var saListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the configured Security Associations and their current counters",
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := buildEngine()
		if err != nil {
			return err
		}

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendHeader(table.Row{"SPI", "State", "EKID", "AKID", "EST", "AST", "IV", "ARSN", "ARSNW"})

		spis := saSPIs
		for _, spi := range spis {
			sa, serr := eng.Store().GetBySPI(spi)
			if serr != nil {
				if errors.Is(serr, sastore.ErrNotFound) {
					continue
				}
				return fmt.Errorf("sdls-core: get sa %d: %w", spi, serr)
			}
			t.AppendRow(table.Row{
				sa.SPI, sa.State.String(), sa.EKID, sa.AKID, sa.EST, sa.AST,
				hex.EncodeToString(sa.IV.Bytes()), hex.EncodeToString(sa.ARSN.Bytes()), sa.ARSNW,
			})
		}
		t.Render()
		return nil
	},
}

func init() {
	saListCmd.Flags().Uint16SliceVar(&saSPIs, "spi", nil, "SPIs to show (repeatable); shows nothing if omitted")
	saCmd.AddCommand(saListCmd)
	rootCmd.AddCommand(saCmd)
}
