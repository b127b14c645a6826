// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/spacedatalink/sdls-core/internal/sastore"
	"github.com/spacedatalink/sdls-core/sdlscore"
)

var (
	applyTFVN  uint8
	applySCID  uint16
	applyVCID  uint8
	applyMAPID uint8
	applyInput string
)

var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Attach security to a plaintext TC payload and write the resulting frame to stdout",
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := buildEngine()
		if err != nil {
			return err
		}
		payload, err := os.ReadFile(applyInput)
		if err != nil {
			return fmt.Errorf("sdls-core: read payload: %w", err)
		}

		req := sdlscore.ApplyRequest{
			GVCID:   sastore.GVCID{TFVN: applyTFVN, SCID: applySCID, VCID: applyVCID},
			MAPID:   applyMAPID,
			Payload: payload,
		}
		frame, status := eng.TCApplySecurity(context.Background(), req)
		if status != sdlscore.Success {
			return fmt.Errorf("sdls-core: apply failed: %s", status)
		}
		_, err = os.Stdout.Write(frame)
		return err
	},
}

func init() {
	applyCmd.Flags().Uint8Var(&applyTFVN, "tfvn", 0, "Transfer frame version number")
	applyCmd.Flags().Uint16Var(&applySCID, "scid", 0, "Spacecraft ID")
	applyCmd.Flags().Uint8Var(&applyVCID, "vcid", 0, "Virtual channel ID")
	applyCmd.Flags().Uint8Var(&applyMAPID, "mapid", 0, "MAP ID")
	applyCmd.Flags().StringVar(&applyInput, "in", "", "Path to the plaintext payload file")
	_ = applyCmd.MarkFlagRequired("in")
	rootCmd.AddCommand(applyCmd)
}
