// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/spacedatalink/sdls-core/sdlscore"
)

var processInput string

var processCmd = &cobra.Command{
	Use:   "process",
	Short: "Verify and decrypt an inbound TC frame, writing the plaintext to stdout",
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := buildEngine()
		if err != nil {
			return err
		}
		frame, err := os.ReadFile(processInput)
		if err != nil {
			return fmt.Errorf("sdls-core: read frame: %w", err)
		}

		result, status := eng.TCProcessSecurity(context.Background(), frame)
		if status != sdlscore.Success {
			return fmt.Errorf("sdls-core: process failed: %s (state=%s)", status, result.State)
		}
		_, err = os.Stdout.Write(result.Plaintext)
		return err
	},
}

func init() {
	processCmd.Flags().StringVar(&processInput, "in", "", "Path to the inbound frame file")
	_ = processCmd.MarkFlagRequired("in")
	rootCmd.AddCommand(processCmd)
}
