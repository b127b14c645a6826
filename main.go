// SPDX-License-Identifier: Apache-2.0

package main

import "github.com/spacedatalink/sdls-core/cmd"

func main() {
	cmd.Execute()
}
