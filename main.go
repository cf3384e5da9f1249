// SPDX-License-Identifier: MPL-2.0

// The lorekeep command is the application's command-line entry point.
package main

import "lorekeep/cmd/lorekeep"

func main() {
	cmd.Execute()
}
