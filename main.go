// Command helix records rate-change notices against a client's matters.
package main

import "helixhub/internal/cli"

func main() {
	cli.Execute()
}
