package main

import "relaybot/cmd/relayctl/cmd"

func main() {
	cmd.Execute()
}
