package main

import "github.com/GNARcollectiveDAO/audius-protocol/cmd"

func main() {
	cmd.Execute()
}
