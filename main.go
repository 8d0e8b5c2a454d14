package main

import "vote-ledger/cmd"

func main() {
	cmd.Execute()
}
