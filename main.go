package main

import "bulksync/cmd"

func main() {
	cmd.Execute()
}
