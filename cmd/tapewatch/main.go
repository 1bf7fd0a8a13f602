package main

import "exec-feed-sync/internal/cli"

func main() {
	cli.Execute()
}
