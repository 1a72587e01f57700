package main

import "mawneychat/internal/cli"

func main() {
	cli.Execute()
}
