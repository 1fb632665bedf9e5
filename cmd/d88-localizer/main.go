package main

import "d88-localizer/internal/cli"

func main() {
	cli.Execute()
}
