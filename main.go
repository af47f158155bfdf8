package main

import (
	"funding-radar/internal/cli"
)

func main() {
	cli.Execute()
}
