package main

import (
	"github.com/mchmarny/qscore/pkg/cli"
)

func main() {
	cli.Execute()
}
