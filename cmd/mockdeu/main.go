package main

import (
	"log"
	"os"

	"github.com/PROX-GOD/mockdeu/internal/cli"
)

func main() {
	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds)
	if err := cli.NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
