package main

import (
	"log"

	"github.com/PROX-GOD/mockdeu/internal/cli"
	"github.com/PROX-GOD/mockdeu/internal/config"
)

func main() {
	// Include sub-second precision in all log timestamps
	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds)

	if err := cli.Serve(config.Load()); err != nil {
		log.Fatal(err)
	}
}
