package main

import (
	"log"
	"splatvault/cmd/sv/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		log.Fatal(err)
	}
}
