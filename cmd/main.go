package main

import (
	"log"
	"os"

	"message-quizzer/internal/cli"
)

func main() {
	log.SetPrefix("quizzer: ")
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
