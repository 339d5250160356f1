package main

import (
	"os"

	"VoiceAssistant/pkg/log"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		log.Error(log.Fields{"error": err.Error()}, "Command failed")
		os.Exit(1)
	}
}
