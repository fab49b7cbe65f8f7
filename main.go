package main

import (
	cmd "github.com/SiliconJelly/DubAI/cmd/dubai-tts"
)

func main() {
	cmd.Execute()
}
