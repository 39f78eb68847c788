// Package main provides the audio2midi command line tool.
package main

import "github.com/maauso/audio2midi/internal/cli"

func main() {
	cli.Execute()
}
