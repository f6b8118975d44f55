package main

import "github.com/oshokin/alarm-notifier/cmd/alarm-notifier/cmd"

func main() {
	cmd.Execute()
}
