package main

import (
	"marksbot/cmd/marksbot/commands"
	"marksbot/pkg/serviceutil"
)

func main() {
	commands.ExecuteContext(serviceutil.SignalContext())
}
