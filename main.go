package main

import "github.com/kozaktomas/attendance-kiosk/cmd"

func main() {
	cmd.Execute()
}
