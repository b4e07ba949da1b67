package main

import (
	"github.com/wattcap/wattcap/cmd"
)

func main() {
	cmd.Execute()
}
