package main

import "github.com/mpe-exporter/mpe-setup/cmd"

func main() {
	cmd.Execute()
}
