package main

import "github.com/awsdbmon/cli/cmd"

func main() {
	cmd.Execute()
}
