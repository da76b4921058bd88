package main

import "github.com/oshokin/sisx-deploy/cmd/sisx-agent/cmd"

func main() {
	cmd.Execute()
}
