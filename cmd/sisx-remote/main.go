package main

import "github.com/oshokin/sisx-deploy/cmd/sisx-remote/cmd"

func main() {
	cmd.Execute()
}
