package main

import "github.com/cmmoran/composeiso/cmd"

func main() {
	cmd.Execute()
}
