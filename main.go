package main

import "policy-reasoner/api/cmd"

func main() {
	cmd.Execute()
}
