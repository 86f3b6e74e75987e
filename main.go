package main

import "pooledinv/cmd"

func main() {
	cmd.Execute()
}
