package main

import "github.com/mlb/dezoomify-rs/cmd"

func main() {
	cmd.Execute()
}
