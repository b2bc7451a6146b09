package main

import "github.com/andresmejia3/sentinel-home/cmd"

func main() {
	cmd.Execute()
}
