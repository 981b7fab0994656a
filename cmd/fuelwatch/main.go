package main

import "fuel-price-tracker/internal/cli"

func main() {
	cli.Execute()
}
