package main

import "drawgen/internal/app"

func main() {
	app.Execute()
}
