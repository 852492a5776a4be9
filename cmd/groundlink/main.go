package main

import (
	_ "go.uber.org/automaxprocs"

	"github.com/autopeer-io/groundlink/cmd/groundlink/app"
)

func main() {
	app.NewApp().Run()
}
