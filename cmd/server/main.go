package main

import (
	"github.com/elattma/mimo-core-sub000/internal/server"
	"github.com/elattma/mimo-core-sub000/internal/util"
	"github.com/elattma/mimo-core-sub000/pkg/logger"
	"github.com/elattma/mimo-core-sub000/pkg/logger/console"

	_ "github.com/lib/pq"
)

func main() {
	util.LoadEnv()

	debug := util.GetEnvBool("DEBUG", false)

	consoleLogger := console.NewConsoleLogger(console.ConsoleLoggerParams{
		Debug: debug,
	})
	logger.Init(consoleLogger)

	server.Init()
}
