package main

import (
	"os"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/mattn/go-sqlite3"

	"github.com/sirupsen/logrus"

	"github.com/zots0127/io/setup"
)

var log = logrus.WithField("logger", "main")

func main() {

	srv, err := setup.InitFromEnv()
	if err != nil {
		log.WithError(err).Error("Failed to start server")
		os.Exit(1)
		return
	}

	srv.Run()
}
