package persistence

import (
	"fmt"
	"net/url"
	"os"
	"path"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

var tmpDir = path.Clean(os.TempDir())
var dbPath = fmt.Sprintf("%s/io_test", tmpDir)
var dbFile = fmt.Sprintf("%s/test.db", dbPath)

func testDBURL() *url.URL {
	url, err := url.Parse("sqlite3://" + dbFile)
	if err != nil {
		panic(err)
	}
	return url
}

func resetTestDb() {
	os.RemoveAll(dbPath)
}

func setupDb() *sqlx.DB {
	resetTestDb()

	db, err := CreateDBConnection(testDBURL())
	if err != nil {
		panic(err)
	}
	return db
}
