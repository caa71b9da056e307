package grader

import (
	_ "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
)

const mysqlDriverName = "mysql"

func connectDB(dsn string) (*sqlx.DB, error) {
	db, err := sqlx.Connect(mysqlDriverName, dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return db, nil
}
