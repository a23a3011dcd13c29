package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	mysqldrv "github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"toolcrib/internal/apperr"
)

// forUpdate — эксклюзивное удержание строки до конца транзакции.
// sqlite выражение игнорирует: там всю транзакцию сериализует единственное соединение.
var forUpdate = clause.Locking{Strength: "UPDATE"}

// inTx открывает транзакцию с ограничением ожидания блокировок.
// Внутри fn нельзя обращаться к исходному *gorm.DB: у sqlite одно соединение.
func inTx(ctx context.Context, db *gorm.DB, lockTimeout time.Duration, fn func(g *gorm.DB) error) error {
	if db.Dialector.Name() == "sqlite" && lockTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, lockTimeout)
		defer cancel()
	}
	err := db.WithContext(ctx).Transaction(func(g *gorm.DB) error {
		if err := applyLockTimeout(g, lockTimeout); err != nil {
			return err
		}
		return fn(g)
	})
	return translate(err)
}

func applyLockTimeout(g *gorm.DB, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	switch g.Dialector.Name() {
	case "postgres":
		return g.Exec(fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", d.Milliseconds())).Error
	case "mysql":
		secs := int(d / time.Second)
		if secs < 1 {
			secs = 1
		}
		return g.Exec("SET SESSION innodb_lock_wait_timeout = ?", secs).Error
	}
	return nil
}

// translate: истечение ожидания блокировки -> apperr.ErrLockTimeout,
// остальное без изменений.
func translate(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "55P03", "40P01": // lock_not_available, deadlock_detected
			return apperr.ErrLockTimeout.WithMessage(pgErr.Message)
		}
		return err
	}
	var myErr *mysqldrv.MySQLError
	if errors.As(err, &myErr) {
		switch myErr.Number {
		case 1205, 1213: // lock wait timeout, deadlock
			return apperr.ErrLockTimeout.WithMessage(myErr.Message)
		}
		return err
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		if liteErr.Code == sqlite3.ErrBusy || liteErr.Code == sqlite3.ErrLocked {
			return apperr.ErrLockTimeout.WithMessage(liteErr.Error())
		}
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return apperr.ErrLockTimeout.WithMessage("transaction deadline exceeded")
	}
	return err
}

// takeOne: nil, nil если строки нет.
func takeOne[T any](q *gorm.DB) (*T, error) {
	var v T
	err := q.Take(&v).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func ping(ctx context.Context, db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
