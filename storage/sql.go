// Copyright 2022 gorse Project Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package storage

import (
	"context"
	"database/sql"

	"github.com/XSAM/otelsql"
	"github.com/gorse-io/itemcf/dataset"
	"github.com/juju/errors"
	_ "github.com/lib/pq"
	"github.com/samber/lo"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
	"gorm.io/gorm/schema"
	_ "modernc.org/sqlite"
)

type SQLDriver int

const (
	MySQL SQLDriver = iota
	Postgres
	SQLite
)

func (d SQLDriver) String() string {
	switch d {
	case MySQL:
		return "mysql"
	case Postgres:
		return "postgres"
	case SQLite:
		return "sqlite"
	}
	return "unknown"
}

// SQLRating is a row of the rating table.
type SQLRating struct {
	UserId int     `gorm:"column:user_id;primaryKey;autoIncrement:false"`
	ItemId int     `gorm:"column:item_id;primaryKey;autoIncrement:false"`
	Rating float64 `gorm:"column:rating"`
}

// SQLDatabase is a rating source backed by MySQL, Postgres or SQLite.
type SQLDatabase struct {
	driver SQLDriver
	table  string
	opts   dataset.CSVOptions
	client *sql.DB
	gormDB *gorm.DB
}

func NewGORMConfig() *gorm.Config {
	return &gorm.Config{
		Logger:                 logger.Default.LogMode(logger.Silent),
		CreateBatchSize:        1000,
		SkipDefaultTransaction: true,
		NamingStrategy: schema.NamingStrategy{
			SingularTable: true,
		},
	}
}

func openSQL(driver SQLDriver, dsn, table string, opts dataset.CSVOptions) (*SQLDatabase, error) {
	database := &SQLDatabase{driver: driver, table: table, opts: opts}
	var err error
	if database.client, err = otelsql.Open(driver.String(), dsn,
		otelsql.WithSpanOptions(otelsql.SpanOptions{DisableErrSkip: true}),
	); err != nil {
		return nil, errors.Trace(err)
	}
	var dialector gorm.Dialector
	switch driver {
	case MySQL:
		dialector = mysql.New(mysql.Config{Conn: database.client})
	case Postgres:
		dialector = postgres.New(postgres.Config{Conn: database.client})
	case SQLite:
		dialector = sqlite.Dialector{Conn: database.client}
	}
	if database.gormDB, err = gorm.Open(dialector, NewGORMConfig()); err != nil {
		return nil, errors.Trace(err)
	}
	return database, nil
}

func (d *SQLDatabase) Init(ctx context.Context) error {
	return errors.Trace(d.gormDB.WithContext(ctx).Table(d.table).AutoMigrate(&SQLRating{}))
}

func (d *SQLDatabase) Load(ctx context.Context) ([]dataset.Rating, error) {
	rows, err := d.gormDB.WithContext(ctx).
		Table(d.table).
		Select("user_id", "item_id", "rating").
		Order("user_id, item_id").
		Rows()
	if err != nil {
		return nil, errors.Trace(err)
	}
	defer rows.Close()
	var ratings []dataset.Rating
	for rows.Next() {
		var r dataset.Rating
		if err = rows.Scan(&r.UserId, &r.ItemId, &r.Value); err != nil {
			return nil, errors.Trace(err)
		}
		if err = dataset.ValidateRating(r, d.opts.MinRating, d.opts.MaxRating); err != nil {
			return nil, errors.Trace(err)
		}
		ratings = append(ratings, r)
	}
	return ratings, errors.Trace(rows.Err())
}

func (d *SQLDatabase) Insert(ctx context.Context, ratings []dataset.Rating) error {
	if len(ratings) == 0 {
		return nil
	}
	if err := validate(ratings, d.opts); err != nil {
		return errors.Trace(err)
	}
	rows := lo.Map(ratings, func(r dataset.Rating, _ int) SQLRating {
		return SQLRating{UserId: r.UserId, ItemId: r.ItemId, Rating: r.Value}
	})
	err := d.gormDB.WithContext(ctx).
		Table(d.table).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "item_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"rating"}),
		}).
		Create(&rows).Error
	return errors.Trace(err)
}

func (d *SQLDatabase) Close() error {
	return d.client.Close()
}
