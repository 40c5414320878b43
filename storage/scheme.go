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
	"net/url"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/gorse-io/itemcf/dataset"
	"github.com/juju/errors"
	"github.com/samber/lo"
)

const (
	MySQLPrefix      = "mysql://"
	MongoPrefix      = "mongodb://"
	MongoSrvPrefix   = "mongodb+srv://"
	PostgresPrefix   = "postgres://"
	PostgreSQLPrefix = "postgresql://"
	SQLitePrefix     = "sqlite://"
)

// Source is a store of explicit ratings.
type Source interface {
	// Init creates the rating table or collection if it does not exist.
	Init(ctx context.Context) error
	// Load returns every rating. Ratings out of the valid range fail the load.
	Load(ctx context.Context) ([]dataset.Rating, error)
	// Insert ratings, replacing existing ratings of the same (user, item).
	Insert(ctx context.Context, ratings []dataset.Rating) error
	Close() error
}

// Open connects to a rating source. A path without a known database prefix is
// treated as a CSV file. table names the rating table or collection.
func Open(path, table string, opts dataset.CSVOptions) (Source, error) {
	if strings.HasPrefix(path, MySQLPrefix) {
		name := path[len(MySQLPrefix):]
		name, err := AppendMySQLParams(name, map[string]string{"parseTime": "true"})
		if err != nil {
			return nil, errors.Trace(err)
		}
		return openSQL(MySQL, name, table, opts)
	} else if strings.HasPrefix(path, PostgresPrefix) || strings.HasPrefix(path, PostgreSQLPrefix) {
		return openSQL(Postgres, path, table, opts)
	} else if strings.HasPrefix(path, SQLitePrefix) {
		path, err := AppendURLParams(path, []lo.Tuple2[string, string]{
			{"_pragma", "busy_timeout(10000)"},
			{"_pragma", "journal_mode(wal)"},
		})
		if err != nil {
			return nil, errors.Trace(err)
		}
		return openSQL(SQLite, path[len(SQLitePrefix):], table, opts)
	} else if strings.HasPrefix(path, MongoPrefix) || strings.HasPrefix(path, MongoSrvPrefix) {
		return openMongo(path, table, opts)
	} else if strings.Contains(path, "://") {
		return nil, errors.NotSupportedf("rating source %s", path)
	}
	return &CSV{path: path, opts: opts}, nil
}

func AppendURLParams(rawURL string, params []lo.Tuple2[string, string]) (string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", errors.Trace(err)
	}
	q := parsed.Query()
	for _, tuple := range params {
		q.Add(tuple.A, tuple.B)
	}
	parsed.RawQuery = q.Encode()
	return parsed.String(), nil
}

func AppendMySQLParams(dsn string, params map[string]string) (string, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return "", errors.Trace(err)
	}
	if cfg.Params == nil {
		cfg.Params = make(map[string]string)
	}
	for key, value := range params {
		if _, exist := cfg.Params[key]; !exist {
			cfg.Params[key] = value
		}
	}
	return cfg.FormatDSN(), nil
}

func validate(ratings []dataset.Rating, opts dataset.CSVOptions) error {
	for _, r := range ratings {
		if err := dataset.ValidateRating(r, opts.MinRating, opts.MaxRating); err != nil {
			return errors.Trace(err)
		}
	}
	return nil
}
