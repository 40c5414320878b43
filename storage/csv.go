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
	"os"
	"path/filepath"
	"strconv"

	"github.com/gorse-io/itemcf/dataset"
	"github.com/juju/errors"
)

// CSV is a rating source backed by a delimited text file.
type CSV struct {
	path string
	opts dataset.CSVOptions
}

func (c *CSV) Init(_ context.Context) error {
	if _, err := os.Stat(c.path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return errors.Trace(err)
	}
	if err := os.MkdirAll(filepath.Dir(c.path), os.ModePerm); err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(c.write(nil, os.O_CREATE|os.O_WRONLY))
}

func (c *CSV) Load(_ context.Context) ([]dataset.Rating, error) {
	return dataset.LoadCSVFile(c.path, c.opts)
}

// Insert appends ratings to the end of the file. Earlier ratings of the same
// (user, item) are not removed.
func (c *CSV) Insert(_ context.Context, ratings []dataset.Rating) error {
	if err := validate(ratings, c.opts); err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(c.write(ratings, os.O_APPEND|os.O_WRONLY))
}

func (c *CSV) write(ratings []dataset.Rating, flag int) error {
	f, err := os.OpenFile(c.path, flag, 0644)
	if err != nil {
		return errors.Trace(err)
	}
	defer f.Close()
	sep := string(c.opts.Separator)
	if c.opts.Separator == 0 {
		sep = ","
	}
	if flag&os.O_CREATE != 0 && c.opts.Header {
		if _, err = f.WriteString("userId" + sep + "itemId" + sep + "rating" + "\n"); err != nil {
			return errors.Trace(err)
		}
	}
	for _, r := range ratings {
		line := strconv.Itoa(r.UserId) + sep + strconv.Itoa(r.ItemId) + sep + strconv.FormatFloat(r.Value, 'f', -1, 64) + "\n"
		if _, err = f.WriteString(line); err != nil {
			return errors.Trace(err)
		}
	}
	return nil
}

func (c *CSV) Close() error {
	return nil
}
