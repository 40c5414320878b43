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

package dataset

import (
	"encoding/csv"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/juju/errors"
)

// CSVOptions controls how rating files are parsed.
type CSVOptions struct {
	Header    bool
	Separator rune
	MinRating float64
	MaxRating float64
}

// DefaultCSVOptions matches MovieLens style files: userId,itemId,rating,timestamp with a header.
func DefaultCSVOptions() CSVOptions {
	return CSVOptions{
		Header:    true,
		Separator: ',',
		MinRating: 0,
		MaxRating: 5,
	}
}

// LoadCSVFile loads ratings from a file. See LoadCSV.
func LoadCSVFile(path string, opts CSVOptions) ([]Rating, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Trace(err)
	}
	defer f.Close()
	ratings, err := LoadCSV(f, opts)
	if err != nil {
		return nil, errors.Annotatef(err, "load %s", path)
	}
	return ratings, nil
}

// LoadCSV parses rows of userId,itemId,rating[,timestamp,...]. Columns after the
// rating are ignored. A row with fewer than three fields, a malformed number or an
// out-of-range rating fails the whole load with a NotValid error naming the line.
func LoadCSV(r io.Reader, opts CSVOptions) ([]Rating, error) {
	reader := csv.NewReader(r)
	if opts.Separator != 0 {
		reader.Comma = opts.Separator
	}
	reader.FieldsPerRecord = -1
	reader.ReuseRecord = true
	var ratings []Rating
	for record := 0; ; record++ {
		fields, err := reader.Read()
		if err == io.EOF {
			break
		} else if err != nil {
			return nil, errors.Trace(err)
		}
		if record == 0 && opts.Header {
			continue
		}
		lineNumber, _ := reader.FieldPos(0)
		if len(fields) == 1 && strings.TrimSpace(fields[0]) == "" {
			continue
		}
		if len(fields) < 3 {
			return nil, errors.NotValidf("line %d: %d fields (expected userId,itemId,rating)", lineNumber, len(fields))
		}
		userId, err := strconv.Atoi(strings.TrimSpace(fields[0]))
		if err != nil {
			return nil, errors.NotValidf("line %d: user id %q", lineNumber, fields[0])
		}
		itemId, err := strconv.Atoi(strings.TrimSpace(fields[1]))
		if err != nil {
			return nil, errors.NotValidf("line %d: item id %q", lineNumber, fields[1])
		}
		value, err := strconv.ParseFloat(strings.TrimSpace(fields[2]), 64)
		if err != nil {
			return nil, errors.NotValidf("line %d: rating %q", lineNumber, fields[2])
		}
		rating := Rating{UserId: userId, ItemId: itemId, Value: value}
		if err = ValidateRating(rating, opts.MinRating, opts.MaxRating); err != nil {
			return nil, errors.Annotatef(err, "line %d", lineNumber)
		}
		ratings = append(ratings, rating)
	}
	return ratings, nil
}
