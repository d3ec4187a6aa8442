package main

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"tradedesk/internal/store"
	"tradedesk/internal/store/model"
)

type columns struct {
	symbol   string
	exchange string
	name     string
}

// tokenRow is one entry of the YAML token list; CSV rows are mapped onto it as well.
type tokenRow struct {
	Symbol      string `yaml:"symbol"`
	Exchange    string `yaml:"exchange"`
	Description string `yaml:"description"`
}

type seedResult struct {
	Added    int
	Existing int
	Skipped  int
}

func readTokens(path string, cols columns) ([]tokenRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		var rows []tokenRow
		dec := yaml.NewDecoder(f)
		dec.KnownFields(true)
		if err := dec.Decode(&rows); err != nil && !errors.Is(err, io.EOF) {
			return nil, err
		}
		return rows, nil
	default:
		return readCSV(f, cols)
	}
}

func readCSV(r io.Reader, cols columns) ([]tokenRow, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	index := make(map[string]int, len(header))
	for i, h := range header {
		index[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))] = i
	}
	symIdx, ok := index[strings.ToLower(cols.symbol)]
	if !ok {
		return nil, fmt.Errorf("column %q not found", cols.symbol)
	}
	exIdx, ok := index[strings.ToLower(cols.exchange)]
	if !ok {
		return nil, fmt.Errorf("column %q not found", cols.exchange)
	}
	nameIdx, hasName := index[strings.ToLower(cols.name)]

	var rows []tokenRow
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		row := tokenRow{Symbol: field(rec, symIdx), Exchange: field(rec, exIdx)}
		if hasName {
			row.Description = field(rec, nameIdx)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func field(rec []string, i int) string {
	if i < 0 || i >= len(rec) {
		return ""
	}
	return strings.TrimSpace(rec[i])
}

// seed inserts rows through Ensure, skipping blanks and duplicates within the run.
func seed(ctx context.Context, tokens store.TokenRepository, rows []tokenRow) (seedResult, error) {
	var res seedResult
	seen := make(map[string]struct{}, len(rows))
	for _, r := range rows {
		sym := strings.TrimSpace(r.Symbol)
		exch := strings.ToUpper(strings.TrimSpace(r.Exchange))
		if sym == "" || exch == "" {
			res.Skipped++
			continue
		}
		key := sym + "|" + exch
		if _, dup := seen[key]; dup {
			res.Skipped++
			continue
		}
		seen[key] = struct{}{}
		_, created, err := tokens.Ensure(ctx, &model.Token{Symbol: sym, Exchange: exch, Description: strings.TrimSpace(r.Description)})
		if err != nil {
			return res, fmt.Errorf("%s/%s: %w", sym, exch, err)
		}
		if created {
			res.Added++
		} else {
			res.Existing++
		}
	}
	return res, nil
}
