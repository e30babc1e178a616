package commoncodes

import (
	"context"
	_ "embed"
	"fmt"
	"io"
	"log/slog"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

type seedEntry struct {
	Code        string `yaml:"code"`
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Sort        int    `yaml:"sort"`
	System      bool   `yaml:"system"`
	Inactive    bool   `yaml:"inactive"`
}

// DefaultCodes parses the embedded seed file.
func DefaultCodes() ([]CommonCode, error) {
	return ParseSeed(defaultsYAML)
}

// ParseSeed reads a YAML document mapping code types to code lists. Types
// are emitted in Types() order.
func ParseSeed(raw []byte) ([]CommonCode, error) {
	var doc map[Type][]seedEntry
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse code seed: %w", err)
	}
	for t := range doc {
		if !t.Valid() {
			return nil, fmt.Errorf("parse code seed: unknown code type %q", t)
		}
	}
	var out []CommonCode
	for _, t := range Types() {
		for _, e := range doc[t] {
			if e.Code == "" || e.Name == "" {
				return nil, fmt.Errorf("parse code seed: %s entry needs code and name", t)
			}
			out = append(out, CommonCode{
				Type:        t,
				TypeLabel:   t.Label(),
				Code:        e.Code,
				Name:        e.Name,
				Description: e.Description,
				SortOrder:   e.Sort,
				IsActive:    !e.Inactive,
				IsSystem:    e.System,
			})
		}
	}
	return out, nil
}

// SeedResult summarises a Seed run.
type SeedResult struct {
	Inserted int
	Skipped  int
}

// Seed inserts the codes that are missing. Running it twice is harmless.
func (s *Service) Seed(ctx context.Context, codes []CommonCode) (SeedResult, error) {
	var res SeedResult
	for _, c := range codes {
		inserted, err := s.repo.InsertMissing(ctx, c)
		if err != nil {
			return res, fmt.Errorf("seed %s/%s: %w", c.Type, c.Code, err)
		}
		if inserted {
			res.Inserted++
		} else {
			res.Skipped++
		}
	}
	if res.Inserted > 0 {
		if err := s.cache.Bump(ctx); err != nil {
			s.logger.Warn("bump code cache", slog.Any("error", err))
		}
	}
	return res, nil
}

// WriteSeed renders codes back into the seed file layout.
func WriteSeed(w io.Writer, codes []CommonCode) error {
	doc := make(map[Type][]seedEntry)
	for _, c := range codes {
		doc[c.Type] = append(doc[c.Type], seedEntry{
			Code:        c.Code,
			Name:        c.Name,
			Description: c.Description,
			Sort:        c.SortOrder,
			System:      c.IsSystem,
			Inactive:    !c.IsActive,
		})
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return err
	}
	return enc.Close()
}
