package redis

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/redis/rueidis"

	"github.com/classpeak/searchcore/internal/db"
)

// SearchCandidates retrieves candidate rows via FT.SEARCH. With a vector it
// runs filtered KNN; without one it degrades to filter-only retrieval.
func (s *Store) SearchCandidates(ctx context.Context, q *db.CandidateQuery) (*db.SearchResult, error) {
	if q.IndexName == "" {
		return nil, fmt.Errorf("index name is required")
	}
	if q.Limit <= 0 {
		return nil, fmt.Errorf("limit must be positive")
	}

	filterStr := buildCandidateFilter(q)

	var args []string
	if len(q.Vector) > 0 {
		knnPart := fmt.Sprintf("[KNN %d @vector $BLOB]", q.Limit)
		queryStr := fmt.Sprintf("%s=>%s", filterStr, knnPart)
		args = []string{q.IndexName, queryStr}
		if len(q.ReturnFields) > 0 {
			args = append(args, "RETURN", strconv.Itoa(len(q.ReturnFields)))
			args = append(args, q.ReturnFields...)
		}
		args = append(args, "PARAMS", "2", "BLOB", vectorToBytes(q.Vector), "DIALECT", "2")
	} else {
		args = []string{q.IndexName, filterStr}
		if len(q.ReturnFields) > 0 {
			args = append(args, "RETURN", strconv.Itoa(len(q.ReturnFields)))
			args = append(args, q.ReturnFields...)
		}
		args = append(args, "LIMIT", "0", strconv.Itoa(q.Limit), "DIALECT", "2")
	}

	cmd := s.b().Arbitrary("FT.SEARCH").Args(args...).Build()
	raw, err := s.do(ctx, cmd).ToArray()
	if err != nil {
		return nil, &db.Error{Op: db.OpSearch, Err: err}
	}

	return parseCandidateResult(raw, len(q.Vector) > 0)
}

// buildCandidateFilter translates query constraints into an FT.SEARCH
// pre-filter string. An unconstrained query matches everything ("*").
func buildCandidateFilter(q *db.CandidateQuery) string {
	var parts []string

	if q.RegionID != "" {
		parts = append(parts, fmt.Sprintf("@region:{%s}", escapeTag(q.RegionID)))
	}
	if q.Borough != "" {
		parts = append(parts, fmt.Sprintf("@borough:{%s}", escapeTag(q.Borough)))
	}
	if q.Audience != "" {
		// "both" matches any audience constraint.
		parts = append(parts, fmt.Sprintf("@audience:{%s|both}", escapeTag(q.Audience)))
	}
	if q.PriceMin != nil || q.PriceMax != nil {
		lo, hi := "-inf", "+inf"
		if q.PriceMin != nil {
			lo = strconv.FormatFloat(*q.PriceMin, 'f', -1, 64)
		}
		if q.PriceMax != nil {
			hi = strconv.FormatFloat(*q.PriceMax, 'f', -1, 64)
		}
		parts = append(parts, fmt.Sprintf("@price:[%s %s]", lo, hi))
	}

	if len(parts) == 0 {
		return "*"
	}
	return "(" + strings.Join(parts, " ") + ")"
}

func parseCandidateResult(raw []rueidis.RedisMessage, knn bool) (*db.SearchResult, error) {
	if len(raw) == 0 {
		return &db.SearchResult{}, nil
	}

	total, err := raw[0].AsInt64()
	if err != nil {
		return nil, fmt.Errorf("parse total: %w", err)
	}
	if total == 0 {
		return &db.SearchResult{}, nil
	}

	entries := make([]db.SearchEntry, 0, total)
	// 2-stride: [total, key1, fields1, key2, fields2, ...]
	for i := 1; i+1 < len(raw); i += 2 {
		key, err := raw[i].ToString()
		if err != nil {
			continue
		}

		fields, err := raw[i+1].ToArray()
		if err != nil {
			continue
		}

		entry := db.SearchEntry{
			Key:    key,
			Fields: parseFieldPairs(fields),
		}

		if knn {
			if scoreStr, ok := entry.Fields["__vector_score"]; ok {
				if s, err := strconv.ParseFloat(scoreStr, 64); err == nil {
					entry.Score = max(0, 1.0-s) // cosine distance → similarity, clamped to [0,1]
				}
				delete(entry.Fields, "__vector_score")
			}
		}

		entries = append(entries, entry)
	}

	return &db.SearchResult{Total: int(total), Entries: entries}, nil
}

func parseFieldPairs(fields []rueidis.RedisMessage) map[string]string {
	m := make(map[string]string, len(fields)/2)
	for j := 0; j+1 < len(fields); j += 2 {
		name, err := fields[j].ToString()
		if err != nil {
			continue
		}
		value, err := fields[j+1].ToString()
		if err != nil {
			continue
		}
		m[name] = value
	}
	return m
}

// escapeTag escapes characters with special meaning inside a TAG clause.
func escapeTag(v string) string {
	r := strings.NewReplacer(
		"-", "\\-", ".", "\\.", " ", "\\ ",
		"{", "\\{", "}", "\\}", "|", "\\|",
	)
	return r.Replace(v)
}

// vectorToBytes encodes a float32 vector as little-endian bytes for PARAMS.
func vectorToBytes(v []float32) string {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return string(buf)
}
