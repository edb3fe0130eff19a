package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"github.com/iliyamo/campaign-session/internal/model"
)

// ReferenceWriter is the part of repository.ReferenceRepo the importer
// needs. Writes go through the master-data lock.
type ReferenceWriter interface {
	UpsertMany(ctx context.Context, kind model.ReferenceKind, recs []*model.ReferenceRecord) error
	IDByCode(ctx context.Context, kind model.ReferenceKind, code string) (string, error)
}

// WardDataset is the scraper output: district -> local body -> ward count.
type WardDataset map[string]map[string]int

// ParseWardDataset decodes a scraped_wards.json document. Wikipedia note
// markers such as "[note 1]" are stripped from names.
func ParseWardDataset(r io.Reader) (WardDataset, error) {
	var raw map[string]map[string]int
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decoding ward dataset: %w", err)
	}
	out := make(WardDataset, len(raw))
	for district, bodies := range raw {
		d := cleanName(district)
		if d == "" {
			continue
		}
		if out[d] == nil {
			out[d] = map[string]int{}
		}
		for body, wards := range bodies {
			if b := cleanName(body); b != "" {
				out[d][b] = wards
			}
		}
	}
	return out, nil
}

func cleanName(s string) string {
	if i := strings.IndexByte(s, '['); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}

// Slug upper-cases s and collapses every run of non-alphanumerics to '-'.
func Slug(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.TrimSpace(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToUpper(r))
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}

func localBodyType(name string) string {
	lower := strings.ToLower(name)
	switch {
	case strings.HasSuffix(lower, " corporation"):
		return "corporation"
	case strings.HasSuffix(lower, " municipality"):
		return "municipality"
	}
	return "other"
}

// ImportSummary counts the records written per kind.
type ImportSummary struct {
	States      int
	Districts   int
	LocalBodies int
	Wards       int
}

// ImportWards upserts the state, its districts, their local bodies and one
// ward record per ward number. Running it twice leaves the same rows.
func ImportWards(ctx context.Context, w ReferenceWriter, stateName string, data WardDataset) (ImportSummary, error) {
	var sum ImportSummary
	stateCode := Slug(stateName)
	if stateCode == "" {
		return sum, fmt.Errorf("state name is required")
	}
	if err := w.UpsertMany(ctx, model.KindState, []*model.ReferenceRecord{{Code: stateCode, Name: strings.TrimSpace(stateName)}}); err != nil {
		return sum, err
	}
	sum.States = 1
	stateID, err := w.IDByCode(ctx, model.KindState, stateCode)
	if err != nil {
		return sum, err
	}

	districts := sortedKeys(data)
	recs := make([]*model.ReferenceRecord, 0, len(districts))
	for _, d := range districts {
		recs = append(recs, &model.ReferenceRecord{Code: stateCode + "." + Slug(d), Name: d, ParentID: stateID})
	}
	if err := w.UpsertMany(ctx, model.KindDistrict, recs); err != nil {
		return sum, err
	}
	sum.Districts = len(recs)

	for _, d := range districts {
		districtCode := stateCode + "." + Slug(d)
		districtID, err := w.IDByCode(ctx, model.KindDistrict, districtCode)
		if err != nil {
			return sum, err
		}
		bodies := sortedKeys(data[d])
		lbRecs := make([]*model.ReferenceRecord, 0, len(bodies))
		for _, b := range bodies {
			lbRecs = append(lbRecs, &model.ReferenceRecord{
				Code:       districtCode + "." + Slug(b),
				Name:       b,
				ParentID:   districtID,
				Attributes: map[string]string{"type": localBodyType(b), "ward_count": strconv.Itoa(data[d][b])},
			})
		}
		if err := w.UpsertMany(ctx, model.KindLocalBody, lbRecs); err != nil {
			return sum, err
		}
		sum.LocalBodies += len(lbRecs)

		for i, lb := range lbRecs {
			n := data[d][bodies[i]]
			if n <= 0 {
				continue
			}
			lbID, err := w.IDByCode(ctx, model.KindLocalBody, lb.Code)
			if err != nil {
				return sum, err
			}
			wards := make([]*model.ReferenceRecord, 0, n)
			for num := 1; num <= n; num++ {
				wards = append(wards, &model.ReferenceRecord{
					Code:       fmt.Sprintf("%s-W%d", lb.Code, num),
					Name:       fmt.Sprintf("Ward %d", num),
					ParentID:   lbID,
					Attributes: map[string]string{"number": strconv.Itoa(num)},
				})
			}
			if err := w.UpsertMany(ctx, model.KindWard, wards); err != nil {
				return sum, err
			}
			sum.Wards += n
		}
	}
	return sum, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
