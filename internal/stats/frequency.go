package stats

import (
	"github.com/rotisserie/eris"

	"github.com/sells-group/broadband-cli/internal/model"
)

// FrequencyRow is one (group, tier) count read from a frequency table.
type FrequencyRow struct {
	Group     string
	HasGroup  bool // false when the group value was null
	Tier      int
	Frequency int64
}

// FrequencyRows reads a frequency table produced by Frequency (or by the
// external engine's equivalent) in table order.
func FrequencyRows(t *model.Table, groupField, tierField string) ([]FrequencyRow, error) {
	if err := t.RequireFields(FrequencyField, groupField, tierField); err != nil {
		return nil, eris.Wrap(err, "stats: frequency rows")
	}
	fi, gi, ti := t.Index(FrequencyField), t.Index(groupField), t.Index(tierField)

	out := make([]FrequencyRow, 0, t.Len())
	for i, r := range t.Rows() {
		tierCode, ok := r.At(ti).Int64()
		if !ok {
			return nil, eris.Errorf("stats: %s row %d: %s is not a tier code", t.Name, i, tierField)
		}
		freq, ok := r.At(fi).Int64()
		if !ok {
			return nil, eris.Errorf("stats: %s row %d: %s is not a count", t.Name, i, FrequencyField)
		}
		g := r.At(gi)
		out = append(out, FrequencyRow{
			Group:     g.Str(),
			HasGroup:  !g.IsNull(),
			Tier:      int(tierCode),
			Frequency: freq,
		})
	}
	return out, nil
}
