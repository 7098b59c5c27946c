package pipeline

import (
	"context"

	"github.com/sells-group/broadband-cli/internal/join"
	"github.com/sells-group/broadband-cli/internal/model"
	"github.com/sells-group/broadband-cli/internal/normalize"
	"github.com/sells-group/broadband-cli/internal/report"
	"github.com/sells-group/broadband-cli/internal/stats"
	"github.com/sells-group/broadband-cli/internal/tier"
)

// nameAreaField holds the "{name}|{type}" area key on the summary table.
const nameAreaField = "Name_Area"

func tierField(k tier.Kind) string { return string(k) + "_Tier" }

func maxField(k tier.Kind) string { return "MAX_" + string(k) }

func (p *Pipeline) countField() string { return "COUNT_" + p.cfg.Fields.AddressID }

// reportOptions lists every report in output order.
func reportOptions() []report.Options {
	var out []report.Options
	for _, k := range tier.Kinds {
		for _, g := range report.Geometries {
			out = append(out, report.Options{Kind: k, Geometry: g})
		}
	}
	return out
}

func (p *Pipeline) statsSteps() []step {
	t, f := p.cfg.Tables, p.cfg.Fields
	steps := []step{
		{name: "max_speeds", table: t.MSBA, run: p.maxSpeeds},
		{name: "join_area", table: t.MSBA, needs: []string{"max_speeds"}, run: p.joinArea},
		{name: "name_area", table: t.MSBA, needs: []string{"join_area"}, run: p.nameArea},
		{name: "count_area", table: t.AddressCountArea, needs: []string{"name_area"}, run: func(ctx context.Context) error {
			return p.countBy(ctx, []string{nameAreaField}, t.AddressCountArea)
		}},
		{name: "count_type", table: t.AddressCountType, needs: []string{"join_area"}, run: func(ctx context.Context) error {
			return p.countBy(ctx, []string{f.AreaType}, t.AddressCountType)
		}},
		{name: "count_county", table: t.AddressCountCounty, needs: []string{"join_area"}, run: func(ctx context.Context) error {
			return p.countBy(ctx, []string{f.CountyNbr}, t.AddressCountCounty)
		}},
		{name: "speed_tiers", table: t.MSBA, needs: []string{"name_area"}, run: p.speedTiers},
	}
	for _, o := range reportOptions() {
		s := step{name: "frequency_" + o.Name(), table: o.Name(), needs: []string{"speed_tiers"}}
		switch o.Geometry {
		case report.GeometryArea:
			s.run = func(ctx context.Context) error { return p.areaFrequency(ctx, o) }
		case report.GeometryCounty:
			s.needs = append(s.needs, "count_county")
			s.run = func(ctx context.Context) error { return p.countyFrequency(ctx, o) }
		}
		steps = append(steps, s)
	}
	return steps
}

// maxSpeeds reduces the address service table to one row per address with
// its best advertised speeds.
func (p *Pipeline) maxSpeeds(ctx context.Context) error {
	asf, err := p.load(ctx, p.cfg.Tables.AddressServiceFinal)
	if err != nil {
		return err
	}
	fields := make([]string, len(tier.Kinds))
	for i, k := range tier.Kinds {
		fields[i] = string(k)
	}
	msba, err := stats.MaxByGroup(asf, p.cfg.Fields.AddressID, fields, p.cfg.Tables.MSBA)
	if err != nil {
		return err
	}
	return p.save(ctx, msba)
}

// joinArea copies each address's area name, type, and county onto the
// summary table.
func (p *Pipeline) joinArea(ctx context.Context) error {
	f := p.cfg.Fields
	asf, err := p.load(ctx, p.cfg.Tables.AddressServiceFinal)
	if err != nil {
		return err
	}
	msba, err := p.load(ctx, p.cfg.Tables.MSBA)
	if err != nil {
		return err
	}
	area := []string{f.Name, f.AreaType, f.CountyNbr}
	spec := join.Spec{SourceKey: f.AddressID, SourceFields: area, TargetKey: f.AddressID, TargetFields: area}
	if err := p.joinOnto(asf, msba, spec); err != nil {
		return err
	}
	return p.save(ctx, msba)
}

func (p *Pipeline) nameArea(ctx context.Context) error {
	msba, err := p.load(ctx, p.cfg.Tables.MSBA)
	if err != nil {
		return err
	}
	if err := stats.CompositeField(msba, nameAreaField, "|", p.cfg.Fields.Name, p.cfg.Fields.AreaType); err != nil {
		return err
	}
	return p.save(ctx, msba)
}

func (p *Pipeline) countBy(ctx context.Context, groupFields []string, out string) error {
	msba, err := p.load(ctx, p.cfg.Tables.MSBA)
	if err != nil {
		return err
	}
	counts, err := stats.CountByGroup(msba, groupFields, p.cfg.Fields.AddressID, out)
	if err != nil {
		return err
	}
	return p.save(ctx, counts)
}

// speedTiers writes a tier code for each measured maximum. Null maxima are
// zeroed first since the classifier rejects them.
func (p *Pipeline) speedTiers(ctx context.Context) error {
	msba, err := p.load(ctx, p.cfg.Tables.MSBA)
	if err != nil {
		return err
	}
	for _, k := range tier.Kinds {
		n, err := normalize.NormalizeNumeric(msba, maxField(k))
		if err != nil {
			return err
		}
		p.metrics.NullsFilled.WithLabelValues(msba.Name, maxField(k)).Add(float64(n))

		tbl, err := tier.TableFor(k)
		if err != nil {
			return err
		}
		msba.EnsureField(tierField(k), model.KindInteger)
		if err := tier.ClassifyField(msba, maxField(k), tierField(k), tbl); err != nil {
			return err
		}
	}
	return p.save(ctx, msba)
}

// areaFrequency counts addresses per (area, tier).
func (p *Pipeline) areaFrequency(ctx context.Context, o report.Options) error {
	msba, err := p.load(ctx, p.cfg.Tables.MSBA)
	if err != nil {
		return err
	}
	freq, err := stats.Frequency(msba, []string{nameAreaField, tierField(o.Kind)}, o.Name())
	if err != nil {
		return err
	}
	return p.save(ctx, freq)
}

// countyFrequency counts addresses per (county, tier), then joins in the
// county name and the county's address count.
func (p *Pipeline) countyFrequency(ctx context.Context, o report.Options) error {
	t, f := p.cfg.Tables, p.cfg.Fields
	msba, err := p.load(ctx, t.MSBA)
	if err != nil {
		return err
	}
	freq, err := stats.Frequency(msba, []string{f.CountyNbr, tierField(o.Kind)}, o.Name())
	if err != nil {
		return err
	}

	counties, err := p.load(ctx, t.Counties)
	if err != nil {
		return err
	}
	if err := p.joinOnto(counties, freq, join.Spec{
		SourceKey:    f.CountyNbr,
		SourceFields: []string{f.Name},
		TargetKey:    f.CountyNbr,
		TargetFields: []string{f.Name},
	}); err != nil {
		return err
	}

	counts, err := p.load(ctx, t.AddressCountCounty)
	if err != nil {
		return err
	}
	if err := p.joinOnto(counts, freq, join.Spec{
		SourceKey:    f.CountyNbr,
		SourceFields: []string{p.countField()},
		TargetKey:    f.CountyNbr,
		TargetFields: []string{p.countField()},
	}); err != nil {
		return err
	}
	return p.save(ctx, freq)
}
