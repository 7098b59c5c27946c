package pipeline

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/broadband-cli/internal/engine"
	"github.com/sells-group/broadband-cli/internal/join"
	"github.com/sells-group/broadband-cli/internal/keycodec"
	"github.com/sells-group/broadband-cli/internal/model"
	"github.com/sells-group/broadband-cli/internal/normalize"
	"github.com/sells-group/broadband-cli/internal/store"
)

// Coordinate fields added to the address service table.
const (
	xField = "x"
	yField = "y"
)

func (p *Pipeline) analyzeSteps() []step {
	t, f := p.cfg.Tables, p.cfg.Fields
	return []step{
		{name: "analysis_areas", table: t.AnalysisAreas, run: func(ctx context.Context) error {
			return p.overlay(ctx, engine.Task{
				Op:     engine.OpUnion,
				Inputs: []string{t.Counties, t.Municipal, t.Unincorp},
				Output: t.AnalysisAreas,
			})
		}},
		{name: "composite_key", table: t.BBService, run: p.compositeKey},
		{name: "dissolve", table: t.ServiceDissolve, needs: []string{"composite_key"}, run: func(ctx context.Context) error {
			return p.overlay(ctx, engine.Task{
				Op:     engine.OpDissolve,
				Inputs: []string{t.BBService},
				Output: t.ServiceDissolve,
				By:     f.Key,
			})
		}},
		{name: "pairwise_intersect", table: t.ServicePairwise, needs: []string{"dissolve", "analysis_areas"}, run: func(ctx context.Context) error {
			return p.overlay(ctx, engine.Task{
				Op:     engine.OpPairwiseIntersect,
				Inputs: []string{t.ServiceDissolve, t.AnalysisAreas},
				Output: t.ServicePairwise,
			})
		}},
		{name: "identity", table: t.AddressServiceFinal, needs: []string{"pairwise_intersect"}, run: func(ctx context.Context) error {
			return p.overlay(ctx, engine.Task{
				Op:     engine.OpIdentity,
				Inputs: []string{t.AddressPoints, t.ServicePairwise},
				Output: t.AddressServiceFinal,
			})
		}},
		{name: "add_keys", table: t.AddressServiceFinal, needs: []string{"identity"}, run: p.addKeyFields},
		{name: "populate_keys", table: t.AddressServiceFinal, needs: []string{"add_keys"}, run: p.populateKeys},
		{name: "no_service_normalize", table: t.AddressServiceFinal, needs: []string{"populate_keys"}, run: p.normalizeSpeeds},
		{name: "no_service_table", table: t.NoService, needs: []string{"no_service_normalize"}, run: p.noServiceTable},
		{name: "no_service_identity", table: t.NoServiceID, needs: []string{"no_service_table", "analysis_areas"}, run: func(ctx context.Context) error {
			return p.overlay(ctx, engine.Task{
				Op:     engine.OpIdentity,
				Inputs: []string{t.NoService, t.AnalysisAreas},
				Output: t.NoServiceID,
			})
		}},
		{name: "no_service_join", table: t.AddressServiceFinal, needs: []string{"no_service_identity"}, run: p.noServiceJoin},
	}
}

// compositeKey fills the key field on the service table from its four
// source fields wherever it is missing or null.
func (p *Pipeline) compositeKey(ctx context.Context) error {
	f := p.cfg.Fields
	if len(f.KeySources) != 4 {
		return eris.Errorf("pipeline: %d key source fields, want 4", len(f.KeySources))
	}
	svc, err := p.load(ctx, p.cfg.Tables.BBService)
	if err != nil {
		return err
	}
	if err := svc.RequireFields(f.KeySources...); err != nil {
		return err
	}
	created := svc.EnsureField(f.Key, model.KindText)
	ki := svc.Index(f.Key)
	src := f.KeySources

	var filled int
	for i, r := range svc.Rows() {
		if !r.At(ki).IsNull() {
			continue
		}
		key := keycodec.EncodeRecord(r, src[0], src[1], src[2], src[3])
		if err := r.SetAt(ki, model.Text(key)); err != nil {
			return eris.Wrapf(err, "pipeline: key row %d", i)
		}
		filled++
	}
	if filled == 0 && !created {
		return nil
	}
	zap.L().Info("pipeline: composite keys built",
		zap.String("table", svc.Name),
		zap.Int("filled", filled),
	)
	return p.save(ctx, svc)
}

// addKeyFields prepares the decomposed key and coordinate fields.
func (p *Pipeline) addKeyFields(ctx context.Context) error {
	asf, err := p.load(ctx, p.cfg.Tables.AddressServiceFinal)
	if err != nil {
		return err
	}
	targets := keycodec.DefaultTargets
	asf.EnsureField(targets[keycodec.SlotProvider], model.KindText)
	asf.EnsureField(targets[keycodec.SlotTechType], model.KindText)
	asf.EnsureField(targets[keycodec.SlotMaxDown], model.KindFloat)
	asf.EnsureField(targets[keycodec.SlotMaxUp], model.KindFloat)
	asf.EnsureField(xField, model.KindFloat)
	asf.EnsureField(yField, model.KindFloat)
	return nil
}

// populateKeys decomposes every non-null key into the target fields and
// copies shape coordinates into x and y.
func (p *Pipeline) populateKeys(ctx context.Context) error {
	asf, err := p.load(ctx, p.cfg.Tables.AddressServiceFinal)
	if err != nil {
		return err
	}
	if err := asf.RequireFields(p.cfg.Fields.Key); err != nil {
		return err
	}
	ki := asf.Index(p.cfg.Fields.Key)
	sx, sy := asf.Index(store.ShapeXField), asf.Index(store.ShapeYField)
	dx, dy := asf.Index(xField), asf.Index(yField)

	log := zap.L().With(zap.String("run_id", p.runID), zap.String("table", asf.Name))
	var decoded, skipped int
	for i, r := range asf.Rows() {
		if every := p.cfg.Pipeline.LogEvery; every > 0 && i > 0 && i%every == 0 {
			if err := ctx.Err(); err != nil {
				return eris.Wrap(err, "pipeline: populate keys")
			}
			log.Info("pipeline: populating keys", zap.Int("rows", i))
		}
		if err := copyCoord(r, sx, dx); err != nil {
			return eris.Wrapf(err, "pipeline: x row %d", i)
		}
		if err := copyCoord(r, sy, dy); err != nil {
			return eris.Wrapf(err, "pipeline: y row %d", i)
		}

		key := r.At(ki)
		if key.IsNull() {
			skipped++
			continue
		}
		if err := keycodec.Apply(r, keycodec.Decompose(key.Str()), keycodec.DefaultTargets); err != nil {
			return eris.Wrapf(err, "pipeline: decompose row %d", i)
		}
		decoded++
	}
	log.Info("pipeline: keys populated", zap.Int("decoded", decoded), zap.Int("null_keys", skipped))
	return p.save(ctx, asf)
}

func copyCoord(r *model.Record, src, dst int) error {
	if src < 0 || dst < 0 {
		return nil
	}
	return r.SetAt(dst, r.At(src))
}

// normalizeSpeeds rewrites null speeds to zero so unserved addresses can be
// selected and classified.
func (p *Pipeline) normalizeSpeeds(ctx context.Context) error {
	asf, err := p.load(ctx, p.cfg.Tables.AddressServiceFinal)
	if err != nil {
		return err
	}
	targets := keycodec.DefaultTargets
	counts, err := normalize.NormalizeFields(asf, targets[keycodec.SlotMaxDown], targets[keycodec.SlotMaxUp])
	if err != nil {
		return err
	}
	var total int
	for field, n := range counts {
		p.metrics.NullsFilled.WithLabelValues(asf.Name, field).Add(float64(n))
		total += n
	}
	if total == 0 {
		return nil
	}
	return p.save(ctx, asf)
}

// noServiceTable writes the addresses with no advertised download speed.
func (p *Pipeline) noServiceTable(ctx context.Context) error {
	asf, err := p.load(ctx, p.cfg.Tables.AddressServiceFinal)
	if err != nil {
		return err
	}
	di := asf.Index(keycodec.DefaultTargets[keycodec.SlotMaxDown])
	ns := asf.Filter(p.cfg.Tables.NoService, func(r *model.Record) bool {
		v, ok := r.At(di).Float64()
		return ok && v == 0
	})
	zap.L().Info("pipeline: unserved addresses", zap.String("table", ns.Name), zap.Int("rows", ns.Len()))
	return p.save(ctx, ns)
}

// noServiceJoin copies the area attributes the identity overlay assigned to
// unserved addresses back onto the address service table.
func (p *Pipeline) noServiceJoin(ctx context.Context) error {
	t, f := p.cfg.Tables, p.cfg.Fields
	src, err := p.load(ctx, t.NoServiceID)
	if err != nil {
		return err
	}
	asf, err := p.load(ctx, t.AddressServiceFinal)
	if err != nil {
		return err
	}
	areaFields := []string{f.Name, f.AreaType, f.CountyNbr}
	srcFields := make([]string, len(areaFields))
	for i, a := range areaFields {
		srcFields[i] = a + f.IdentitySfx
	}
	spec := join.Spec{
		SourceKey:    f.AddressID,
		SourceFields: srcFields,
		TargetKey:    f.AddressID,
		TargetFields: areaFields,
	}
	if err := p.joinOnto(src, asf, spec); err != nil {
		return err
	}
	return p.save(ctx, asf)
}

// joinOnto prepares target's schema and hash joins source onto it.
func (p *Pipeline) joinOnto(source, target *model.Table, spec join.Spec) error {
	if _, err := join.PrepareTarget(source, target, spec); err != nil {
		return err
	}
	res, err := join.HashJoin(source, target, spec)
	if err != nil {
		return err
	}
	p.metrics.JoinRows.WithLabelValues(target.Name, "matched").Add(float64(res.Matched))
	p.metrics.JoinRows.WithLabelValues(target.Name, "unmatched").Add(float64(res.Unmatched))

	log := zap.L().With(
		zap.String("run_id", p.runID),
		zap.String("source", source.Name),
		zap.String("target", target.Name),
	)
	if res.Duplicates > 0 {
		log.Warn("pipeline: duplicate join keys, last row wins", zap.Int("duplicates", res.Duplicates))
	}
	log.Info("pipeline: joined",
		zap.Int("indexed", res.Indexed),
		zap.Int("matched", res.Matched),
		zap.Int("unmatched", res.Unmatched),
	)
	return nil
}
