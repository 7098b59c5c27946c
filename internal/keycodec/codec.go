// Package keycodec encodes and decodes the pipe-delimited composite key that
// carries provider, technology, and advertised speeds on service records.
package keycodec

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/broadband-cli/internal/model"
)

// Separator delimits composite key segments.
const Separator = "|"

// Slot positions within a composite key.
const (
	SlotProvider = iota
	SlotTechType
	SlotMaxDown
	SlotMaxUp

	numSlots
)

// Parts holds the decomposed segments of a composite key. A slot with no
// corresponding segment is unset.
type Parts struct {
	values [numSlots]string
	n      int
}

// Set reports whether slot i received a segment.
func (p Parts) Set(i int) bool { return i >= 0 && i < p.n }

// Get returns slot i and whether it is set.
func (p Parts) Get(i int) (string, bool) {
	if !p.Set(i) {
		return "", false
	}
	return p.values[i], true
}

// Provider returns the provider segment.
func (p Parts) Provider() (string, bool) { return p.Get(SlotProvider) }

// TechType returns the technology segment.
func (p Parts) TechType() (string, bool) { return p.Get(SlotTechType) }

// MaxDown returns the advertised download segment.
func (p Parts) MaxDown() (string, bool) { return p.Get(SlotMaxDown) }

// MaxUp returns the advertised upload segment.
func (p Parts) MaxUp() (string, bool) { return p.Get(SlotMaxUp) }

// Decompose splits key on the separator and assigns segments to the four
// slots in order. Segments beyond the fourth are ignored. An empty key yields
// one empty provider segment.
func Decompose(key string) Parts {
	var p Parts
	for i, seg := range strings.SplitN(key, Separator, numSlots+1) {
		if i >= numSlots {
			break
		}
		p.values[i] = seg
		p.n = i + 1
	}
	return p
}

// Encode joins the four segments into a composite key.
func Encode(provider, techType, maxDown, maxUp string) string {
	return strings.Join([]string{provider, techType, maxDown, maxUp}, Separator)
}

// EncodeRecord builds a composite key from four record fields. Nulls encode as
// empty segments.
func EncodeRecord(rec *model.Record, provider, techType, maxDown, maxUp string) string {
	seg := func(name string) string {
		v, _ := rec.Get(name)
		return v.Str()
	}
	return Encode(seg(provider), seg(techType), seg(maxDown), seg(maxUp))
}

// Targets names the destination fields for each slot.
type Targets [numSlots]string

// DefaultTargets are the field names used on the address service table.
var DefaultTargets = Targets{"Provider", "TechType", "MaxDown", "MaxUp"}

// ConversionError reports a segment that could not be stored in its
// destination field.
type ConversionError struct {
	Field   string
	Segment string
	Err     error
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf("keycodec: cannot store segment %q in %s: %v", e.Segment, e.Field, e.Err)
}

func (e *ConversionError) Unwrap() error { return e.Err }

// Apply writes the set slots of p into rec. Unset slots leave the destination
// untouched. Segments are converted to the destination field's kind.
func Apply(rec *model.Record, p Parts, targets Targets) error {
	for i := 0; i < numSlots; i++ {
		seg, ok := p.Get(i)
		if !ok {
			return nil
		}
		if targets[i] == "" {
			continue
		}
		v := model.Text(seg)
		if f, ok := rec.Field(targets[i]); ok && f.Kind != model.KindText && isEmptySegment(seg) {
			v = model.Null()
		}
		if err := rec.Set(targets[i], v); err != nil {
			return &ConversionError{Field: targets[i], Segment: seg, Err: eris.Cause(err)}
		}
	}
	return nil
}

// isEmptySegment reports whether a numeric segment carries no value. Keys
// built from null source fields carry "" or "None".
func isEmptySegment(seg string) bool {
	seg = strings.TrimSpace(seg)
	return seg == "" || seg == "None"
}
