package tier

import "github.com/rotisserie/eris"

// Kind is a measurement kind with its own label catalog.
type Kind string

// Measurement kinds, named after the fields they classify.
const (
	KindDownload Kind = "MaxDown"
	KindUpload   Kind = "MaxUp"
)

// Kinds lists measurement kinds in report order.
var Kinds = []Kind{KindDownload, KindUpload}

// Label is one catalog entry.
type Label struct {
	Code  int
	Label string
}

// Catalog is the ordered set of tiers expected in a report.
type Catalog struct {
	Kind   Kind
	Labels []Label
	byCode map[int]string
}

func newCatalog(kind Kind, labels ...Label) *Catalog {
	c := &Catalog{Kind: kind, Labels: labels, byCode: make(map[int]string, len(labels))}
	for _, l := range labels {
		c.byCode[l.Code] = l.Label
	}
	return c
}

// Lookup returns the label for code.
func (c *Catalog) Lookup(code int) (string, bool) {
	l, ok := c.byCode[code]
	return l, ok
}

// Codes returns the catalog's tier codes in catalog order.
func (c *Catalog) Codes() []int {
	out := make([]int, len(c.Labels))
	for i, l := range c.Labels {
		out[i] = l.Code
	}
	return out
}

// The upload catalog labels code 2 although no breakpoint produces it; it is
// kept so zero-filled rows match what downstream spreadsheets expect.
var (
	downloadCatalog = newCatalog(KindDownload,
		Label{0, "Unserved"},
		Label{3, "0.76-1.4 Mbps"},
		Label{4, "1.5-2.9 Mbps"},
		Label{5, "3-5.9 Mbps"},
		Label{6, "6-9.9 Mbps"},
		Label{7, "10-24.9 Mbps"},
		Label{8, "25-49.9 Mbps"},
		Label{9, "50-99 Mbps"},
		Label{10, "100-999 Mbps"},
		Label{11, "1 Gbps or greater"},
	)
	uploadCatalog = newCatalog(KindUpload,
		Label{0, "Unserved"},
		Label{2, "0.2-0.75 Mbps"},
		Label{3, "0.7-1.4 Mbps"},
		Label{4, "1.5-2.9 Mbps"},
		Label{5, "3-5.9 Mbps"},
		Label{6, "6-9.9 Mbps"},
		Label{7, "10-24.9 Mbps"},
		Label{8, "25-49.9 Mbps"},
		Label{9, "50-99 Mbps"},
		Label{10, "100-999 Mbps"},
		Label{11, "1 Gbps or greater"},
	)
)

// CatalogFor returns the label catalog for kind.
func CatalogFor(kind Kind) (*Catalog, error) {
	switch kind {
	case KindDownload:
		return downloadCatalog, nil
	case KindUpload:
		return uploadCatalog, nil
	default:
		return nil, eris.Errorf("tier: unknown measurement kind %q", kind)
	}
}

// TableFor returns the breakpoint table for kind.
func TableFor(kind Kind) (Table, error) {
	switch kind {
	case KindDownload:
		return Download, nil
	case KindUpload:
		return Upload, nil
	default:
		return Table{}, eris.Errorf("tier: unknown measurement kind %q", kind)
	}
}
