package dcmio

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"
)

// find returns the element with tag t among elems, or nil
func find(elems []*dicom.Element, t tag.Tag) *dicom.Element {
	for _, e := range elems {
		if e != nil && e.Tag == t {
			return e
		}
	}
	return nil
}

func stringsOf(elems []*dicom.Element, t tag.Tag) []string {
	e := find(elems, t)
	if e == nil || e.Value == nil {
		return nil
	}
	v, ok := e.Value.GetValue().([]string)
	if !ok {
		return nil
	}
	return v
}

func stringOf(elems []*dicom.Element, t tag.Tag) string {
	v := stringsOf(elems, t)
	if len(v) == 0 {
		return ""
	}
	return strings.TrimRight(strings.TrimSpace(v[0]), "\x00")
}

// floatsOf reads DS strings or FD/FL values
func floatsOf(elems []*dicom.Element, t tag.Tag) []float64 {
	e := find(elems, t)
	if e == nil || e.Value == nil {
		return nil
	}
	switch v := e.Value.GetValue().(type) {
	case []float64:
		return v
	case []string:
		out := make([]float64, 0, len(v))
		for _, s := range v {
			// A multi-valued DS may arrive unsplit
			for _, part := range strings.Split(s, `\`) {
				f, err := strconv.ParseFloat(strings.TrimSpace(strings.TrimRight(part, "\x00")), 64)
				if err != nil {
					return nil
				}
				out = append(out, f)
			}
		}
		return out
	}
	return nil
}

// intsOf reads US/UL values or IS strings
func intsOf(elems []*dicom.Element, t tag.Tag) []int {
	e := find(elems, t)
	if e == nil || e.Value == nil {
		return nil
	}
	switch v := e.Value.GetValue().(type) {
	case []int:
		return v
	case []string:
		out := make([]int, 0, len(v))
		for _, s := range v {
			n, err := strconv.Atoi(strings.TrimSpace(strings.TrimRight(s, "\x00")))
			if err != nil {
				return nil
			}
			out = append(out, n)
		}
		return out
	}
	return nil
}

func intOf(elems []*dicom.Element, t tag.Tag) int {
	v := intsOf(elems, t)
	if len(v) == 0 {
		return 0
	}
	return v[0]
}

// itemsOf returns the items of sequence t
func itemsOf(elems []*dicom.Element, t tag.Tag) [][]*dicom.Element {
	e := find(elems, t)
	if e == nil || e.Value == nil {
		return nil
	}
	seq, ok := e.Value.GetValue().([]*dicom.SequenceItemValue)
	if !ok {
		return nil
	}
	out := make([][]*dicom.Element, 0, len(seq))
	for _, item := range seq {
		if children, ok := item.GetValue().([]*dicom.Element); ok {
			out = append(out, children)
		}
	}
	return out
}

// firstItem returns the first item of sequence t, or nil
func firstItem(elems []*dicom.Element, t tag.Tag) []*dicom.Element {
	items := itemsOf(elems, t)
	if len(items) == 0 {
		return nil
	}
	return items[0]
}

// builder collects elements and keeps the first construction error
type builder struct {
	elems []*dicom.Element
	err   error
}

func (b *builder) add(t tag.Tag, data interface{}) {
	if b.err != nil {
		return
	}
	e, err := dicom.NewElement(t, data)
	if err != nil {
		b.err = fmt.Errorf("dcmio: element %s: %w", t, err)
		return
	}
	b.elems = append(b.elems, e)
}

func (b *builder) str(t tag.Tag, s string) {
	if s != "" {
		b.add(t, []string{s})
	}
}

func (b *builder) num(t tag.Tag, n int) {
	b.add(t, []int{n})
}

func (b *builder) is(t tag.Tag, n int) {
	b.add(t, []string{strconv.Itoa(n)})
}

func (b *builder) ds(t tag.Tag, v []float64) {
	if len(v) == 0 {
		return
	}
	s := make([]string, len(v))
	for i, f := range v {
		s[i] = formatDS(f)
	}
	b.add(t, s)
}

func (b *builder) seq(t tag.Tag, items [][]*dicom.Element) {
	if b.err != nil || len(items) == 0 {
		return
	}
	b.add(t, items)
	if b.err == nil {
		b.elems[len(b.elems)-1].ValueLength = tag.VLUndefinedLength
	}
}

// sorted returns the elements in ascending tag order
func (b *builder) sorted() []*dicom.Element {
	sort.SliceStable(b.elems, func(i, j int) bool {
		a, c := b.elems[i].Tag, b.elems[j].Tag
		if a.Group != c.Group {
			return a.Group < c.Group
		}
		return a.Element < c.Element
	})
	return b.elems
}

// formatDS formats a decimal string within the 16 byte DS limit
func formatDS(f float64) string {
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if len(s) <= 16 {
		return s
	}
	for prec := 10; prec >= 0; prec-- {
		s = strconv.FormatFloat(f, 'g', prec, 64)
		if len(s) <= 16 {
			return s
		}
	}
	return s
}
