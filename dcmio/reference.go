package dcmio

import (
	"bufio"
	"fmt"
	"os"

	"github.com/cocosip/go-dicom-seg/geometry"
	"github.com/rs/zerolog"
	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"
)

// Catalog collects reference image metadata from files and answers
// geometry.Provider lookups. Multi-frame files contribute one image ID per
// frame, "<id>#<frame>".
type Catalog struct {
	*geometry.MapProvider
	ids    []string
	logger zerolog.Logger
}

// NewCatalog creates an empty catalog
func NewCatalog(logger zerolog.Logger) *Catalog {
	return &Catalog{MapProvider: geometry.NewMapProvider(), logger: logger}
}

// IDs returns the image IDs in insertion order
func (c *Catalog) IDs() []string {
	return c.ids
}

// AddFile parses the header of the image at path, skipping pixel data
func (c *Catalog) AddFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}
	ds, err := dicom.Parse(bufio.NewReader(f), info.Size(), nil, dicom.SkipPixelData())
	if err != nil {
		return fmt.Errorf("dcmio: parse %s: %w", path, err)
	}
	c.AddDataset(path, &ds)
	return nil
}

// AddDataset records the modules of ds under id. Modules whose attributes
// are absent are left out so the stack builder can report them.
func (c *Catalog) AddDataset(id string, ds *dicom.Dataset) {
	elems := ds.Elements
	frames := intOf(elems, tag.NumberOfFrames)
	perFrame := itemsOf(elems, tag.PerFrameFunctionalGroupsSequence)

	if frames <= 1 && len(perFrame) == 0 {
		c.add(id, 0, elems, imagePlane(elems, nil, nil))
		return
	}

	shared := firstItem(elems, tag.SharedFunctionalGroupsSequence)
	n := max(frames, len(perFrame))
	for i := 0; i < n; i++ {
		var item []*dicom.Element
		if i < len(perFrame) {
			item = perFrame[i]
		}
		c.add(fmt.Sprintf("%s#%d", id, i+1), i+1, elems, imagePlane(elems, shared, item))
	}
	c.logger.Debug().Str("image", id).Int("frames", n).Msg("expanded multi-frame reference image")
}

func (c *Catalog) add(id string, frame int, elems []*dicom.Element, plane *geometry.ImagePlaneModule) {
	c.ids = append(c.ids, id)
	if plane != nil {
		c.Plane[id] = *plane
	}
	if sop := stringOf(elems, tag.SOPInstanceUID); sop != "" {
		c.SOP[id] = geometry.SOPCommonModule{
			SOPClassUID:    stringOf(elems, tag.SOPClassUID),
			SOPInstanceUID: sop,
			FrameNumber:    frame,
		}
	}
	if series := stringOf(elems, tag.SeriesInstanceUID); series != "" {
		c.Series[id] = geometry.GeneralSeriesModule{
			SeriesInstanceUID: series,
			StudyInstanceUID:  stringOf(elems, tag.StudyInstanceUID),
			Modality:          stringOf(elems, tag.Modality),
		}
	}
	if fr := stringOf(elems, tag.FrameOfReferenceUID); fr != "" {
		c.FrameOfReference[id] = geometry.FrameOfReferenceModule{FrameOfReferenceUID: fr}
	}
}

// imagePlane reads the image plane of a single-frame image, or of one frame
// when functional groups are given. Per-frame macros take precedence over
// shared ones, which take precedence over top-level attributes.
func imagePlane(elems, shared, perFrame []*dicom.Element) *geometry.ImagePlaneModule {
	lookup := func(seq, t tag.Tag) []float64 {
		for _, group := range [][]*dicom.Element{perFrame, shared} {
			if item := firstItem(group, seq); item != nil {
				if v := floatsOf(item, t); len(v) > 0 {
					return v
				}
			}
		}
		return nil
	}

	pos := lookup(tag.PlanePositionSequence, tag.ImagePositionPatient)
	if pos == nil {
		pos = floatsOf(elems, tag.ImagePositionPatient)
	}
	iop := lookup(tag.PlaneOrientationSequence, tag.ImageOrientationPatient)
	if iop == nil {
		iop = floatsOf(elems, tag.ImageOrientationPatient)
	}
	spacing := lookup(tag.PixelMeasuresSequence, tag.PixelSpacing)
	if spacing == nil {
		spacing = floatsOf(elems, tag.PixelSpacing)
	}
	if pos == nil && iop == nil {
		return nil
	}
	return &geometry.ImagePlaneModule{
		ImagePositionPatient:    pos,
		ImageOrientationPatient: iop,
		Rows:                    intOf(elems, tag.Rows),
		Columns:                 intOf(elems, tag.Columns),
		PixelSpacing:            spacing,
	}
}

// Stack assembles the catalog images in insertion order, leaving out the
// ones with missing metadata
func (c *Catalog) Stack() geometry.Stack {
	return geometry.BuildStack(c.ids, c, c.logger)
}

// LoadStack reads every file into one catalog and returns the stack sorted
// along the slice normal
func LoadStack(paths []string, logger zerolog.Logger) (geometry.Stack, error) {
	c := NewCatalog(logger)
	for _, path := range paths {
		if err := c.AddFile(path); err != nil {
			return nil, err
		}
	}
	stack := c.Stack()
	if len(stack) == 0 {
		return nil, fmt.Errorf("%w: no usable reference images in %d files", geometry.ErrMissingMetadata, len(paths))
	}
	geometry.SortByPosition(stack)
	logger.Info().Int("files", len(paths)).Int("catalogued", len(c.IDs())).Int("images", len(stack)).
		Msg("loaded reference stack")
	return stack, nil
}
