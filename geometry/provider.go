package geometry

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"
)

// ErrMissingMetadata is returned when a metadata provider has no record for a
// required module
var ErrMissingMetadata = errors.New("missing metadata")

// ImagePlaneModule carries the Image Plane Module attributes of one image
type ImagePlaneModule struct {
	ImagePositionPatient    []float64
	ImageOrientationPatient []float64
	Rows                    int
	Columns                 int
	PixelSpacing            []float64
}

// GeneralSeriesModule carries the series identity of one image
type GeneralSeriesModule struct {
	SeriesInstanceUID string
	StudyInstanceUID  string
	Modality          string
}

// SOPCommonModule carries the instance identity of one image
type SOPCommonModule struct {
	SOPClassUID    string
	SOPInstanceUID string
	// FrameNumber is 1-based for a frame of a multi-frame instance, 0 otherwise
	FrameNumber int
}

// FrameOfReferenceModule carries the frame of reference of one image
type FrameOfReferenceModule struct {
	FrameOfReferenceUID string
}

// Provider answers metadata lookups for reference images. A false result
// means the metadata is missing.
type Provider interface {
	ImagePlaneModule(imageID string) (ImagePlaneModule, bool)
	GeneralSeriesModule(imageID string) (GeneralSeriesModule, bool)
	SOPCommonModule(imageID string) (SOPCommonModule, bool)
	FrameOfReferenceModule(imageID string) (FrameOfReferenceModule, bool)
}

// ImageFromProvider assembles the reference image record for imageID. The
// frame of reference is optional; every other module is required.
func ImageFromProvider(imageID string, provider Provider) (ReferenceImage, error) {
	plane, ok := provider.ImagePlaneModule(imageID)
	if !ok {
		return ReferenceImage{}, fmt.Errorf("%w: image plane module for %s", ErrMissingMetadata, imageID)
	}
	sop, ok := provider.SOPCommonModule(imageID)
	if !ok || sop.SOPInstanceUID == "" {
		return ReferenceImage{}, fmt.Errorf("%w: SOP common module for %s", ErrMissingMetadata, imageID)
	}
	series, ok := provider.GeneralSeriesModule(imageID)
	if !ok {
		return ReferenceImage{}, fmt.Errorf("%w: general series module for %s", ErrMissingMetadata, imageID)
	}

	pos, ok := VecFromSlice(plane.ImagePositionPatient)
	if !ok {
		return ReferenceImage{}, fmt.Errorf("%w: image position for %s", ErrMissingMetadata, imageID)
	}
	row, col, ok := OrientationFromSlice(plane.ImageOrientationPatient)
	if !ok {
		return ReferenceImage{}, fmt.Errorf("%w: image orientation for %s", ErrMissingMetadata, imageID)
	}
	if plane.Rows <= 0 || plane.Columns <= 0 {
		return ReferenceImage{}, fmt.Errorf("%w: image dimensions for %s", ErrMissingMetadata, imageID)
	}

	spacing := [2]float64{1, 1}
	if len(plane.PixelSpacing) >= 2 {
		spacing = [2]float64{plane.PixelSpacing[0], plane.PixelSpacing[1]}
	}

	im := ReferenceImage{
		ImageID:           imageID,
		SOPClassUID:       sop.SOPClassUID,
		SOPInstanceUID:    sop.SOPInstanceUID,
		FrameNumber:       sop.FrameNumber,
		Position:          pos,
		RowCosines:        row,
		ColumnCosines:     col,
		Rows:              plane.Rows,
		Columns:           plane.Columns,
		PixelSpacing:      spacing,
		SeriesInstanceUID: series.SeriesInstanceUID,
		StudyInstanceUID:  series.StudyInstanceUID,
	}
	if fr, ok := provider.FrameOfReferenceModule(imageID); ok {
		im.FrameOfReferenceUID = fr.FrameOfReferenceUID
	}
	return im, nil
}

// BuildStack assembles a stack in imageIDs order. Images with missing
// metadata are logged and left out.
func BuildStack(imageIDs []string, provider Provider, logger zerolog.Logger) Stack {
	stack := make(Stack, 0, len(imageIDs))
	for _, id := range imageIDs {
		im, err := ImageFromProvider(id, provider)
		if err != nil {
			logger.Warn().Err(err).Str("image", id).Msg("skipping reference image")
			continue
		}
		stack = append(stack, im)
	}
	return stack
}

// MapProvider is an in-memory Provider keyed by image ID
type MapProvider struct {
	Plane            map[string]ImagePlaneModule
	Series           map[string]GeneralSeriesModule
	SOP              map[string]SOPCommonModule
	FrameOfReference map[string]FrameOfReferenceModule
}

// NewMapProvider creates an empty MapProvider
func NewMapProvider() *MapProvider {
	return &MapProvider{
		Plane:            make(map[string]ImagePlaneModule),
		Series:           make(map[string]GeneralSeriesModule),
		SOP:              make(map[string]SOPCommonModule),
		FrameOfReference: make(map[string]FrameOfReferenceModule),
	}
}

// Add stores all modules of one reference image
func (p *MapProvider) Add(im ReferenceImage) {
	p.Plane[im.ImageID] = ImagePlaneModule{
		ImagePositionPatient:    im.PositionSlice(),
		ImageOrientationPatient: im.Orientation(),
		Rows:                    im.Rows,
		Columns:                 im.Columns,
		PixelSpacing:            []float64{im.PixelSpacing[0], im.PixelSpacing[1]},
	}
	p.Series[im.ImageID] = GeneralSeriesModule{
		SeriesInstanceUID: im.SeriesInstanceUID,
		StudyInstanceUID:  im.StudyInstanceUID,
	}
	p.SOP[im.ImageID] = SOPCommonModule{
		SOPClassUID:    im.SOPClassUID,
		SOPInstanceUID: im.SOPInstanceUID,
		FrameNumber:    im.FrameNumber,
	}
	if im.FrameOfReferenceUID != "" {
		p.FrameOfReference[im.ImageID] = FrameOfReferenceModule{FrameOfReferenceUID: im.FrameOfReferenceUID}
	}
}

func (p *MapProvider) ImagePlaneModule(imageID string) (ImagePlaneModule, bool) {
	m, ok := p.Plane[imageID]
	return m, ok
}

func (p *MapProvider) GeneralSeriesModule(imageID string) (GeneralSeriesModule, bool) {
	m, ok := p.Series[imageID]
	return m, ok
}

func (p *MapProvider) SOPCommonModule(imageID string) (SOPCommonModule, bool) {
	m, ok := p.SOP[imageID]
	return m, ok
}

func (p *MapProvider) FrameOfReferenceModule(imageID string) (FrameOfReferenceModule, bool) {
	m, ok := p.FrameOfReference[imageID]
	return m, ok
}
