// Package dcmio reads and writes DICOM Part-10 Segmentation objects and
// reference images.
package dcmio

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/cocosip/go-dicom-seg/codec"
	"github.com/cocosip/go-dicom-seg/seg"
	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"
)

// ErrNotSegmentation is returned when a dataset is not a Segmentation object
var ErrNotSegmentation = errors.New("dcmio: not a segmentation object")

// ReadSegmentation parses a Part-10 Segmentation object from r. The pixel
// data value is kept as stored so bit-packed frames survive untouched.
func ReadSegmentation(r io.Reader, size int64) (*seg.FrameSet, error) {
	ds, err := dicom.Parse(r, size, nil, dicom.SkipProcessingPixelDataValue())
	if err != nil {
		return nil, fmt.Errorf("dcmio: parse segmentation: %w", err)
	}
	return FrameSetFromDataset(&ds)
}

// ReadSegmentationFile parses the Segmentation object stored at path
func ReadSegmentationFile(path string) (*seg.FrameSet, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	fs, err := ReadSegmentation(bufio.NewReader(f), info.Size())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return fs, nil
}

// FrameSetFromDataset naturalizes a parsed Segmentation dataset
func FrameSetFromDataset(ds *dicom.Dataset) (*seg.FrameSet, error) {
	elems := ds.Elements
	fs := &seg.FrameSet{
		SOPClassUID:         stringOf(elems, tag.SOPClassUID),
		SOPInstanceUID:      stringOf(elems, tag.SOPInstanceUID),
		StudyInstanceUID:    stringOf(elems, tag.StudyInstanceUID),
		SeriesInstanceUID:   stringOf(elems, tag.SeriesInstanceUID),
		FrameOfReferenceUID: stringOf(elems, tag.FrameOfReferenceUID),
		TransferSyntaxUID:   stringOf(elems, tag.TransferSyntaxUID),

		PatientName:      stringOf(elems, tag.PatientName),
		PatientID:        stringOf(elems, tag.PatientID),
		PatientBirthDate: stringOf(elems, tag.PatientBirthDate),
		PatientSex:       stringOf(elems, tag.PatientSex),

		StudyDate:              stringOf(elems, tag.StudyDate),
		StudyTime:              stringOf(elems, tag.StudyTime),
		StudyID:                stringOf(elems, tag.StudyID),
		ReferringPhysicianName: stringOf(elems, tag.ReferringPhysicianName),
		AccessionNumber:        stringOf(elems, tag.AccessionNumber),

		Modality:          stringOf(elems, tag.Modality),
		SeriesNumber:      intOf(elems, tag.SeriesNumber),
		InstanceNumber:    intOf(elems, tag.InstanceNumber),
		SeriesDescription: stringOf(elems, tag.SeriesDescription),
		ContentLabel:      stringOf(elems, tag.ContentLabel),
		ContentCreator:    stringOf(elems, tag.ContentCreatorName),
		Manufacturer:      stringOf(elems, tag.Manufacturer),

		Rows:           intOf(elems, tag.Rows),
		Columns:        intOf(elems, tag.Columns),
		BitsAllocated:  intOf(elems, tag.BitsAllocated),
		NumberOfFrames: intOf(elems, tag.NumberOfFrames),

		SegmentationType:       seg.SegmentationType(stringOf(elems, tag.SegmentationType)),
		FractionalType:         stringOf(elems, tag.SegmentationFractionalType),
		MaximumFractionalValue: intOf(elems, tag.MaximumFractionalValue),
	}
	if fs.SOPClassUID != seg.SOPClassUID {
		return nil, fmt.Errorf("%w: SOP class %q", ErrNotSegmentation, fs.SOPClassUID)
	}

	for _, item := range itemsOf(elems, tag.ReferencedSeriesSequence) {
		fs.ReferencedSeries = append(fs.ReferencedSeries, seg.ReferencedSeries{
			SeriesInstanceUID: stringOf(item, tag.SeriesInstanceUID),
			Instances:         imageReferences(itemsOf(item, tag.ReferencedInstanceSequence)),
		})
	}
	fs.SourceImages = imageReferences(itemsOf(elems, tag.SourceImageSequence))

	fs.Shared = functionalGroups(firstItem(elems, tag.SharedFunctionalGroupsSequence))
	for _, item := range itemsOf(elems, tag.PerFrameFunctionalGroupsSequence) {
		fs.PerFrame = append(fs.PerFrame, functionalGroups(item))
	}

	for _, item := range itemsOf(elems, tag.SegmentSequence) {
		fs.Segments = append(fs.Segments, segmentOf(item))
	}

	if org := firstItem(elems, tag.DimensionOrganizationSequence); org != nil {
		fs.DimensionOrganizationUID = stringOf(org, tag.DimensionOrganizationUID)
	}
	for _, item := range itemsOf(elems, tag.DimensionIndexSequence) {
		fs.Dimensions = append(fs.Dimensions, seg.Dimension{
			IndexPointer:           packedTag(intsOf(item, tag.DimensionIndexPointer)),
			FunctionalGroupPointer: packedTag(intsOf(item, tag.FunctionalGroupPointer)),
			Label:                  stringOf(item, tag.DimensionDescriptionLabel),
		})
	}

	payload, err := payloadOf(elems)
	if err != nil {
		return nil, err
	}
	fs.Payload = payload
	return fs, nil
}

func imageReferences(items [][]*dicom.Element) []seg.ImageReference {
	if len(items) == 0 {
		return nil
	}
	refs := make([]seg.ImageReference, 0, len(items))
	for _, item := range items {
		refs = append(refs, seg.ImageReference{
			SOPClassUID:    stringOf(item, tag.ReferencedSOPClassUID),
			SOPInstanceUID: stringOf(item, tag.ReferencedSOPInstanceUID),
			FrameNumber:    intOf(item, tag.ReferencedFrameNumber),
		})
	}
	return refs
}

// functionalGroups reads one Shared or Per-frame Functional Groups item
func functionalGroups(item []*dicom.Element) seg.FunctionalGroups {
	var g seg.FunctionalGroups
	if item == nil {
		return g
	}
	if pos := firstItem(item, tag.PlanePositionSequence); pos != nil {
		g.ImagePositionPatient = floatsOf(pos, tag.ImagePositionPatient)
	}
	if ori := firstItem(item, tag.PlaneOrientationSequence); ori != nil {
		g.ImageOrientationPatient = floatsOf(ori, tag.ImageOrientationPatient)
	}
	if pm := firstItem(item, tag.PixelMeasuresSequence); pm != nil {
		g.PixelSpacing = floatsOf(pm, tag.PixelSpacing)
		if st := floatsOf(pm, tag.SliceThickness); len(st) > 0 {
			g.SliceThickness = st[0]
		}
	}
	if find(item, tag.DerivationImageSequence) != nil {
		g.Derived = true
		for _, d := range itemsOf(item, tag.DerivationImageSequence) {
			g.SourceImages = append(g.SourceImages, imageReferences(itemsOf(d, tag.SourceImageSequence))...)
		}
	}
	if si := firstItem(item, tag.SegmentIdentificationSequence); si != nil {
		g.ReferencedSegmentNumber = intOf(si, tag.ReferencedSegmentNumber)
	}
	if fc := firstItem(item, tag.FrameContentSequence); fc != nil {
		g.DimensionIndexValues = intsOf(fc, tag.DimensionIndexValues)
	}
	return g
}

func codeOf(item []*dicom.Element) seg.Code {
	if item == nil {
		return seg.Code{}
	}
	return seg.Code{
		Value:   stringOf(item, tag.CodeValue),
		Scheme:  stringOf(item, tag.CodingSchemeDesignator),
		Meaning: stringOf(item, tag.CodeMeaning),
	}
}

func segmentOf(item []*dicom.Element) seg.Segment {
	s := seg.Segment{
		Number:        intOf(item, tag.SegmentNumber),
		Label:         stringOf(item, tag.SegmentLabel),
		Description:   stringOf(item, tag.SegmentDescription),
		AlgorithmType: stringOf(item, tag.SegmentAlgorithmType),
		AlgorithmName: stringOf(item, tag.SegmentAlgorithmName),
		Category:      codeOf(firstItem(item, tag.SegmentedPropertyCategoryCodeSequence)),
		Type:          codeOf(firstItem(item, tag.SegmentedPropertyTypeCodeSequence)),
	}
	if lab := intsOf(item, tag.RecommendedDisplayCIELabValue); len(lab) >= 3 {
		s.Color = [3]int{lab[0], lab[1], lab[2]}
		s.HasColor = true
	}
	return s
}

func payloadOf(elems []*dicom.Element) (codec.Payload, error) {
	e := find(elems, tag.PixelData)
	if e == nil || e.Value == nil {
		return codec.Payload{}, fmt.Errorf("%w: no pixel data", seg.ErrMissingMetadata)
	}
	info, ok := e.Value.GetValue().(dicom.PixelDataInfo)
	if !ok {
		return codec.Payload{}, fmt.Errorf("%w: pixel data value %T", seg.ErrUnsupportedEncoding, e.Value.GetValue())
	}

	switch {
	case info.IsEncapsulated && !info.IntentionallyUnprocessed:
		fragments := make([][]byte, 0, len(info.Frames))
		for _, f := range info.Frames {
			if f != nil && f.Encapsulated {
				fragments = append(fragments, f.EncapsulatedData.Data)
			}
		}
		return codec.Payload{Fragments: fragments, Encapsulated: true}, nil
	case info.IntentionallyUnprocessed && !info.IsEncapsulated:
		return codec.Payload{Native: info.UnprocessedValueData}, nil
	default:
		return codec.Payload{}, fmt.Errorf("%w: pixel data was not kept as stored", seg.ErrUnsupportedEncoding)
	}
}

// packedTag joins the group and element of an AT value
func packedTag(v []int) uint32 {
	if len(v) < 2 {
		return 0
	}
	return uint32(v[0])<<16 | uint32(v[1])
}
