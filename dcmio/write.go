package dcmio

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/cocosip/go-dicom-seg/codec"
	"github.com/cocosip/go-dicom-seg/seg"
	"github.com/cocosip/go-dicom/pkg/dicom/transfer"
	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/frame"
	"github.com/suyashkumar/dicom/pkg/tag"
)

// WriteSegmentation writes fs as a Part-10 Segmentation object
func WriteSegmentation(w io.Writer, fs *seg.FrameSet) error {
	ds, err := DatasetFromFrameSet(fs)
	if err != nil {
		return err
	}
	if err := dicom.Write(w, ds); err != nil {
		return fmt.Errorf("dcmio: write segmentation: %w", err)
	}
	return nil
}

// WriteSegmentationFile writes fs to path, replacing any existing file
func WriteSegmentationFile(path string, fs *seg.FrameSet) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	bw := bufio.NewWriter(f)
	if err := WriteSegmentation(bw, fs); err != nil {
		f.Close()
		return err
	}
	if err := bw.Flush(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// DatasetFromFrameSet builds the dataset of a Segmentation object
func DatasetFromFrameSet(fs *seg.FrameSet) (dicom.Dataset, error) {
	if fs == nil {
		return dicom.Dataset{}, fmt.Errorf("%w: nil frame set", codec.ErrInvalidParameter)
	}
	sopClass := fs.SOPClassUID
	if sopClass == "" {
		sopClass = seg.SOPClassUID
	}
	ts := fs.TransferSyntaxUID
	if ts == "" {
		ts = transfer.ExplicitVRLittleEndian.UID().UID()
	}
	modality := fs.Modality
	if modality == "" {
		modality = "SEG"
	}
	now := time.Now()

	b := &builder{}
	b.str(tag.MediaStorageSOPClassUID, sopClass)
	b.str(tag.MediaStorageSOPInstanceUID, fs.SOPInstanceUID)
	b.str(tag.TransferSyntaxUID, ts)

	b.add(tag.ImageType, []string{"DERIVED", "PRIMARY"})
	b.str(tag.SOPClassUID, sopClass)
	b.str(tag.SOPInstanceUID, fs.SOPInstanceUID)
	b.str(tag.ContentDate, now.Format("20060102"))
	b.str(tag.ContentTime, now.Format("150405"))
	b.str(tag.Modality, modality)
	b.add(tag.Manufacturer, []string{fs.Manufacturer})
	b.str(tag.SeriesDescription, fs.SeriesDescription)
	b.seq(tag.ReferencedSeriesSequence, referencedSeriesItems(fs.ReferencedSeries, b))
	b.seq(tag.SourceImageSequence, referenceItems(fs.SourceImages, b))

	// Type 2 patient and study attributes are written even when empty
	b.add(tag.PatientName, []string{fs.PatientName})
	b.add(tag.PatientID, []string{fs.PatientID})
	b.add(tag.PatientBirthDate, []string{fs.PatientBirthDate})
	b.add(tag.PatientSex, []string{fs.PatientSex})
	b.add(tag.StudyDate, []string{fs.StudyDate})
	b.add(tag.StudyTime, []string{fs.StudyTime})
	b.add(tag.ReferringPhysicianName, []string{fs.ReferringPhysicianName})
	b.add(tag.AccessionNumber, []string{fs.AccessionNumber})
	b.add(tag.StudyID, []string{fs.StudyID})

	b.str(tag.StudyInstanceUID, fs.StudyInstanceUID)
	b.str(tag.SeriesInstanceUID, fs.SeriesInstanceUID)
	b.is(tag.SeriesNumber, fs.SeriesNumber)
	b.is(tag.InstanceNumber, max(fs.InstanceNumber, 1))
	b.str(tag.FrameOfReferenceUID, fs.FrameOfReferenceUID)

	bits := fs.BitsAllocated
	b.num(tag.SamplesPerPixel, 1)
	b.str(tag.PhotometricInterpretation, "MONOCHROME2")
	b.is(tag.NumberOfFrames, fs.Frames())
	b.num(tag.Rows, fs.Rows)
	b.num(tag.Columns, fs.Columns)
	b.num(tag.BitsAllocated, bits)
	b.num(tag.BitsStored, bits)
	b.num(tag.HighBit, bits-1)
	b.num(tag.PixelRepresentation, 0)
	b.str(tag.LossyImageCompression, "00")

	segType := fs.SegmentationType
	if segType == "" {
		segType = seg.Binary
	}
	b.str(tag.SegmentationType, string(segType))
	if segType == seg.Fractional {
		b.str(tag.SegmentationFractionalType, fs.FractionalType)
		b.num(tag.MaximumFractionalValue, fs.MaximumFractionalValue)
	}
	b.seq(tag.SegmentSequence, segmentItems(fs.Segments, b))

	label := fs.ContentLabel
	if label == "" {
		label = "SEGMENTATION"
	}
	b.str(tag.ContentLabel, label)
	b.add(tag.ContentDescription, []string{fs.SeriesDescription})
	b.add(tag.ContentCreatorName, []string{fs.ContentCreator})

	if len(fs.Dimensions) > 0 {
		dimUID := fs.DimensionOrganizationUID
		if dimUID == "" {
			dimUID = seg.NewUID()
		}
		b.seq(tag.DimensionOrganizationSequence, [][]*dicom.Element{nested(b, func(ob *builder) {
			ob.str(tag.DimensionOrganizationUID, dimUID)
		})})
		b.seq(tag.DimensionIndexSequence, dimensionItems(fs.Dimensions, dimUID, b))
	}

	b.seq(tag.SharedFunctionalGroupsSequence, [][]*dicom.Element{groupItem(fs.Shared, b)})
	perFrame := make([][]*dicom.Element, 0, len(fs.PerFrame))
	for _, g := range fs.PerFrame {
		perFrame = append(perFrame, groupItem(g, b))
	}
	b.seq(tag.PerFrameFunctionalGroupsSequence, perFrame)

	if b.err != nil {
		return dicom.Dataset{}, b.err
	}
	pd, err := pixelDataElement(fs.Payload)
	if err != nil {
		return dicom.Dataset{}, err
	}
	b.elems = append(b.elems, pd)
	return dicom.Dataset{Elements: b.sorted()}, nil
}

// nested builds the elements of one sequence item and reports its error to
// parent
func nested(parent *builder, fill func(b *builder)) []*dicom.Element {
	b := &builder{}
	fill(b)
	if b.err != nil && parent.err == nil {
		parent.err = b.err
	}
	return b.sorted()
}

func referenceItems(refs []seg.ImageReference, parent *builder) [][]*dicom.Element {
	items := make([][]*dicom.Element, 0, len(refs))
	for _, ref := range refs {
		items = append(items, nested(parent, func(b *builder) {
			b.str(tag.ReferencedSOPClassUID, ref.SOPClassUID)
			b.str(tag.ReferencedSOPInstanceUID, ref.SOPInstanceUID)
			if ref.FrameNumber > 0 {
				b.is(tag.ReferencedFrameNumber, ref.FrameNumber)
			}
		}))
	}
	return items
}

func referencedSeriesItems(series []seg.ReferencedSeries, parent *builder) [][]*dicom.Element {
	items := make([][]*dicom.Element, 0, len(series))
	for _, rs := range series {
		items = append(items, nested(parent, func(b *builder) {
			b.str(tag.SeriesInstanceUID, rs.SeriesInstanceUID)
			instances := make([][]*dicom.Element, 0, len(rs.Instances))
			for _, ref := range rs.Instances {
				instances = append(instances, nested(b, func(ib *builder) {
					ib.str(tag.ReferencedSOPClassUID, ref.SOPClassUID)
					ib.str(tag.ReferencedSOPInstanceUID, ref.SOPInstanceUID)
				}))
			}
			b.seq(tag.ReferencedInstanceSequence, instances)
		}))
	}
	return items
}

func dimensionItems(dims []seg.Dimension, organization string, parent *builder) [][]*dicom.Element {
	items := make([][]*dicom.Element, 0, len(dims))
	for _, d := range dims {
		items = append(items, nested(parent, func(b *builder) {
			b.str(tag.DimensionOrganizationUID, organization)
			b.add(tag.DimensionIndexPointer, attributeTag(d.IndexPointer))
			b.add(tag.FunctionalGroupPointer, attributeTag(d.FunctionalGroupPointer))
			b.str(tag.DimensionDescriptionLabel, d.Label)
		}))
	}
	return items
}

// attributeTag splits a packed tag into the group and element pair of an AT
// value
func attributeTag(t uint32) []int {
	return []int{int(t >> 16), int(t & 0xFFFF)}
}

func codeItem(c seg.Code, parent *builder) [][]*dicom.Element {
	if c.IsZero() {
		return nil
	}
	return [][]*dicom.Element{nested(parent, func(b *builder) {
		b.str(tag.CodeValue, c.Value)
		b.str(tag.CodingSchemeDesignator, c.Scheme)
		b.str(tag.CodeMeaning, c.Meaning)
	})}
}

func segmentItems(segments []seg.Segment, parent *builder) [][]*dicom.Element {
	items := make([][]*dicom.Element, 0, len(segments))
	for _, s := range segments {
		items = append(items, nested(parent, func(b *builder) {
			b.num(tag.SegmentNumber, s.Number)
			b.str(tag.SegmentLabel, s.Label)
			b.str(tag.SegmentDescription, s.Description)
			b.str(tag.SegmentAlgorithmType, s.AlgorithmType)
			b.str(tag.SegmentAlgorithmName, s.AlgorithmName)
			b.seq(tag.SegmentedPropertyCategoryCodeSequence, codeItem(s.Category, b))
			b.seq(tag.SegmentedPropertyTypeCodeSequence, codeItem(s.Type, b))
			if s.HasColor {
				b.add(tag.RecommendedDisplayCIELabValue, []int{s.Color[0], s.Color[1], s.Color[2]})
			}
		}))
	}
	return items
}

// groupItem builds one functional groups item; absent macros are left out
func groupItem(g seg.FunctionalGroups, parent *builder) []*dicom.Element {
	return nested(parent, func(b *builder) {
		if g.Derived {
			derivation := nested(b, func(db *builder) {
				db.seq(tag.SourceImageSequence, referenceItems(g.SourceImages, db))
			})
			b.seq(tag.DerivationImageSequence, [][]*dicom.Element{derivation})
		}
		if len(g.DimensionIndexValues) > 0 {
			b.seq(tag.FrameContentSequence, [][]*dicom.Element{nested(b, func(fb *builder) {
				fb.add(tag.DimensionIndexValues, g.DimensionIndexValues)
			})})
		}
		if len(g.ImagePositionPatient) > 0 {
			b.seq(tag.PlanePositionSequence, [][]*dicom.Element{nested(b, func(pb *builder) {
				pb.ds(tag.ImagePositionPatient, g.ImagePositionPatient)
			})})
		}
		if len(g.ImageOrientationPatient) > 0 {
			b.seq(tag.PlaneOrientationSequence, [][]*dicom.Element{nested(b, func(ob *builder) {
				ob.ds(tag.ImageOrientationPatient, g.ImageOrientationPatient)
			})})
		}
		if len(g.PixelSpacing) > 0 || g.SliceThickness > 0 {
			b.seq(tag.PixelMeasuresSequence, [][]*dicom.Element{nested(b, func(mb *builder) {
				if g.SliceThickness > 0 {
					mb.ds(tag.SliceThickness, []float64{g.SliceThickness})
				}
				mb.ds(tag.PixelSpacing, g.PixelSpacing)
			})})
		}
		if g.ReferencedSegmentNumber > 0 {
			b.seq(tag.SegmentIdentificationSequence, [][]*dicom.Element{nested(b, func(sb *builder) {
				sb.num(tag.ReferencedSegmentNumber, g.ReferencedSegmentNumber)
			})})
		}
	})
}

// pixelDataElement stores native bytes verbatim and encapsulated fragments
// one per frame. Values are padded to even length.
func pixelDataElement(p codec.Payload) (*dicom.Element, error) {
	var info dicom.PixelDataInfo
	if p.Encapsulated {
		info.IsEncapsulated = true
		for _, f := range p.Fragments {
			info.Frames = append(info.Frames, &frame.Frame{
				Encapsulated:     true,
				EncapsulatedData: frame.EncapsulatedFrame{Data: evenLength(f)},
			})
		}
	} else {
		info.IntentionallyUnprocessed = true
		info.UnprocessedValueData = evenLength(p.Native)
	}

	e, err := dicom.NewElement(tag.PixelData, info)
	if err != nil {
		return nil, fmt.Errorf("dcmio: pixel data: %w", err)
	}
	if p.Encapsulated {
		e.ValueLength = tag.VLUndefinedLength
	} else {
		e.ValueLength = uint32(len(info.UnprocessedValueData))
	}
	return e, nil
}

func evenLength(b []byte) []byte {
	if len(b)%2 == 0 {
		return b
	}
	out := make([]byte, len(b)+1)
	copy(out, b)
	return out
}
