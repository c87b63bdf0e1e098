// Package seg decodes DICOM Segmentation objects into labelmaps aligned to a
// reference image stack and encodes labelmaps back into Segmentation objects.
package seg

import (
	"sort"

	"github.com/cocosip/go-dicom-seg/codec"
	"github.com/cocosip/go-dicom/pkg/dicom/uid"
)

// SOPClassUID is the Segmentation Storage SOP class
var SOPClassUID = uid.SegmentationStorage.UID()

// SegmentationType is the (0062,0001) Segmentation Type
type SegmentationType string

const (
	Binary     SegmentationType = "BINARY"
	Fractional SegmentationType = "FRACTIONAL"
)

// Segmentation Fractional Type values
const (
	FractionalProbability = "PROBABILITY"
	FractionalOccupancy   = "OCCUPANCY"
)

// Code is a coded concept (value, scheme designator, meaning)
type Code struct {
	Value   string
	Scheme  string
	Meaning string
}

// IsZero reports whether the code is unset
func (c Code) IsZero() bool {
	return c.Value == "" && c.Scheme == "" && c.Meaning == ""
}

// Contribution records that a segment was painted on an image of a layer
type Contribution struct {
	Layer      int
	ImageIndex int
}

// Segment is one entry of the Segment Sequence
type Segment struct {
	// Number is 1-based; 0 means no segment
	Number        int
	Label         string
	Description   string
	AlgorithmType string
	AlgorithmName string
	Category      Code
	Type          Code

	// Color is the Recommended Display CIELab Value, DICOM scaled
	Color    [3]int
	HasColor bool

	// Contributions is filled during decode
	Contributions []Contribution
}

// ImageReference references one image or one frame of a multi-frame image
type ImageReference struct {
	SOPClassUID    string
	SOPInstanceUID string
	// FrameNumber is the Referenced Frame Number, 0 when absent
	FrameNumber int
}

// ReferencedSeries is one item of the Referenced Series Sequence
type ReferencedSeries struct {
	SeriesInstanceUID string
	Instances         []ImageReference
}

// FunctionalGroups holds the functional group macros used for segmentation
// frames. Nil slices and zero numbers mean the macro is absent.
type FunctionalGroups struct {
	ImagePositionPatient    []float64
	ImageOrientationPatient []float64
	PixelSpacing            []float64
	SliceThickness          float64

	// Derived is set when a Derivation Image Sequence is present
	Derived bool
	// SourceImages are the Source Image Sequence items of every derivation
	// image item, in order
	SourceImages []ImageReference

	ReferencedSegmentNumber int
	DimensionIndexValues    []int
}

// Dimension is one item of the Dimension Index Sequence. Pointers are DICOM
// tags packed as group<<16 | element.
type Dimension struct {
	IndexPointer           uint32
	FunctionalGroupPointer uint32
	Label                  string
}

// SegmentationDimensions index frames by segment number, then by position in
// the reference stack
var SegmentationDimensions = []Dimension{
	{IndexPointer: 0x0062000B, FunctionalGroupPointer: 0x0062000A, Label: "ReferencedSegmentNumber"},
	{IndexPointer: 0x00200032, FunctionalGroupPointer: 0x00209113, Label: "ImagePositionPatient"},
}

// FrameSet is a naturalized Segmentation object
type FrameSet struct {
	SOPClassUID         string
	SOPInstanceUID      string
	StudyInstanceUID    string
	SeriesInstanceUID   string
	FrameOfReferenceUID string
	TransferSyntaxUID   string

	PatientName      string
	PatientID        string
	PatientBirthDate string
	PatientSex       string

	StudyDate              string
	StudyTime              string
	StudyID                string
	ReferringPhysicianName string
	AccessionNumber        string

	Modality          string
	SeriesNumber      int
	InstanceNumber    int
	SeriesDescription string
	ContentLabel      string
	ContentCreator    string
	Manufacturer      string

	Rows           int
	Columns        int
	BitsAllocated  int
	NumberOfFrames int

	SegmentationType       SegmentationType
	FractionalType         string
	MaximumFractionalValue int

	ReferencedSeries []ReferencedSeries

	// SourceImages is the top-level Source Image Sequence, one item per frame
	// in older writers
	SourceImages []ImageReference

	// DimensionOrganizationUID and Dimensions describe the per-frame
	// Dimension Index Values
	DimensionOrganizationUID string
	Dimensions               []Dimension

	Shared   FunctionalGroups
	PerFrame []FunctionalGroups

	Segments []Segment

	Payload codec.Payload
}

func (fs *FrameSet) perFrame(i int) *FunctionalGroups {
	if i < 0 || i >= len(fs.PerFrame) {
		return nil
	}
	return &fs.PerFrame[i]
}

// Position returns the ImagePositionPatient of frame i
func (fs *FrameSet) Position(i int) []float64 {
	if pf := fs.perFrame(i); pf != nil && len(pf.ImagePositionPatient) >= 3 {
		return pf.ImagePositionPatient
	}
	if len(fs.Shared.ImagePositionPatient) >= 3 {
		return fs.Shared.ImagePositionPatient
	}
	return nil
}

// Orientation returns the ImageOrientationPatient of frame i, per-frame
// values taking precedence over shared ones
func (fs *FrameSet) Orientation(i int) []float64 {
	if pf := fs.perFrame(i); pf != nil && len(pf.ImageOrientationPatient) >= 6 {
		return pf.ImageOrientationPatient
	}
	if len(fs.Shared.ImageOrientationPatient) >= 6 {
		return fs.Shared.ImageOrientationPatient
	}
	return nil
}

// PixelSpacing returns the PixelSpacing of frame i
func (fs *FrameSet) PixelSpacing(i int) []float64 {
	if pf := fs.perFrame(i); pf != nil && len(pf.PixelSpacing) >= 2 {
		return pf.PixelSpacing
	}
	if len(fs.Shared.PixelSpacing) >= 2 {
		return fs.Shared.PixelSpacing
	}
	return nil
}

// SegmentNumber returns the Referenced Segment Number of frame i, or 0
func (fs *FrameSet) SegmentNumber(i int) int {
	if pf := fs.perFrame(i); pf != nil && pf.ReferencedSegmentNumber > 0 {
		return pf.ReferencedSegmentNumber
	}
	return fs.Shared.ReferencedSegmentNumber
}

// Derivation returns the derivation sources of frame i and whether
// derivation metadata is present
func (fs *FrameSet) Derivation(i int) ([]ImageReference, bool) {
	if pf := fs.perFrame(i); pf != nil && pf.Derived {
		return pf.SourceImages, true
	}
	if fs.Shared.Derived {
		return fs.Shared.SourceImages, true
	}
	return nil, false
}

// ReferencedSeriesUID returns the first referenced series UID, or ""
func (fs *FrameSet) ReferencedSeriesUID() string {
	if len(fs.ReferencedSeries) == 0 {
		return ""
	}
	return fs.ReferencedSeries[0].SeriesInstanceUID
}

// Frames returns NumberOfFrames, falling back to the per-frame group count
func (fs *FrameSet) Frames() int {
	if fs.NumberOfFrames > 0 {
		return fs.NumberOfFrames
	}
	return len(fs.PerFrame)
}

// Segment returns the catalog entry for number
func (fs *FrameSet) Segment(number int) (Segment, bool) {
	for _, s := range fs.Segments {
		if s.Number == number {
			return s, true
		}
	}
	return Segment{}, false
}

func sortSegments(segs []Segment) {
	sort.SliceStable(segs, func(i, j int) bool { return segs[i].Number < segs[j].Number })
}

// CopyPatientStudy copies the patient and study attributes of src, keeping
// the study instance UID of fs
func (fs *FrameSet) CopyPatientStudy(src *FrameSet) {
	fs.PatientName = src.PatientName
	fs.PatientID = src.PatientID
	fs.PatientBirthDate = src.PatientBirthDate
	fs.PatientSex = src.PatientSex
	fs.StudyDate = src.StudyDate
	fs.StudyTime = src.StudyTime
	fs.StudyID = src.StudyID
	fs.ReferringPhysicianName = src.ReferringPhysicianName
	fs.AccessionNumber = src.AccessionNumber
}
