package flight

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

const (
	CaptureMS          CaptureType = "MS"
	CaptureThreeD      CaptureType = "3D"
	CaptureReflectance CaptureType = "Reflectance"
	CapturePhantomMS   CaptureType = "phantom-MS"
)

// DateLayout is the calendar date layout used in folder names, output paths
// and the flight log.
const DateLayout = "20060102"

// CaptureType is the kind of capture a flight folder holds.
type CaptureType string

func (t CaptureType) Valid() bool {
	switch t {
	case CaptureMS, CaptureThreeD, CaptureReflectance, CapturePhantomMS:
		return true
	}
	return false
}

// Record is one physical capture folder found on a storage device.
type Record struct {
	UID        uuid.UUID `json:"uid"`
	DirName    string    `json:"dirName"`
	SourceRoot string    `json:"sourceRoot"`
	FolderID   string    `json:"folderID"`

	// RouteID is the flight route token parsed from the folder name. Panels get
	// theirs from the MS flight they are paired with.
	RouteID     string      `json:"routeID"`
	CaptureType CaptureType `json:"captureType"`
	Date        string      `json:"date"`
	StartTime   Clock       `json:"startTime"`
	EndTime     Clock       `json:"endTime"`
	FileCount   int         `json:"fileCount"`
	DirCount    int         `json:"dirCount"`

	OutputPath string `json:"outputPath,omitempty"`
	Height     string `json:"height,omitempty"`

	// Valid is false for panels missing one of the calibration bands.
	Valid bool `json:"valid"`
	// ReflectanceAssigned is set on MS records once a panel is paired to them.
	ReflectanceAssigned bool `json:"reflectanceAssigned"`
	// PairedWith is the UID of the MS record a panel was paired to.
	PairedWith uuid.UUID `json:"pairedWith"`

	// Marker overrides RouteID in the flight log for trashed and skyline flights.
	Marker string `json:"marker,omitempty"`
}

// NewRecord creates a Record with the required fields validated.
func NewRecord(dirName, sourceRoot string, captureType CaptureType, date string) (*Record, error) {
	if dirName == "" {
		return nil, errors.New("empty folder name")
	}
	if !captureType.Valid() {
		return nil, fmt.Errorf("unknown capture type %q", captureType)
	}
	if _, err := time.Parse(DateLayout, date); err != nil {
		return nil, fmt.Errorf("invalid capture date %q: %w", date, err)
	}

	return &Record{
		UID:         uuid.New(),
		DirName:     dirName,
		SourceRoot:  sourceRoot,
		CaptureType: captureType,
		Date:        date,
		DirCount:    1,
		Valid:       true,
	}, nil
}

// SourcePath is the folder location on the device.
func (r *Record) SourcePath() string {
	return filepath.Join(r.SourceRoot, r.DirName)
}

// DestinationPath is where the folder is copied to.
func (r *Record) DestinationPath() string {
	if r.OutputPath == "" {
		return ""
	}
	return filepath.Join(r.OutputPath, r.DirName)
}

// EffectiveRoute is the route name recorded in the flight log.
func (r *Record) EffectiveRoute() string {
	if r.Marker != "" {
		return r.Marker
	}
	return r.RouteID
}

// Paired reports whether a panel has already been matched to an MS record.
func (r *Record) Paired() bool {
	return r.PairedWith != uuid.Nil
}

// Clone returns a deep copy carrying a fresh UID.
func (r *Record) Clone() *Record {
	c := *r
	c.UID = uuid.New()
	return &c
}
