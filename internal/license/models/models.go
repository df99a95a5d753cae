package models

import (
	"regexp"
	"strings"
	"time"

	"geekship/pkg/domain"
	"geekship/pkg/domerrors"
)

// DrivingLicense is a non-transferable credential token. Existence of at
// least one non-burned token is the Driver eligibility predicate.
type DrivingLicense struct {
	TokenID       domain.TokenID
	OwnerUID      domain.UserID
	Name          string
	LicenseNumber string
	IPFSImageHash string
	Burned        bool
	MintedAt      time.Time
}

var licenseNumberRe = regexp.MustCompile(`^[A-Za-z0-9\- ]{5,20}$`)

// NewDrivingLicense validates the mint inputs. The image hash is opaque; the
// core never resolves it.
func NewDrivingLicense(owner domain.UserID, name, licenseNumber, ipfsHash string, now time.Time) (*DrivingLicense, error) {
	name = strings.TrimSpace(name)
	if owner.IsNil() {
		return nil, domerrors.New(domerrors.CodeInvalidInput, "owner is required")
	}
	if name == "" {
		return nil, domerrors.New(domerrors.CodeInvalidInput, "holder name cannot be empty")
	}
	if !licenseNumberRe.MatchString(licenseNumber) {
		return nil, domerrors.New(domerrors.CodeInvalidInput, "license number must be 5-20 alphanumeric characters")
	}
	if ipfsHash == "" {
		return nil, domerrors.New(domerrors.CodeInvalidInput, "license image hash is required")
	}
	return &DrivingLicense{
		OwnerUID:      owner,
		Name:          name,
		LicenseNumber: licenseNumber,
		IPFSImageHash: ipfsHash,
		MintedAt:      now,
	}, nil
}
