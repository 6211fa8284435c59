package vendors

import (
	"errors"
	"slices"
	"strings"
	"time"

	"dpdp/internal/platform/validate"
)

const (
	CategoryAnalytics = "analytics"
	CategoryKYC       = "kyc"
	CategoryMessaging = "messaging"
	CategoryInfra     = "infra"
	CategoryPayments  = "payments"
	CategoryOther     = "other"
)

var Categories = []string{CategoryAnalytics, CategoryKYC, CategoryMessaging, CategoryInfra, CategoryPayments, CategoryOther}

const (
	DPAPending  = "PENDING"
	DPAApproved = "APPROVED"
	DPARejected = "REJECTED"
	DPAExpired  = "EXPIRED"
)

const (
	RiskLow    = "LOW"
	RiskMedium = "MEDIUM"
	RiskHigh   = "HIGH"
)

var DataTypes = []string{"name", "email", "phone", "address", "aadhaar", "pan", "device_data"}

var Purposes = []string{
	"user_authentication",
	"kyc_verification",
	"fraud_detection",
	"analytics",
	"communication",
	"customer_support",
}

const (
	ActionApprove    = "approve"
	ActionReject     = "reject"
	ActionActivate   = "activate"
	ActionDeactivate = "deactivate"
)

var (
	ErrNotFound            = errors.New("vendor not found")
	ErrInvalidAction       = errors.New("invalid bulk action")
	ErrMissingAccessFields = errors.New("vendor_id, purpose, and data_types are required")
	ErrFileTooLarge        = errors.New("DPA file exceeds 10MB")
	ErrNotPDF              = errors.New("DPA file must be a PDF")
	ErrNoDPAFile           = errors.New("vendor has no DPA file")
)

// MaxDPASize caps uploaded agreements.
const MaxDPASize = 10 << 20

type Vendor struct {
	VendorID         string     `json:"vendor_id"`
	VendorName       string     `json:"vendor_name"`
	Category         string     `json:"category"`
	ContactName      string     `json:"contact_name"`
	ContactEmail     string     `json:"contact_email"`
	Notes            string     `json:"notes"`
	DPAStatus        string     `json:"dpa_status"`
	DPAFilePath      string     `json:"-"`
	HasDPAFile       bool       `json:"has_dpa_file"`
	DPASignedOn      *time.Time `json:"dpa_signed_on"`
	DPAValidTill     *time.Time `json:"dpa_valid_till"`
	AllowedPurposes  []string   `json:"allowed_purposes"`
	AllowedDataTypes []string   `json:"allowed_data_types"`
	RiskLevel        string     `json:"risk_level"`
	IsActive         bool       `json:"is_active"`
	ExpiryNotifiedAt *time.Time `json:"-"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// Risk classifies a vendor from its category, the data it may touch and
// its agreement state.
func Risk(v Vendor) string {
	if v.Category == CategoryKYC || v.Category == CategoryPayments {
		return RiskHigh
	}
	if slices.Contains(v.AllowedDataTypes, "aadhaar") || slices.Contains(v.AllowedDataTypes, "pan") {
		return RiskHigh
	}
	if v.DPAStatus != DPAApproved {
		return RiskHigh
	}
	for _, dt := range v.AllowedDataTypes {
		switch dt {
		case "name", "email", "phone", "address":
			return RiskMedium
		}
	}
	return RiskLow
}

type CreateInput struct {
	VendorName       string   `json:"vendor_name"`
	Category         string   `json:"category"`
	ContactName      string   `json:"contact_name"`
	ContactEmail     string   `json:"contact_email"`
	Notes            string   `json:"notes"`
	AllowedPurposes  []string `json:"allowed_purposes"`
	AllowedDataTypes []string `json:"allowed_data_types"`
}

// UpdateInput changes only the fields that are set.
type UpdateInput struct {
	VendorName       *string   `json:"vendor_name"`
	Category         *string   `json:"category"`
	ContactName      *string   `json:"contact_name"`
	ContactEmail     *string   `json:"contact_email"`
	Notes            *string   `json:"notes"`
	AllowedPurposes  *[]string `json:"allowed_purposes"`
	AllowedDataTypes *[]string `json:"allowed_data_types"`
	IsActive         *bool     `json:"is_active"`
}

func (in UpdateInput) apply(v Vendor) Vendor {
	if in.VendorName != nil {
		v.VendorName = strings.TrimSpace(*in.VendorName)
	}
	if in.Category != nil {
		v.Category = *in.Category
	}
	if in.ContactName != nil {
		v.ContactName = strings.TrimSpace(*in.ContactName)
	}
	if in.ContactEmail != nil {
		v.ContactEmail = strings.TrimSpace(*in.ContactEmail)
	}
	if in.Notes != nil {
		v.Notes = *in.Notes
	}
	if in.AllowedPurposes != nil {
		v.AllowedPurposes = dedupe(*in.AllowedPurposes)
	}
	if in.AllowedDataTypes != nil {
		v.AllowedDataTypes = dedupe(*in.AllowedDataTypes)
	}
	if in.IsActive != nil {
		v.IsActive = *in.IsActive
	}
	return v
}

func validateVendor(v Vendor) error {
	var c validate.Collector
	c.Required("vendor_name", v.VendorName)
	c.MaxLen("vendor_name", v.VendorName, 255)
	c.Required("contact_name", v.ContactName)
	c.OneOf("category", v.Category, Categories...)
	c.Email("contact_email", v.ContactEmail)
	for _, p := range v.AllowedPurposes {
		c.OneOf("allowed_purposes", p, Purposes...)
	}
	for _, dt := range v.AllowedDataTypes {
		c.OneOf("allowed_data_types", dt, DataTypes...)
	}
	return c.Err()
}

func dedupe(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s != "" && !slices.Contains(out, s) {
			out = append(out, s)
		}
	}
	return out
}

type ApproveInput struct {
	SignedOn  *time.Time `json:"dpa_signed_on"`
	ValidTill *time.Time `json:"dpa_valid_till"`
}

type Stats struct {
	TotalVendors    int `json:"total_vendors"`
	ApprovedVendors int `json:"approved_vendors"`
	PendingDPA      int `json:"pending_dpa"`
	HighRiskVendors int `json:"high_risk_vendors"`
}

type Filter struct {
	Category  string
	DPAStatus string
	RiskLevel string
	Search    string
}

type AccessRequest struct {
	VendorID  string   `json:"vendor_id"`
	Purpose   string   `json:"purpose"`
	DataTypes []string `json:"data_types"`
}

type AccessLog struct {
	LogID              string    `json:"log_id"`
	VendorID           string    `json:"vendor_id"`
	VendorName         string    `json:"vendor_name"`
	Purpose            string    `json:"purpose"`
	DataTypesRequested []string  `json:"data_types_requested"`
	AccessGranted      bool      `json:"access_granted"`
	Reason             string    `json:"reason"`
	Timestamp          time.Time `json:"timestamp"`
}

// evaluateAccess decides a data-access request against the vendor's
// agreement. The first failing condition becomes the reason.
func evaluateAccess(v Vendor, req AccessRequest, now time.Time) (bool, string) {
	switch {
	case !v.IsActive:
		return false, "Vendor is inactive"
	case v.DPAStatus != DPAApproved:
		return false, "DPA is not approved"
	case v.DPAValidTill != nil && now.After(*v.DPAValidTill):
		return false, "DPA has expired"
	case !slices.Contains(v.AllowedPurposes, req.Purpose):
		return false, "Purpose " + req.Purpose + " is not allowed"
	}
	for _, dt := range req.DataTypes {
		if !slices.Contains(v.AllowedDataTypes, dt) {
			return false, "Data type " + dt + " is not allowed"
		}
	}
	return true, "Access granted"
}

// dpaFileName builds the stored name for an uploaded agreement.
func dpaFileName(vendorName string, at time.Time) string {
	var b strings.Builder
	for _, r := range strings.ToLower(vendorName) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	name := strings.Trim(b.String(), "_")
	if name == "" {
		name = "vendor"
	}
	return name + "_" + at.UTC().Format("20060102T150405") + ".pdf"
}
