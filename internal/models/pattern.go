package models

import (
	"fmt"
	"time"
)

// PatternKind names one of the three learned-pattern tables.
type PatternKind string

const (
	KindMCALender             PatternKind = "mca_lender"
	KindRevenueClassification PatternKind = "revenue_classification"
	KindTypeCorrection        PatternKind = "type_correction"
)

// IsValid checks if the pattern kind is known
func (k PatternKind) IsValid() bool {
	switch k {
	case KindMCALender, KindRevenueClassification, KindTypeCorrection:
		return true
	default:
		return false
	}
}

// AllPatternKinds lists the kinds in display order.
func AllPatternKinds() []PatternKind {
	return []PatternKind{KindMCALender, KindRevenueClassification, KindTypeCorrection}
}

// PatternValue is the kind-specific payload of a PatternRecord. Only the
// fields relevant to the record's kind are populated.
type PatternValue struct {
	// mca_lender
	LenderID   string `json:"lender_id,omitempty" yaml:"lender_id,omitempty"`
	LenderName string `json:"lender_name,omitempty" yaml:"lender_name,omitempty"`
	Excluded   bool   `json:"excluded,omitempty" yaml:"excluded,omitempty"`

	// revenue_classification
	Classification RevenueClass `json:"classification,omitempty" yaml:"classification,omitempty"`
	Reason         string       `json:"reason,omitempty" yaml:"reason,omitempty"`
	IsMCAFunding   bool         `json:"is_mca_funding,omitempty" yaml:"is_mca_funding,omitempty"`

	// type_correction
	CorrectType TransactionType `json:"correct_type,omitempty" yaml:"correct_type,omitempty"`
}

// Validate checks the payload against the kind it will be stored under.
func (v PatternValue) Validate(kind PatternKind) error {
	switch kind {
	case KindMCALender:
		if !v.Excluded && v.LenderName == "" {
			return fmt.Errorf("lender pattern needs a lender name or the excluded flag")
		}
	case KindRevenueClassification:
		if !v.Classification.IsValid() {
			return fmt.Errorf("invalid revenue classification %q", v.Classification)
		}
	case KindTypeCorrection:
		if !v.CorrectType.IsValid() {
			return fmt.Errorf("invalid corrected type %q", v.CorrectType)
		}
	default:
		return fmt.Errorf("unknown pattern kind %q", kind)
	}
	return nil
}

// PatternRecord is one learned rule keyed by a normalized description.
type PatternRecord struct {
	ID                string       `json:"id" yaml:"id"`
	Pattern           string       `json:"pattern" yaml:"pattern"`
	Kind              PatternKind  `json:"kind" yaml:"kind"`
	Value             PatternValue `json:"value" yaml:"value"`
	UsageCount        int64        `json:"usage_count" yaml:"usage_count"`
	IsManualOverride  bool         `json:"is_manual_override" yaml:"is_manual_override"`
	CreatedBy         string       `json:"created_by,omitempty" yaml:"created_by,omitempty"`
	NormalizerVersion int          `json:"normalizer_version" yaml:"normalizer_version"`
	CreatedAt         time.Time    `json:"created_at" yaml:"created_at"`
	UpdatedAt         time.Time    `json:"updated_at" yaml:"updated_at"`
}

// Outranks reports whether r should win over other when both match the same
// description: manual overrides first, then the longer pattern, then usage.
func (r *PatternRecord) Outranks(other *PatternRecord) bool {
	if other == nil {
		return true
	}
	if r.IsManualOverride != other.IsManualOverride {
		return r.IsManualOverride
	}
	if len(r.Pattern) != len(other.Pattern) {
		return len(r.Pattern) > len(other.Pattern)
	}
	if r.UsageCount != other.UsageCount {
		return r.UsageCount > other.UsageCount
	}
	return r.Pattern < other.Pattern
}

// Clone returns a copy of the record.
func (r *PatternRecord) Clone() *PatternRecord {
	c := *r
	return &c
}
