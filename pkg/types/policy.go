// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

// Default policy thresholds. These were tuning constants in earlier
// revisions; they are named here and overridable through PolicyConfig.
// Per prd004-recovery R3.1-R3.4.
const (
	// DefaultMinSectionChars is the trimmed length below which a section
	// body counts as a placeholder.
	DefaultMinSectionChars = 20

	// DefaultMinDocumentChars is the assembled length below which the
	// pipeline result triggers manual per-section reassembly.
	DefaultMinDocumentChars = 50

	// DefaultMinKeepRatio is the minimum recovered/original length ratio;
	// below it recovery is rejected and the original document returned.
	DefaultMinKeepRatio = 0.5

	// DefaultMinLinkOutputChars is the trimmed length above which a
	// completed link-stage output is usable during recovery.
	DefaultMinLinkOutputChars = 10

	// DefaultMinLinks and DefaultMaxLinks bound how many terms the link
	// stage may turn into references.
	DefaultMinLinks = 3
	DefaultMaxLinks = 5
)

// PolicyConfig holds the content-safety thresholds applied by the
// degenerate-output guard and the recovery path.
// Per prd004-recovery R3.1-R3.4.
type PolicyConfig struct {
	// MinSectionChars flags shorter section bodies as placeholders.
	MinSectionChars int `json:"min_section_chars" yaml:"min_section_chars"`

	// MinDocumentChars triggers manual reassembly for shorter results.
	MinDocumentChars int `json:"min_document_chars" yaml:"min_document_chars"`

	// MinKeepRatio rejects recovered content shorter than this fraction
	// of the original document.
	MinKeepRatio float64 `json:"min_keep_ratio" yaml:"min_keep_ratio"`

	// MinLinkOutputChars qualifies link-stage outputs for recovery.
	MinLinkOutputChars int `json:"min_link_output_chars" yaml:"min_link_output_chars"`

	// MinLinks and MaxLinks bound the link stage's reference count.
	MinLinks int `json:"min_links" yaml:"min_links"`
	MaxLinks int `json:"max_links" yaml:"max_links"`
}

// WithDefaults returns a copy with zero fields replaced by the named
// default constants.
func (p PolicyConfig) WithDefaults() PolicyConfig {
	if p.MinSectionChars == 0 {
		p.MinSectionChars = DefaultMinSectionChars
	}
	if p.MinDocumentChars == 0 {
		p.MinDocumentChars = DefaultMinDocumentChars
	}
	if p.MinKeepRatio == 0 {
		p.MinKeepRatio = DefaultMinKeepRatio
	}
	if p.MinLinkOutputChars == 0 {
		p.MinLinkOutputChars = DefaultMinLinkOutputChars
	}
	if p.MinLinks == 0 {
		p.MinLinks = DefaultMinLinks
	}
	if p.MaxLinks == 0 {
		p.MaxLinks = DefaultMaxLinks
	}
	return p
}
