package workflow

import "time"

type Config struct {
	// AllowApproveQueried lets a consultant approve a QUERIED submission
	// directly, without waiting for a resubmission.
	AllowApproveQueried bool          `yaml:"allow_approve_queried"`
	MaxEvidenceBytes    int64         `yaml:"max_evidence_bytes"`
	MaxEvidenceFiles    int           `yaml:"max_evidence_files"`
	URLTTL              time.Duration `yaml:"url_ttl"`
}

func DefaultConfig() Config {
	return Config{
		MaxEvidenceBytes: 10 << 20,
		MaxEvidenceFiles: 20,
		URLTTL:           60 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxEvidenceBytes <= 0 {
		c.MaxEvidenceBytes = d.MaxEvidenceBytes
	}
	if c.MaxEvidenceFiles <= 0 {
		c.MaxEvidenceFiles = d.MaxEvidenceFiles
	}
	if c.URLTTL <= 0 {
		c.URLTTL = d.URLTTL
	}
	return c
}
