package service

import (
	"encoding/json"
	"strings"

	"github.com/hugo-lorenzo-mato/memwall/internal/core"
)

// Request selects what to run. A nil OffloadEnabled uses the configured
// default.
type Request struct {
	Scenario       string `json:"scenario"`
	Tier           string `json:"tier,omitempty"`
	OffloadEnabled *bool  `json:"offload_enabled,omitempty"`
}

// ParseControl decodes the control message a display client sends once
// when it connects. "aidaptiv_enabled" is accepted for offload_enabled.
func ParseControl(data []byte) (Request, error) {
	var raw struct {
		Scenario string `json:"scenario"`
		Tier     string `json:"tier"`
		Offload  *bool  `json:"offload_enabled"`
		Alias    *bool  `json:"aidaptiv_enabled"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return Request{}, core.ErrValidation(core.CodeInvalidControl, "control message is not valid JSON").WithCause(err)
	}
	req := Request{
		Scenario:       strings.TrimSpace(raw.Scenario),
		Tier:           strings.TrimSpace(raw.Tier),
		OffloadEnabled: raw.Offload,
	}
	if req.OffloadEnabled == nil {
		req.OffloadEnabled = raw.Alias
	}
	if req.Scenario == "" {
		return Request{}, core.ErrValidation(core.CodeInvalidControl, "control message has no scenario")
	}
	return req, nil
}
