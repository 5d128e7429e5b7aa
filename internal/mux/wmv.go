// SPDX-License-Identifier: MIT

package mux

import "github.com/coylemichael/screenrecorder/internal/errs"

// WMVWriter is an intentional stub. A correct ASF (WMV) muxer is
// disproportionate to its weight in this system — recording output_format
// WMV always fails at construction with KindInitFailure rather than
// silently producing an unplayable file. See DESIGN.md.
type WMVWriter struct{}

// NewWMVWriter always fails. There is no real ASF object writer behind
// FormatWMV.
func NewWMVWriter(VideoConfig) (*WMVWriter, error) {
	return nil, errs.New(errs.KindInitFailure, "mux.WMVWriter.create", "WMV (ASF) output is not implemented")
}
