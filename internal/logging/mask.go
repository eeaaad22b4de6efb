// Copyright 2024-2025 Logz.io
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package logging

import (
	"io"
	"regexp"
)

// maskPattern matches credential material that may leak into log lines:
// query/body parameters (token=, client_secret=, grant_type=), bearer tokens
// and basic-auth headers. Up to 26 characters after the marker are replaced.
var maskPattern = regexp.MustCompile(`(token=|grant_type=|client_secret=|password=|Bearer |Authorization["']?: ?["']?Basic )[^&\s"']{0,26}`)

const maskReplacement = `$1******`

// MaskWriter is an io.Writer that replaces secrets with '******' before
// forwarding log lines to the underlying writer.
type MaskWriter struct {
	out io.Writer
}

func NewMaskWriter(out io.Writer) *MaskWriter {
	return &MaskWriter{out: out}
}

// Write masks p and forwards it. The returned length refers to the original
// input so zerolog does not treat the rewrite as a short write.
func (w *MaskWriter) Write(p []byte) (int, error) {
	masked := maskPattern.ReplaceAll(p, []byte(maskReplacement))
	if _, err := w.out.Write(masked); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Mask applies the same secret scrubbing to a plain string. Useful for
// formatting request outlines at debug level.
func Mask(s string) string {
	return maskPattern.ReplaceAllString(s, maskReplacement)
}

// MaskErr scrubs an error message. Error bodies may echo request parameters,
// including credentials.
func MaskErr(err error) string {
	if err == nil {
		return ""
	}
	return Mask(err.Error())
}
