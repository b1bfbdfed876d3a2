// Copyright 2025 AxonFlow
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

package vault

import (
	"regexp"
	"strings"
)

// keyPattern matches a whole field value of the form {{KEY(name)}}.
var keyPattern = regexp.MustCompile(`^\{\{KEY\((.+?)\)\}\}$`)

// Tokenizer is the one parser of the {{KEY(name)}} placeholder wire format.
type Tokenizer struct{}

// Parse returns the secret name when value is a placeholder. Surrounding
// whitespace is ignored; partial matches inside a longer string are not placeholders.
func (Tokenizer) Parse(value string) (string, bool) {
	m := keyPattern.FindStringSubmatch(strings.TrimSpace(value))
	if m == nil {
		return "", false
	}
	name := strings.TrimSpace(m[1])
	if name == "" {
		return "", false
	}
	return name, true
}

// IsPlaceholder reports whether value is a placeholder
func (t Tokenizer) IsPlaceholder(value string) bool {
	_, ok := t.Parse(value)
	return ok
}

// Format renders a placeholder for name
func (Tokenizer) Format(name string) string {
	return "{{KEY(" + name + ")}}"
}
