/*
 * Copyright 2025 The RuleGo Authors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package partition

import (
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/rulego/eventflux/ferrors"
)

// KeyExtractor computes a partition's string key from "partition by
// expr", compiled once via expr-lang/expr exactly like condition/join's
// ON-condition compilation.
type KeyExtractor struct {
	program *vm.Program
}

// NewKeyExtractor compiles keyExpr.
func NewKeyExtractor(keyExpr string) (*KeyExtractor, error) {
	program, err := expr.Compile(keyExpr, expr.AllowUndefinedVariables())
	if err != nil {
		return nil, ferrors.Wrap(ferrors.KindConfiguration, "partition", "compile partition key", err)
	}
	return &KeyExtractor{program: program}, nil
}

// KeyOf evaluates the key expression against a decoded event map.
func (k *KeyExtractor) KeyOf(event map[string]interface{}) (string, error) {
	v, err := expr.Run(k.program, event)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%v", v), nil
}
