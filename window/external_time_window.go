/*
 * Copyright 2024 The RuleGo Authors.
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

package window

import (
	"fmt"

	"github.com/rulego/eventflux/types"
	"github.com/rulego/eventflux/utils/cast"
)

// externalTimeParams splits the externalTime(field, T)/externalTimeBatch(field, T)
// SQL-level parameter pair into a TsProp-keyed config delegated to TimeWindow/
// TumblingWindow, so both external-time kinds reuse their processing-time
// siblings' eviction logic instead of duplicating it.
func externalTimeParams(config types.WindowConfig) (types.WindowConfig, error) {
	if len(config.Params) < 2 {
		return config, fmt.Errorf("%s window requires 'field' and 'duration' parameters", config.Type)
	}
	field := cast.ToString(config.Params[0])
	if field == "" {
		return config, fmt.Errorf("%s window field must be non-empty", config.Type)
	}
	derived := config
	derived.TsProp = field
	derived.TimeCharacteristic = types.EventTime
	derived.Params = config.Params[1:]
	return derived, nil
}

// NewExternalTimeWindow builds a time(T) window keyed on an event
// attribute instead of processing time (externalTime(field, T)).
func NewExternalTimeWindow(config types.WindowConfig) (*TimeWindow, error) {
	derived, err := externalTimeParams(config)
	if err != nil {
		return nil, err
	}
	return NewTimeWindow(derived)
}

// NewExternalTimeBatchWindow builds a timeBatch(T) window keyed on an event
// attribute instead of processing time (externalTimeBatch(field, T)).
func NewExternalTimeBatchWindow(config types.WindowConfig) (*TumblingWindow, error) {
	derived, err := externalTimeParams(config)
	if err != nil {
		return nil, err
	}
	return NewTumblingWindow(derived)
}
