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

package cast

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cast"
)

func ToFloat(x any) float64 {
	switch x := x.(type) {
	case float32:
		return float64(x)
	case float64:
		return x
	case int:
		return float64(x)
	case int8:
		return float64(x)
	case int16:
		return float64(x)
	case int32:
		return float64(x)
	case int64:
		return float64(x)
	case uint:
		return float64(x)
	case uint8:
		return float64(x)
	case uint16:
		return float64(x)
	case uint32:
		return float64(x)
	case uint64:
		return float64(x)
	case string:
		f, err := strconv.ParseFloat(x, 64)
		if err != nil {
			panic(fmt.Sprintf("invalid operation: float(%s)", x))
		}
		return f
	default:
		panic(fmt.Sprintf("invalid operation: float(%T)", x))
	}
}

func ToString(arg any) string {
	return fmt.Sprintf("%v", arg)
}

// ToInt converts arg (numeric, numeric string, or bool) to int, delegating
// to spf13/cast so window/aggregator config parsing accepts the same loose
// shapes the SQL compiler hands the runtime (ints, floats, "10" strings).
func ToInt(arg any) int {
	v, err := cast.ToIntE(arg)
	if err != nil {
		return 0
	}
	return v
}

// ToDuration converts arg to a time.Duration. Strings parse via
// time.ParseDuration ("5s", "200ms"); bare numbers are read as
// milliseconds.
func ToDuration(arg any) time.Duration {
	switch v := arg.(type) {
	case time.Duration:
		return v
	case string:
		d, err := time.ParseDuration(v)
		if err != nil {
			return 0
		}
		return d
	default:
		ms, err := cast.ToInt64E(arg)
		if err != nil {
			return 0
		}
		return time.Duration(ms) * time.Millisecond
	}
}

// ConvertIntToTime interprets an integer timestamp in the given unit
// (time.Millisecond, time.Second, ...) as a wall-clock time since epoch.
// unit defaults to milliseconds when zero, matching Event.ArrivalTimestamp.
func ConvertIntToTime(ts int64, unit time.Duration) time.Time {
	if unit <= 0 {
		unit = time.Millisecond
	}
	return time.Unix(0, ts*int64(unit))
}
