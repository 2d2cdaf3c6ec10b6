// Copyright (c) 2026 John Earle
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

package study

import (
	"fmt"
	"strings"

	"github.com/bcem/gelk/internal/enrich"
)

// Params are the per-study settings, as found in configuration files and
// queued tasks. Each study reads only the fields it needs.
type Params struct {
	DateField      string `yaml:"date_field" json:"date_field,omitempty"`
	OutIndex       string `yaml:"out_index" json:"out_index,omitempty"`
	OutAlias       string `yaml:"out_alias" json:"out_alias,omitempty"`
	IntervalMonths int    `yaml:"interval_months" json:"interval_months,omitempty"`
	Observations   int    `yaml:"observations" json:"observations,omitempty"`
	JSONURL        string `yaml:"json_url" json:"json_url,omitempty"`
}

// Deps are the collaborators some studies need.
type Deps struct {
	Enricher *enrich.Enricher
	Fetcher  JSONFetcher
}

// Names lists the accepted study names.
var Names = []string{"demography", "forecast_activity", "onion", "areas_of_code", "extra_data"}

// New builds the study called name. The "enrich_" prefix used in project
// configuration files is accepted.
func New(name string, p Params, deps Deps) (Study, error) {
	switch strings.TrimPrefix(name, "enrich_") {
	case "demography":
		return Demography{DateField: p.DateField}, nil
	case "forecast_activity":
		return ForecastActivity{
			OutIndex:       p.OutIndex,
			IntervalMonths: p.IntervalMonths,
			Observations:   p.Observations,
			DateField:      p.DateField,
		}, nil
	case "onion":
		return Onion{OutIndex: p.OutIndex, OutAlias: p.OutAlias, DateField: p.DateField}, nil
	case "areas_of_code":
		return AreasOfCode{Enricher: deps.Enricher, OutIndex: p.OutIndex, OutAlias: p.OutAlias}, nil
	case "extra_data":
		return ExtraData{URL: p.JSONURL, Fetcher: deps.Fetcher}, nil
	default:
		return nil, fmt.Errorf("unknown study %q (want one of %s)", name, strings.Join(Names, ", "))
	}
}
